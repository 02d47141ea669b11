package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scriptbloxx/brainsift-cli/internal/model"
)

// memIdentity is an in-memory Identity for tests.
type memIdentity struct {
	mu   sync.Mutex
	user *model.User
}

func (m *memIdentity) Current() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

func (m *memIdentity) UpdateTokens(access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return errors.New("no identity")
	}
	m.user.AccessToken = access
	if refresh != "" {
		m.user.RefreshToken = refresh
	}
	return nil
}

func (m *memIdentity) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	return nil
}

func newTestClient(t *testing.T, handler http.Handler, user *model.User) (*Client, *memIdentity) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	id := &memIdentity{user: user}
	return New(srv.URL, id), id
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func testUser() *model.User {
	return &model.User{
		ID:           "u1",
		Email:        "ada@example.com",
		Name:         "ada",
		Role:         model.UserRoleUser,
		Plan:         model.PlanFree,
		AccessToken:  "stale-access",
		RefreshToken: "good-refresh",
	}
}

func testExamJSON() model.Exam {
	return model.Exam{
		ID:           "e1",
		Title:        "Networks 101",
		TimerMinutes: 10,
		Questions: []model.Question{
			{ID: "q1", Text: "What is TCP?", Options: []string{"a", "b"}},
		},
	}
}

func TestBearerAttached(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Get("/api/exam/{id}", func(w http.ResponseWriter, req *http.Request) {
		got = req.Header.Get("Authorization")
		writeJSON(t, w, http.StatusOK, testExamJSON())
	})

	c, _ := newTestClient(t, r, testUser())
	if _, err := c.GetExam(context.Background(), "e1"); err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if got != "Bearer stale-access" {
		t.Errorf("expected bearer header, got %q", got)
	}
}

func TestUnauthenticatedRequestHasNoBearer(t *testing.T) {
	var got string
	var reqID string
	r := chi.NewRouter()
	r.Post("/api/authentication/login", func(w http.ResponseWriter, req *http.Request) {
		got = req.Header.Get("Authorization")
		reqID = req.Header.Get("X-Request-ID")
		writeJSON(t, w, http.StatusOK, testUser())
	})

	c, _ := newTestClient(t, r, nil)
	user, err := c.Login(context.Background(), model.LoginForm{Email: "ada@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got != "" {
		t.Errorf("expected no Authorization header, got %q", got)
	}
	if reqID == "" {
		t.Error("expected X-Request-ID header")
	}
	if user.Email != "ada@example.com" {
		t.Errorf("unexpected user email %q", user.Email)
	}
}

func TestConcurrentUnauthorizedSharesOneRefresh(t *testing.T) {
	const workers = 5

	var refreshes atomic.Int32
	// All stale-token requests are held at this barrier so every worker
	// receives its 401 at the same moment.
	var barrier sync.WaitGroup
	barrier.Add(workers)

	r := chi.NewRouter()
	r.Get("/api/exam/{id}", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer fresh-access" {
			barrier.Done()
			barrier.Wait()
			writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
			return
		}
		writeJSON(t, w, http.StatusOK, testExamJSON())
	})
	r.Post("/api/authentication/refresh-token", func(w http.ResponseWriter, req *http.Request) {
		var body refreshRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.RefreshToken != "good-refresh" {
			writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "bad refresh token"})
			return
		}
		refreshes.Add(1)
		// Stay in flight long enough for every 401 handler to join.
		time.Sleep(150 * time.Millisecond)
		writeJSON(t, w, http.StatusOK, refreshResponse{AccessToken: "fresh-access"})
	})

	c, id := newTestClient(t, r, testUser())

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.GetExam(context.Background(), "e1")
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: %v", i, err)
		}
	}
	if n := refreshes.Load(); n != 1 {
		t.Errorf("expected exactly 1 refresh call, got %d", n)
	}
	if u := id.Current(); u == nil || u.AccessToken != "fresh-access" {
		t.Error("expected refreshed access token to be persisted")
	}
	if u := id.Current(); u == nil || u.RefreshToken != "good-refresh" {
		t.Error("expected refresh token to survive an access-only refresh")
	}
}

func TestUnauthorizedAfterRetryIsNotRetriedAgain(t *testing.T) {
	var examHits, refreshHits atomic.Int32

	r := chi.NewRouter()
	r.Get("/api/exam/{id}", func(w http.ResponseWriter, req *http.Request) {
		examHits.Add(1)
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "still invalid"})
	})
	r.Post("/api/authentication/refresh-token", func(w http.ResponseWriter, req *http.Request) {
		refreshHits.Add(1)
		writeJSON(t, w, http.StatusOK, refreshResponse{AccessToken: "fresh-access"})
	})

	c, _ := newTestClient(t, r, testUser())
	_, err := c.GetExam(context.Background(), "e1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if apiErr.Message != "still invalid" {
		t.Errorf("expected server message to be carried, got %q", apiErr.Message)
	}
	if n := examHits.Load(); n != 2 {
		t.Errorf("expected exactly 2 exam requests (original + one retry), got %d", n)
	}
	if n := refreshHits.Load(); n != 1 {
		t.Errorf("expected exactly 1 refresh, got %d", n)
	}
}

func TestRefreshRejectionClearsIdentity(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/exam/{id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
	})
	r.Post("/api/authentication/refresh-token", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "refresh revoked"})
	})

	c, id := newTestClient(t, r, testUser())
	_, err := c.GetExam(context.Background(), "e1")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if id.Current() != nil {
		t.Error("expected identity to be erased after refresh rejection")
	}
}

func TestMissingRefreshTokenFailsPermanently(t *testing.T) {
	var refreshHits atomic.Int32
	r := chi.NewRouter()
	r.Get("/api/exam/{id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
	})
	r.Post("/api/authentication/refresh-token", func(w http.ResponseWriter, req *http.Request) {
		refreshHits.Add(1)
	})

	u := testUser()
	u.RefreshToken = ""
	c, id := newTestClient(t, r, u)

	_, err := c.GetExam(context.Background(), "e1")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if refreshHits.Load() != 0 {
		t.Error("refresh endpoint must not be called without a refresh token")
	}
	if id.Current() != nil {
		t.Error("expected identity to be erased")
	}
}

func TestOrdinaryRequestsNeverMutateIdentity(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/exam/{id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, http.StatusOK, testExamJSON())
	})

	u := testUser()
	c, id := newTestClient(t, r, u)
	if _, err := c.GetExam(context.Background(), "e1"); err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	got := id.Current()
	if got == nil || got.AccessToken != u.AccessToken || got.RefreshToken != u.RefreshToken {
		t.Error("successful request must not touch the persisted identity")
	}
}

func TestServerErrorMessageSurfaced(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/authentication/login", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]string{"message": "invalid credentials"})
	})

	c, _ := newTestClient(t, r, nil)
	_, err := c.Login(context.Background(), model.LoginForm{Email: "a@b.c", Password: "x"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "invalid credentials" {
		t.Errorf("unexpected error: %v", apiErr)
	}
}

func TestMalformedExamRejected(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/exam/{id}", func(w http.ResponseWriter, req *http.Request) {
		exam := testExamJSON()
		exam.Questions = append(exam.Questions, exam.Questions[0]) // duplicate id
		writeJSON(t, w, http.StatusOK, exam)
	})

	c, _ := newTestClient(t, r, testUser())
	if _, err := c.GetExam(context.Background(), "e1"); err == nil ||
		!strings.Contains(err.Error(), "duplicate question id") {
		t.Errorf("expected duplicate id error, got %v", err)
	}
}

func TestGenerateExamMultipart(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/exam/generate", func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(t, w, http.StatusBadRequest, map[string]string{"message": "bad form"})
			return
		}
		if req.FormValue("title") != "Physics" || req.FormValue("questionCount") != "5" ||
			req.FormValue("timerMinutes") != "30" || req.FormValue("visibility") != "private" ||
			req.FormValue("tags") != "mechanics,waves" {
			writeJSON(t, w, http.StatusBadRequest, map[string]string{"message": "missing fields"})
			return
		}
		f, _, err := req.FormFile("file")
		if err != nil {
			writeJSON(t, w, http.StatusBadRequest, map[string]string{"message": "missing file"})
			return
		}
		defer f.Close()
		writeJSON(t, w, http.StatusCreated, generateResponse{ExamID: "new-exam"})
	})

	c, _ := newTestClient(t, r, testUser())
	form := model.GenerateForm{
		Title:         "Physics",
		TimerMinutes:  30,
		QuestionCount: 5,
		Tags:          []string{"mechanics", "waves"},
		Visibility:    model.VisibilityPrivate,
		FilePath:      "notes.pdf",
	}
	id, err := c.GenerateExam(context.Background(), form, strings.NewReader("lecture notes"))
	if err != nil {
		t.Fatalf("GenerateExam: %v", err)
	}
	if id != "new-exam" {
		t.Errorf("expected exam id 'new-exam', got %q", id)
	}
}

func TestSubmitExamPayloadOrder(t *testing.T) {
	var got submitRequest
	r := chi.NewRouter()
	r.Post("/api/exam/submit", func(w http.ResponseWriter, req *http.Request) {
		if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
			writeJSON(t, w, http.StatusBadRequest, map[string]string{"message": "bad body"})
			return
		}
		writeJSON(t, w, http.StatusOK, model.ExamResult{
			ExamID:         got.ExamID,
			CorrectAnswers: 2,
			TotalQuestions: 3,
			Percentage:     67,
			Solutions:      map[string]int{"q1": 1, "q2": 1, "q3": 2},
		})
	})

	c, _ := newTestClient(t, r, testUser())
	answers := []model.AnswerPair{{QuestionID: "q1", Answer: 1}, {QuestionID: "q2", Answer: 0}, {QuestionID: "q3", Answer: 2}}
	res, err := c.SubmitExam(context.Background(), "e1", answers)
	if err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}
	if got.ExamID != "e1" || len(got.Answers) != 3 || got.Answers[1].QuestionID != "q2" {
		t.Errorf("unexpected submit payload: %+v", got)
	}
	if res.Percentage != 67 || res.CorrectAnswers != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
}
