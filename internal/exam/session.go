// Package exam drives one client-side exam attempt: fetching the exam,
// walking the questions, counting down the timer, and submitting the
// answers. The authoritative result always comes from the backend; local
// scoring exists only as a degraded fallback when submission fails.
package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/scriptbloxx/brainsift-cli/internal/model"
)

// State is the session's lifecycle phase.
type State string

const (
	StateLoading          State = "loading"
	StateReviewingSummary State = "reviewing_summary"
	StateAnswering        State = "answering"
	StateSubmitting       State = "submitting"
	StateCompleted        State = "completed"
)

var (
	// ErrNotAnswered blocks moving forward past an unanswered question.
	ErrNotAnswered = errors.New("answer the current question first")
	// ErrIncomplete blocks submission while any question is unanswered.
	ErrIncomplete = errors.New("all questions must be answered before submitting")
	// ErrWrongState is returned for an operation invalid in the current phase.
	ErrWrongState = errors.New("operation not allowed in the current state")
)

// Backend is the slice of the API client the session needs.
type Backend interface {
	GetExam(ctx context.Context, id string) (*model.Exam, error)
	SubmitExam(ctx context.Context, examID string, answers []model.AnswerPair) (*model.ExamResult, error)
}

// Session is the state machine for one exam attempt.
//
// States: loading -> reviewing_summary -> answering -> submitting ->
// completed. The countdown runs only while answering and stops the instant
// the session leaves that state.
type Session struct {
	backend Backend
	examID  string
	tick    time.Duration

	mu        sync.Mutex
	state     State
	exam      *model.Exam
	current   int
	answers   map[string]int
	remaining int
	stop      chan struct{}
	done      chan struct{}

	result    *model.ExamResult
	local     *LocalResult
	submitErr error

	showSummary bool
	showKey     bool
}

// NewSession creates a session for the given exam id.
func NewSession(backend Backend, examID string) *Session {
	return &Session{
		backend: backend,
		examID:  examID,
		tick:    time.Second,
		state:   StateLoading,
		answers: make(map[string]int),
		done:    make(chan struct{}),
	}
}

// Begin fetches the exam and moves to reviewing the summary. A fetch failure
// aborts the session: there is no retry, the caller sends the user back to
// browsing.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateLoading {
		s.mu.Unlock()
		return fmt.Errorf("%w: begin from %s", ErrWrongState, s.state)
	}
	s.mu.Unlock()

	exam, err := s.backend.GetExam(ctx, s.examID)
	if err != nil {
		return fmt.Errorf("load exam: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exam = exam
	s.remaining = exam.TimerMinutes * 60
	s.state = StateReviewingSummary
	slog.Debug("exam loaded", "exam", exam.Title, "questions", len(exam.Questions), "timer_minutes", exam.TimerMinutes)
	return nil
}

// Acknowledge leaves the summary and starts answering. The countdown begins
// here: reviewing the summary consumes no exam time.
func (s *Session) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReviewingSummary {
		return fmt.Errorf("%w: acknowledge from %s", ErrWrongState, s.state)
	}
	s.state = StateAnswering
	s.stop = make(chan struct{})
	go s.countdown(s.stop)
	return nil
}

// countdown decrements remaining time once per tick while answering. Owns no
// state besides the ticker; every mutation happens under the session lock.
func (s *Session) countdown(stop chan struct{}) {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.mu.Lock()
			if s.state != StateAnswering {
				s.mu.Unlock()
				return
			}
			s.remaining--
			if s.remaining > 0 {
				s.mu.Unlock()
				continue
			}
			s.remaining = 0
			s.mu.Unlock()
			s.expire()
			return
		}
	}
}

// expire force-completes the session when the countdown reaches zero. A
// complete answer set still gets a best-effort submit so a finished exam is
// never silently discarded; anything less completes in degraded mode.
func (s *Session) expire() {
	s.mu.Lock()
	if s.state != StateAnswering {
		s.mu.Unlock()
		return
	}
	if s.completeLocked() {
		pairs := s.pairsLocked()
		s.state = StateSubmitting
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		result, err := s.backend.SubmitExam(ctx, s.examID, pairs)

		s.mu.Lock()
		s.finishLocked(result, err)
		s.mu.Unlock()
		return
	}
	s.finishLocked(nil, errors.New("time expired before all questions were answered"))
	s.mu.Unlock()
}

// finishLocked records the submit outcome and completes the session exactly
// once. Called with the lock held.
func (s *Session) finishLocked(result *model.ExamResult, err error) {
	if s.state == StateCompleted {
		return
	}
	if err != nil {
		s.submitErr = err
		s.local = Fallback(s.exam, s.answers)
		slog.Warn("completing exam without authoritative result", "error", err)
	} else {
		s.result = result
	}
	s.state = StateCompleted
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	close(s.done)
}

// SelectAnswer records (or overwrites) the answer for a question. No state
// transition; revisiting a question later shows the stored choice.
func (s *Session) SelectAnswer(questionID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAnswering {
		return fmt.Errorf("%w: answer from %s", ErrWrongState, s.state)
	}
	q := s.questionLocked(questionID)
	if q == nil {
		return fmt.Errorf("unknown question %q", questionID)
	}
	if index < 0 || index >= len(q.Options) {
		return fmt.Errorf("option %d out of range for question %q", index, questionID)
	}
	s.answers[questionID] = index
	return nil
}

func (s *Session) questionLocked(id string) *model.Question {
	for i := range s.exam.Questions {
		if s.exam.Questions[i].ID == id {
			return &s.exam.Questions[i]
		}
	}
	return nil
}

// Next advances the cursor. Blocked until the current question is answered.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAnswering {
		return fmt.Errorf("%w: next from %s", ErrWrongState, s.state)
	}
	if _, ok := s.answers[s.exam.Questions[s.current].ID]; !ok {
		return ErrNotAnswered
	}
	if s.current < len(s.exam.Questions)-1 {
		s.current++
	}
	return nil
}

// Previous moves the cursor back. Never blocked, clamped at the first
// question.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAnswering {
		return fmt.Errorf("%w: previous from %s", ErrWrongState, s.state)
	}
	if s.current > 0 {
		s.current--
	}
	return nil
}

// Submit posts the full answer set. Blocked unless every question has an
// answer; the submitting state keeps a second submit from starting. A
// network failure still completes the session, in degraded mode with a
// locally scored result.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateAnswering {
		s.mu.Unlock()
		return fmt.Errorf("%w: submit from %s", ErrWrongState, s.state)
	}
	if !s.completeLocked() {
		s.mu.Unlock()
		return ErrIncomplete
	}
	pairs := s.pairsLocked()
	s.state = StateSubmitting
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()

	result, err := s.backend.SubmitExam(ctx, s.examID, pairs)

	s.mu.Lock()
	s.finishLocked(result, err)
	s.mu.Unlock()
	return nil
}

func (s *Session) completeLocked() bool {
	for _, q := range s.exam.Questions {
		if _, ok := s.answers[q.ID]; !ok {
			return false
		}
	}
	return true
}

// pairsLocked converts the answer map into the ordered submission payload,
// following exam question order.
func (s *Session) pairsLocked() []model.AnswerPair {
	pairs := make([]model.AnswerPair, 0, len(s.answers))
	for _, q := range s.exam.Questions {
		if a, ok := s.answers[q.ID]; ok {
			pairs = append(pairs, model.AnswerPair{QuestionID: q.ID, Answer: a})
		}
	}
	return pairs
}

// Done is closed once the session completes, whether by submit or expiry.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Exam returns the loaded exam, nil before Begin succeeds.
func (s *Session) Exam() *model.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exam
}

// CurrentIndex returns the question cursor.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentQuestion returns the question under the cursor.
func (s *Session) CurrentQuestion() model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exam.Questions[s.current]
}

// SelectedAnswer returns the stored answer for the current question.
func (s *Session) SelectedAnswer() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[s.exam.Questions[s.current].ID]
	return a, ok
}

// Remaining returns the remaining time in whole seconds.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Progress returns the cursor's progress fraction, (index+1)/total.
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.current+1) / float64(len(s.exam.Questions))
}

// Result returns the authoritative result, nil when submission failed.
func (s *Session) Result() *model.ExamResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// LocalResult returns the degraded-mode locally scored result, nil when an
// authoritative result exists.
func (s *Session) LocalResult() *LocalResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// SubmitErr reports why no authoritative result is available.
func (s *Session) SubmitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitErr
}

// ToggleSummary flips the post-completion summary view flag.
func (s *Session) ToggleSummary() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showSummary = !s.showSummary
	return s.showSummary
}

// ToggleAnswerKey flips the post-completion answer-key view flag.
func (s *Session) ToggleAnswerKey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showKey = !s.showKey
	return s.showKey
}
