package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/scriptbloxx/brainsift-cli/internal/model"
)

// Login exchanges credentials for an identity record with a fresh token pair.
// The caller decides whether to persist it.
func (c *Client) Login(ctx context.Context, form model.LoginForm) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodPost, "/api/authentication/login", form, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Signup creates an account and returns the new identity record.
func (c *Client) Signup(ctx context.Context, form model.SignupForm) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodPost, "/api/user/", form, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword asks the backend to email a reset link.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/user/forgot-password", forgotPasswordRequest{Email: email}, nil)
}

// ResetPassword sets a new password given a reset token from the email link.
func (c *Client) ResetPassword(ctx context.Context, form model.ResetPasswordForm) error {
	return c.do(ctx, http.MethodPatch, "/api/user/reset-password", form, nil)
}

// UpdateProfile applies a partial profile edit and returns the updated record.
func (c *Client) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodPatch, "/api/user/profile", update, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

type generateResponse struct {
	ExamID string `json:"examId"`
}

// GenerateExam uploads source content plus exam parameters as multipart form
// data and returns the created exam id. Exactly one of form.FilePath (upload
// supplies the content) or form.Text is expected; validation happens before
// this call.
func (c *Client) GenerateExam(ctx context.Context, form model.GenerateForm, upload io.Reader) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"title":         form.Title,
		"timerMinutes":  strconv.Itoa(form.TimerMinutes),
		"questionCount": strconv.Itoa(form.QuestionCount),
		"visibility":    string(form.Visibility),
		"tags":          strings.Join(form.Tags, ","),
	}
	if form.Text != "" {
		fields["text"] = form.Text
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if upload != nil {
		part, err := w.CreateFormFile("file", form.FilePath)
		if err != nil {
			return "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := io.Copy(part, upload); err != nil {
			return "", fmt.Errorf("read upload: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finish multipart body: %w", err)
	}

	a := attempt{
		method:      http.MethodPost,
		path:        "/api/exam/generate",
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	}
	var resp generateResponse
	if err := c.send(ctx, &a, &resp); err != nil {
		return "", err
	}
	return resp.ExamID, nil
}

// GetExam fetches the content and question set for one attempt.
func (c *Client) GetExam(ctx context.Context, id string) (*model.Exam, error) {
	var exam model.Exam
	if err := c.do(ctx, http.MethodGet, "/api/exam/"+id, nil, &exam); err != nil {
		return nil, err
	}
	if exam.ID == "" {
		exam.ID = id
	}
	if err := exam.Validate(); err != nil {
		return nil, fmt.Errorf("malformed exam %s: %w", id, err)
	}
	return &exam, nil
}

type submitRequest struct {
	ExamID  string             `json:"examId"`
	Answers []model.AnswerPair `json:"answers"`
}

// SubmitExam posts the ordered answer list and returns the authoritative
// result.
func (c *Client) SubmitExam(ctx context.Context, examID string, answers []model.AnswerPair) (*model.ExamResult, error) {
	var result model.ExamResult
	if err := c.do(ctx, http.MethodPost, "/api/exam/submit", submitRequest{ExamID: examID, Answers: answers}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
