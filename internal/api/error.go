package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrSessionExpired is returned when the refresh token is missing or rejected.
// The persisted identity has already been erased when this error surfaces;
// the only recovery is logging in again.
var ErrSessionExpired = errors.New("session expired, please log in again")

// APIError is a non-2xx response from the backend, carrying the
// server-provided message when one was present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("api: request failed with status %d", e.StatusCode)
}

// errorBody matches the backend's error envelope. Some endpoints use
// "message", others "error"; either is accepted.
type errorBody struct {
	Message string `json:"message"`
	Err     string `json:"error"`
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return apiErr
	}
	var body errorBody
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			apiErr.Message = body.Message
		} else {
			apiErr.Message = body.Err
		}
	}
	return apiErr
}
