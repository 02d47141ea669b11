// Package api implements the authenticated HTTP client for the BrainSift
// backend. Every request carries the persisted access token as a bearer
// credential; a 401 triggers a single shared token refresh and exactly one
// resend of the failed request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scriptbloxx/brainsift-cli/internal/model"
)

// Identity provides and persists the local identity record. Only the refresh
// path mutates it; ordinary requests just read the access token.
type Identity interface {
	// Current returns the persisted identity, or nil when unauthenticated.
	Current() *model.User
	// UpdateTokens merges a new token pair into the identity record.
	// An empty refresh token keeps the stored one.
	UpdateTokens(access, refresh string) error
	// Clear erases the identity record.
	Clear() error
}

// Client talks to the BrainSift backend.
type Client struct {
	baseURL  string
	http     *http.Client
	identity Identity

	// refreshMu guards the shared in-flight refresh handle. Concurrent 401s
	// converge on one refresh call and all await the same outcome.
	refreshMu sync.Mutex
	refresh   *refreshCall
}

type refreshCall struct {
	done chan struct{}
	err  error
}

// New creates a client for the given base URL. The identity store may hold
// no record yet; such requests are sent unauthenticated.
func New(baseURL string, identity Identity) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 60 * time.Second},
		identity: identity,
	}
}

// attempt is one logical request plus its retry budget. The body is kept as
// bytes so the request can be rebuilt for the single post-refresh resend.
type attempt struct {
	method      string
	path        string
	body        []byte
	contentType string
	retried     bool
}

// do sends a JSON request and decodes the response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	a := attempt{method: method, path: path, contentType: "application/json"}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		a.body = data
	}
	return c.send(ctx, &a, out)
}

// send performs one attempt, recovering from a single 401 via the shared
// refresh operation. The retried attempt is never re-retried: a second 401
// surfaces to the caller.
func (c *Client) send(ctx context.Context, a *attempt, out any) error {
	req, err := http.NewRequestWithContext(ctx, a.method, c.baseURL+a.path, bytes.NewReader(a.body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if a.body != nil {
		req.Header.Set("Content-Type", a.contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if u := c.identity.Current(); u != nil && u.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+u.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", a.method, a.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && !a.retried {
		a.retried = true
		_, _ = io.Copy(io.Discard, resp.Body)
		slog.Debug("access token rejected, refreshing", "method", a.method, "path", a.path)
		if err := c.awaitRefresh(ctx); err != nil {
			return err
		}
		return c.send(ctx, a, out)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// awaitRefresh joins the in-flight refresh if one exists, otherwise starts
// it. All waiters receive the same outcome.
func (c *Client) awaitRefresh(ctx context.Context) error {
	c.refreshMu.Lock()
	call := c.refresh
	if call == nil {
		call = &refreshCall{done: make(chan struct{})}
		c.refresh = call
		go func() {
			// The refresh outcome is shared; it must not die with the
			// first caller's context.
			call.err = c.refreshTokens(context.WithoutCancel(ctx))
			c.refreshMu.Lock()
			c.refresh = nil
			c.refreshMu.Unlock()
			close(call.done)
		}()
	}
	c.refreshMu.Unlock()

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// refreshTokens exchanges the stored refresh token for a new access token.
// Failure is fatal for the session: the identity record is erased and
// ErrSessionExpired is reported to every waiter.
func (c *Client) refreshTokens(ctx context.Context) error {
	u := c.identity.Current()
	if u == nil || u.RefreshToken == "" {
		_ = c.identity.Clear()
		return ErrSessionExpired
	}

	data, err := json.Marshal(refreshRequest{RefreshToken: u.RefreshToken})
	if err != nil {
		return fmt.Errorf("encode refresh request: %w", err)
	}
	// Plain request on purpose: the refresh endpoint is unauthenticated and
	// must not recurse into the 401 recovery path.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/authentication/refresh-token", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		_ = c.identity.Clear()
		slog.Warn("token refresh failed", "error", err)
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = c.identity.Clear()
		slog.Warn("refresh token rejected", "status", resp.StatusCode)
		return ErrSessionExpired
	}

	var tokens refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		_ = c.identity.Clear()
		return fmt.Errorf("%w: decode refresh response: %v", ErrSessionExpired, err)
	}
	if err := c.identity.UpdateTokens(tokens.AccessToken, tokens.RefreshToken); err != nil {
		return fmt.Errorf("persist refreshed tokens: %w", err)
	}
	slog.Debug("access token refreshed")
	return nil
}
