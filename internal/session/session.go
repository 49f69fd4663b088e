// Package session carries the caller's authentication state. The auth backend
// owns login; this side only asks whether a cookie belongs to a logged-in user.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"pixelpath/internal/route"
)

type User struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

// Checker talks to the auth backend.
type Checker struct {
	baseURL string
	http    *http.Client
}

// NewChecker returns a checker for baseURL. An empty baseURL disables auth:
// every session is logged out and no request is made.
func NewChecker(baseURL string, timeout time.Duration) *Checker {
	return &Checker{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Checker) Enabled() bool { return c != nil && c.baseURL != "" }

type checkResponse struct {
	LoggedIn bool  `json:"loggedIn"`
	User     *User `json:"user"`
}

// Check asks the backend about cookie, the raw Cookie header of the caller.
func (c *Checker) Check(ctx context.Context, cookie string) (bool, User, error) {
	if !c.Enabled() {
		return false, User{}, nil
	}
	resp, err := c.do(ctx, http.MethodGet, "/auth/check", cookie)
	if err != nil {
		return false, User{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return false, User{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, User{}, fmt.Errorf("auth check returned %d: %w", resp.StatusCode, route.ErrNetworkFailure)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, User{}, fmt.Errorf("auth check: read body: %v: %w", err, route.ErrNetworkFailure)
	}
	var parsed checkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, User{}, fmt.Errorf("auth check: %v: %w", err, route.ErrMalformedResponse)
	}
	if !parsed.LoggedIn {
		return false, User{}, nil
	}
	var u User
	if parsed.User != nil {
		u = *parsed.User
	}
	return true, u, nil
}

// Logout ends the backend session for cookie.
func (c *Checker) Logout(ctx context.Context, cookie string) error {
	if !c.Enabled() {
		return nil
	}
	resp, err := c.do(ctx, http.MethodPost, "/auth/logout", cookie)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("auth logout returned %d: %w", resp.StatusCode, route.ErrNetworkFailure)
	}
	return nil
}

func (c *Checker) do(ctx context.Context, method, path, cookie string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth %s: %v: %w", path, err, route.ErrNetworkFailure)
	}
	return resp, nil
}

// Session is the explicit auth context handed to request handling. It replaces
// ambient "who is logged in" state: whoever holds the Session knows.
type Session struct {
	checker *Checker
	cookie  string

	mu       sync.RWMutex
	loggedIn bool
	user     User
	closed   bool
}

// Open checks cookie against the backend. The returned session is always
// usable; when the check fails it is logged out and the error says why.
func Open(ctx context.Context, checker *Checker, cookie string) (*Session, error) {
	s := &Session{checker: checker, cookie: cookie}
	ok, u, err := checker.Check(ctx, cookie)
	if err != nil {
		return s, err
	}
	s.loggedIn, s.user = ok, u
	return s, nil
}

// LoggedIn is the only thing playback ever needs from auth.
func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn && !s.closed
}

func (s *Session) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loggedIn || s.closed {
		return User{}, false
	}
	return s.user, true
}

// Logout ends the session at the backend and locally. The local session is
// logged out even if the backend call fails.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.loggedIn = false
	s.user = User{}
	s.mu.Unlock()
	return s.checker.Logout(ctx, s.cookie)
}

// Close drops the session. A closed session reports logged out.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

type ctxKey struct{}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session in ctx, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
