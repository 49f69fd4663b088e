package api

import (
	"log/slog"
	"net/http"

	"pixelpath/internal/logging"
	"pixelpath/internal/session"
)

type authResponse struct {
	Enabled  bool          `json:"enabled"`
	LoggedIn bool          `json:"loggedIn"`
	User     *session.User `json:"user,omitempty"`
}

// openSession attaches the caller's auth session to the request context. A
// failed check leaves the caller logged out; it never fails the request.
func (h *handler) openSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		s, err := session.Open(r.Context(), h.Auth, r.Header.Get("Cookie"))
		if err != nil {
			logging.LogError(h.Logger, "auth check failed", err, slog.String("component", "api"))
		}
		defer s.Close()
		next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), s)))
	})
}

func (h *handler) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.RequireLogin {
			if s := session.FromContext(r.Context()); s == nil || !s.LoggedIn() {
				writeError(w, http.StatusUnauthorized, "login required")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) getAuthSession(w http.ResponseWriter, r *http.Request) {
	resp := authResponse{Enabled: h.Auth.Enabled()}
	if s := session.FromContext(r.Context()); s != nil {
		if u, ok := s.User(); ok {
			resp.LoggedIn = true
			resp.User = &u
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if s == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.Logout(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
