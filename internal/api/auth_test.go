package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelpath/internal/session"
)

func authBackend(t *testing.T) (*session.Checker, *atomic.Int64) {
	t.Helper()
	checks := new(atomic.Int64)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/check":
			checks.Add(1)
			if r.Header.Get("Cookie") == "sid=good" {
				_, _ = w.Write([]byte(`{"loggedIn":true,"user":{"name":"Asha","email":"asha@example.com"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"loggedIn":false}`))
		case "/auth/logout":
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(backend.Close)
	return session.NewChecker(backend.URL, time.Second), checks
}

func getWithCookie(t *testing.T, method, url, cookie string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthSessionPassThrough(t *testing.T) {
	checker, _ := authBackend(t)
	srv := newTestServer(t, stubRouter{}, func(d *Deps) { d.Auth = checker })

	resp := getWithCookie(t, http.MethodGet, srv.URL+"/api/session", "sid=good")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ar authResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ar))
	assert.True(t, ar.Enabled)
	assert.True(t, ar.LoggedIn)
	require.NotNil(t, ar.User)
	assert.Equal(t, "Asha", ar.User.Name)

	resp = getWithCookie(t, http.MethodGet, srv.URL+"/api/session", "sid=bad")
	ar = authResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ar))
	assert.False(t, ar.LoggedIn)
	assert.Nil(t, ar.User)

	resp = getWithCookie(t, http.MethodPost, srv.URL+"/api/session/logout", "sid=good")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRequireLogin(t *testing.T) {
	checker, _ := authBackend(t)
	srv := newTestServer(t, stubRouter{}, func(d *Deps) {
		d.Auth = checker
		d.RequireLogin = true
	})

	resp := getWithCookie(t, http.MethodPost, srv.URL+"/api/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = getWithCookie(t, http.MethodPost, srv.URL+"/api/sessions", "sid=good")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// trips stay public
	resp = getWithCookie(t, http.MethodGet, srv.URL+"/api/trips", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthAndMetricsSkipAuthCheck(t *testing.T) {
	checker, checks := authBackend(t)
	srv := newTestServer(t, stubRouter{}, func(d *Deps) { d.Auth = checker })

	for _, path := range []string{"/health", "/healthz", "/metrics"} {
		resp := getWithCookie(t, http.MethodGet, srv.URL+path, "sid=good")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
	assert.Zero(t, checks.Load())

	getWithCookie(t, http.MethodGet, srv.URL+"/api/trips", "sid=good")
	assert.Equal(t, int64(1), checks.Load())
}

func TestAuthDisabled(t *testing.T) {
	srv := newTestServer(t, stubRouter{})
	resp := getWithCookie(t, http.MethodGet, srv.URL+"/api/session", "sid=good")
	var ar authResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ar))
	assert.False(t, ar.Enabled)
	assert.False(t, ar.LoggedIn)
}
