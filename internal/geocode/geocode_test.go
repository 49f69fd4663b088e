package geocode

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelpath/internal/logging"
)

type recordingMetrics struct {
	mu   sync.Mutex
	seen []string
}

func (r *recordingMetrics) GeocodeObserve(backend, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, backend+":"+result)
}

func serve(t *testing.T, status int, body string) (*httptest.Server, *[]*http.Request) {
	t.Helper()
	var reqs []*http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs = append(reqs, r)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestNominatimSearch(t *testing.T) {
	srv, reqs := serve(t, http.StatusOK, `[
		{"lat":"18.9220","lon":"72.8347","name":"Gateway of India","display_name":"Gateway of India, Apollo Bandar, Mumbai"},
		{"lat":"18.94","lon":"72.83","name":"","display_name":"Chhatrapati Shivaji Terminus"}
	]`)
	m := &recordingMetrics{}
	c := NewNominatim(srv.URL, nil, WithRateLimit(0), WithMetrics(m))

	places := c.Search(context.Background(), "gateway of india")
	require.Len(t, places, 2)
	assert.Equal(t, Place{Lat: 18.922, Lon: 72.8347, Name: "Gateway of India", DisplayName: "Gateway of India, Apollo Bandar, Mumbai"}, places[0])
	assert.Equal(t, "Chhatrapati Shivaji Terminus", places[1].Name, "falls back to display name")
	assert.Equal(t, "Gateway of India", places[0].Waypoint().Label)

	require.Len(t, *reqs, 1)
	r := (*reqs)[0]
	assert.Equal(t, "/search", r.URL.Path)
	assert.Equal(t, "gateway of india", r.URL.Query().Get("q"))
	assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
	assert.Equal(t, []string{"nominatim:ok"}, m.seen)
}

func TestMapTilerSearch(t *testing.T) {
	srv, reqs := serve(t, http.StatusOK, `{"features":[
		{"center":[73.7516,15.5559],"text":"Baga Beach","place_name":"Baga Beach, Goa, India"}
	]}`)
	c := NewMapTiler(srv.URL, "secret", nil, WithRateLimit(0))

	places := c.Search(context.Background(), "baga beach")
	require.Len(t, places, 1)
	assert.Equal(t, 15.5559, places[0].Lat)
	assert.Equal(t, 73.7516, places[0].Lon)
	assert.Equal(t, "Baga Beach, Goa, India", places[0].DisplayName)

	require.Len(t, *reqs, 1)
	assert.Equal(t, "/geocoding/baga beach.json", (*reqs)[0].URL.Path)
	assert.Equal(t, "secret", (*reqs)[0].URL.Query().Get("key"))
}

func TestSearchFailuresYieldEmptyList(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, ``},
		{"bad json", http.StatusOK, `{not json`},
		{"bad coordinate", http.StatusOK, `[{"lat":"north","lon":"1"}]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := serve(t, tc.status, tc.body)
			var buf bytes.Buffer
			m := &recordingMetrics{}
			c := NewNominatim(srv.URL, logging.NewStructuredLogger(&buf, slog.LevelInfo), WithRateLimit(0), WithMetrics(m))

			places := c.Search(context.Background(), "somewhere")
			assert.NotNil(t, places)
			assert.Empty(t, places)
			assert.Contains(t, buf.String(), "geocode search failed")
			assert.Equal(t, []string{"nominatim:error"}, m.seen)
		})
	}

	t.Run("maptiler short center", func(t *testing.T) {
		srv, _ := serve(t, http.StatusOK, `{"features":[{"center":[1]}]}`)
		assert.Empty(t, NewMapTiler(srv.URL, "k", nil, WithRateLimit(0)).Search(context.Background(), "x"))
	})
}

func TestBlankQueryMakesNoRequest(t *testing.T) {
	srv, reqs := serve(t, http.StatusOK, `[]`)
	c := NewNominatim(srv.URL, nil)
	assert.Empty(t, c.Search(context.Background(), "   "))
	assert.Empty(t, *reqs)
}

func TestCancelledContextWhileThrottled(t *testing.T) {
	srv, reqs := serve(t, http.StatusOK, `[]`)
	c := NewNominatim(srv.URL, nil, WithRateLimit(0.001))

	// first call consumes the single burst token
	c.Search(context.Background(), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, c.Search(ctx, "b"))
	assert.Len(t, *reqs, 1)
}
