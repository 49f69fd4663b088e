package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelpath/internal/catalog"
	"pixelpath/internal/osrm"
	"pixelpath/internal/route"
)

type fakeRouter struct {
	mu    sync.Mutex
	calls int
	// gate, when set, blocks GetRoute until a value arrives or ctx ends
	gate  chan struct{}
	route osrm.Route
	err   error
}

func (f *fakeRouter) GetRoute(ctx context.Context, points []route.Waypoint) (osrm.Route, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return osrm.Route{}, ctx.Err()
		}
	}
	return f.route, f.err
}

type countingMetrics struct {
	mu      sync.Mutex
	results map[string]int
}

func (m *countingMetrics) RouteFetchObserve(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = map[string]int{}
	}
	m.results[result]++
}

func (m *countingMetrics) count(result string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[result]
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func pts(n int) []route.Waypoint {
	out := make([]route.Waypoint, n)
	for i := range out {
		out[i] = route.Waypoint{Lat: float64(i), Lon: float64(i)}
	}
	return out
}

func newProvider(t *testing.T, r Router, opts ...Option) *Provider {
	t.Helper()
	p := New(catalog.Samples(), r, append([]Option{WithLogger(quietLogger())}, opts...)...)
	t.Cleanup(p.Close)
	return p
}

func TestResolveManualPoints(t *testing.T) {
	p := newProvider(t, nil)
	var got []route.Sequence
	p.OnChange(func(s route.Sequence) { got = append(got, s) })

	seq, err := p.Resolve(context.Background(), Selection{Points: pts(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, seq.Len())
	assert.Equal(t, 3, p.Current().Len())
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Len())
}

func TestResolveTooFewPointsCommitsEmpty(t *testing.T) {
	r := &fakeRouter{}
	p := newProvider(t, r)
	_, err := p.Resolve(context.Background(), Selection{Points: pts(4)})
	require.NoError(t, err)

	for _, sel := range []Selection{{Points: pts(1)}, {Points: pts(1), Routed: true}, {}} {
		seq, err := p.Resolve(context.Background(), sel)
		require.NoError(t, err)
		assert.True(t, seq.Empty())
		assert.True(t, p.Current().Empty())
	}
	assert.Zero(t, r.calls, "routing needs two points")
}

func TestResolveTrip(t *testing.T) {
	p := newProvider(t, nil)
	seq, err := p.Resolve(context.Background(), Selection{TripID: "1"})
	require.NoError(t, err)
	assert.Equal(t, 3, seq.Len())
	assert.Equal(t, "1", p.TripID())
	assert.Equal(t, "Gateway", seq.At(0).Label)
}

func TestResolveUnknownTripKeepsSequence(t *testing.T) {
	m := &countingMetrics{}
	p := newProvider(t, nil, WithMetrics(m))
	_, err := p.Resolve(context.Background(), Selection{Points: pts(3)})
	require.NoError(t, err)

	_, err = p.Resolve(context.Background(), Selection{TripID: "nope"})
	assert.ErrorIs(t, err, catalog.ErrTripNotFound)
	assert.Equal(t, 3, p.Current().Len())
	assert.Equal(t, 1, m.count("error"))
	assert.Equal(t, 1, m.count("ok"))
}

func TestResolveRouted(t *testing.T) {
	path := []route.Waypoint{{Lat: 0, Lon: 0}, {Lat: 0.5, Lon: 0.5}, {Lat: 1, Lon: 1}, {Lat: 1.5, Lon: 1.5}, {Lat: 2, Lon: 2}}
	r := &fakeRouter{route: osrm.Route{
		Path:  path,
		Steps: []osrm.Step{{Name: "Main St", Maneuver: "depart"}},
	}}
	p := newProvider(t, r)

	stops := []route.Waypoint{{Lat: 0, Lon: 0, Label: "A"}, {Lat: 1.01, Lon: 1, Label: "B"}, {Lat: 2, Lon: 2, Label: "C"}}
	seq, err := p.Resolve(context.Background(), Selection{Points: stops, Routed: true})
	require.NoError(t, err)
	require.Equal(t, 5, seq.Len())
	assert.Equal(t, "A", seq.At(0).Label)
	assert.Equal(t, "B", seq.At(2).Label)
	assert.Equal(t, "C", seq.At(4).Label)
	assert.Empty(t, seq.At(1).Label)
	assert.Len(t, p.Steps(), 1)
	assert.Empty(t, path[0].Label, "router output is not mutated")
}

func TestResolveRoutedFailureKeepsSequence(t *testing.T) {
	r := &fakeRouter{err: route.ErrMalformedResponse}
	p := newProvider(t, r)
	_, err := p.Resolve(context.Background(), Selection{Points: pts(2)})
	require.NoError(t, err)

	_, err = p.Resolve(context.Background(), Selection{Points: pts(3), Routed: true})
	assert.ErrorIs(t, err, route.ErrMalformedResponse)
	assert.Equal(t, 2, p.Current().Len())
}

func TestResolveShortRoutedPathKeepsSequence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"geometry":{"coordinates":[[1,2]]}}]}`))
	}))
	defer srv.Close()

	routers := map[string]Router{
		"osrm":         osrm.NewClient(srv.URL, "driving", time.Second),
		"single point": &fakeRouter{route: osrm.Route{Path: pts(1)}},
	}
	for name, r := range routers {
		t.Run(name, func(t *testing.T) {
			p := newProvider(t, r)
			_, err := p.Resolve(context.Background(), Selection{Points: pts(3)})
			require.NoError(t, err)

			_, err = p.Resolve(context.Background(), Selection{Points: pts(2), Routed: true})
			assert.ErrorIs(t, err, route.ErrMalformedResponse)
			assert.Equal(t, 3, p.Current().Len())
		})
	}
}

func TestResolveRoutedWithoutRouter(t *testing.T) {
	p := newProvider(t, nil)
	_, err := p.Resolve(context.Background(), Selection{Points: pts(3), Routed: true})
	assert.ErrorIs(t, err, route.ErrNetworkFailure)
	assert.True(t, p.Current().Empty())
}

func TestLastSelectionWins(t *testing.T) {
	gate := make(chan struct{})
	r := &fakeRouter{gate: gate, route: osrm.Route{Path: pts(6)}}
	m := &countingMetrics{}
	p := newProvider(t, r, WithMetrics(m))

	slow := make(chan error, 1)
	go func() {
		_, err := p.Resolve(context.Background(), Selection{Points: pts(2), Routed: true})
		slow <- err
	}()
	require.Eventually(t, p.Pending, time.Second, time.Millisecond)

	// a newer manual selection commits while the routed one is still in flight
	_, err := p.Resolve(context.Background(), Selection{Points: pts(3)})
	require.NoError(t, err)
	close(gate)

	select {
	case err := <-slow:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("routed selection did not finish")
	}
	assert.Equal(t, 3, p.Current().Len())
	assert.Equal(t, 1, m.count("superseded"))
	assert.False(t, p.Pending())
}

func TestResolveAsync(t *testing.T) {
	r := &fakeRouter{route: osrm.Route{Path: pts(4)}}
	p := newProvider(t, r)

	changed := make(chan route.Sequence, 1)
	p.OnChange(func(s route.Sequence) { changed <- s })
	p.ResolveAsync(Selection{Points: pts(2), Routed: true})

	select {
	case s := <-changed:
		assert.Equal(t, 4, s.Len())
	case <-time.After(time.Second):
		t.Fatal("async selection never committed")
	}
}

func TestResolveAsyncKeepsPriorSequenceWhilePending(t *testing.T) {
	gate := make(chan struct{})
	r := &fakeRouter{gate: gate, route: osrm.Route{Path: pts(5)}}
	p := newProvider(t, r)
	_, err := p.Resolve(context.Background(), Selection{Points: pts(3)})
	require.NoError(t, err)

	changed := make(chan route.Sequence, 1)
	p.OnChange(func(s route.Sequence) { changed <- s })
	p.ResolveAsync(Selection{Points: pts(2), Routed: true})
	require.Eventually(t, p.Pending, time.Second, time.Millisecond)

	assert.Equal(t, 3, p.Current().Len())
	assert.Empty(t, changed)

	close(gate)
	select {
	case s := <-changed:
		assert.Equal(t, 5, s.Len())
	case <-time.After(time.Second):
		t.Fatal("async selection never committed")
	}
	assert.Equal(t, 5, p.Current().Len())
	assert.Eventually(t, func() bool { return !p.Pending() }, time.Second, time.Millisecond)
}

func TestCloseCancelsInFlight(t *testing.T) {
	r := &fakeRouter{gate: make(chan struct{})}
	p := New(nil, r, WithLogger(quietLogger()))
	p.ResolveAsync(Selection{Points: pts(2), Routed: true})
	require.Eventually(t, p.Pending, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	assert.True(t, p.Current().Empty())

	_, err := p.Resolve(context.Background(), Selection{Points: pts(2)})
	assert.True(t, errors.Is(err, ErrClosed))
}
