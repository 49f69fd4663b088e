package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector(500 * time.Millisecond)

	c.ClockEvent("play")
	c.ClockEvent("tick")
	c.ClockEvent("tick")
	c.RouteFetchObserve("ok")
	c.GeocodeObserve("nominatim", "error")
	c.FrameObserve("dropped")
	c.SessionOpened(1)
	c.SessionOpened(2)
	c.SessionClosed(1)
	c.NATSSetConnected(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ClockEvents.WithLabelValues("tick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ClockEvents.WithLabelValues("play")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RouteFetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.GeocodeRequests.WithLabelValues("nominatim", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Frames.WithLabelValues("dropped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.SessionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))
	assert.Equal(t, 0.5, testutil.ToFloat64(c.TickInterval))

	c.NATSSetConnected(false)
	assert.Zero(t, testutil.ToFloat64(c.NATSConnected))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(time.Second)
	c.TickObserve(2 * time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pixelpath_tick_duration_seconds_count 1")
	assert.Contains(t, string(body), "pixelpath_active_sessions")
}
