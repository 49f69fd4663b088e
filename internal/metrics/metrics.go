package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter

	ClockEvents *prometheus.CounterVec // event label: play|pause|seek|reset|tick|end|route|speed

	RouteFetches    *prometheus.CounterVec // result label: ok|error|superseded
	GeocodeRequests *prometheus.CounterVec // backend, result labels
	Frames          *prometheus.CounterVec // result label: ok|error|dropped

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	TickDuration    prometheus.Histogram
	PublishDuration prometheus.Histogram

	TickInterval prometheus.Gauge // seconds, at 1x
}

func NewCollector(tickInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelpath_active_sessions",
			Help: "Number of open playback sessions.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpath_sessions_created_total",
			Help: "Total playback sessions created.",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpath_sessions_closed_total",
			Help: "Total playback sessions closed.",
		}),
		ClockEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelpath_clock_events_total",
			Help: "Playback clock state changes by event.",
		}, []string{"event"}),
		RouteFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelpath_route_fetches_total",
			Help: "Route selections resolved, by result.",
		}, []string{"result"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelpath_geocode_requests_total",
			Help: "Geocoding searches by backend and result.",
		}, []string{"backend", "result"}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelpath_frames_total",
			Help: "Frames handed to widgets, by result.",
		}, []string{"result"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpath_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpath_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelpath_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelpath_tick_duration_seconds",
			Help:    "Duration of playback tick handling, listeners included.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelpath_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelpath_tick_interval_seconds",
			Help: "Configured tick interval at 1x speed.",
		}),
	}

	reg.MustRegister(
		c.ActiveSessions, c.SessionsCreated, c.SessionsClosed,
		c.ClockEvents, c.RouteFetches, c.GeocodeRequests, c.Frames,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.TickDuration, c.PublishDuration, c.TickInterval,
	)

	c.TickInterval.Set(tickInterval.Seconds())

	return c
}

func (c *Collector) ClockEvent(event string) { c.ClockEvents.WithLabelValues(event).Inc() }

func (c *Collector) TickObserve(d time.Duration) { c.TickDuration.Observe(d.Seconds()) }

func (c *Collector) RouteFetchObserve(result string) { c.RouteFetches.WithLabelValues(result).Inc() }

func (c *Collector) GeocodeObserve(backend, result string) {
	c.GeocodeRequests.WithLabelValues(backend, result).Inc()
}

func (c *Collector) FrameObserve(result string) { c.Frames.WithLabelValues(result).Inc() }

func (c *Collector) NATSPublishedInc() { c.NATSPublished.Inc() }

func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }

func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

func (c *Collector) SessionOpened(active int) {
	c.SessionsCreated.Inc()
	c.ActiveSessions.Set(float64(active))
}

func (c *Collector) SessionClosed(active int) {
	c.SessionsClosed.Inc()
	c.ActiveSessions.Set(float64(active))
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics listening", slog.String("addr", addr))
	return srv
}
