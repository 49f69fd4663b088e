// Package geocode turns free-text queries into places using Nominatim or
// MapTiler. Failures never reach the caller: they are logged and produce an
// empty result list.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pixelpath/internal/logging"
	"pixelpath/internal/route"
)

type Place struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName"`
}

// Waypoint converts the place to a labelled route point.
func (p Place) Waypoint() route.Waypoint {
	return route.Waypoint{Lat: p.Lat, Lon: p.Lon, Label: p.Name}
}

// Metrics receives one observation per upstream search.
type Metrics interface {
	GeocodeObserve(backend, result string)
}

// backend performs one upstream request. Errors carry route.ErrNetworkFailure or
// route.ErrMalformedResponse.
type backend interface {
	name() string
	search(ctx context.Context, hc *http.Client, query string) ([]Place, error)
}

type Client struct {
	backend backend
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics Metrics
}

type Option func(*Client)

func WithMetrics(m Metrics) Option { return func(c *Client) { c.metrics = m } }

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithRateLimit throttles upstream requests to perSecond. Zero or negative
// disables throttling.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func newClient(b backend, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		backend: b,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		logger:  logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewNominatim searches an OSM Nominatim instance.
func NewNominatim(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	return newClient(&nominatim{baseURL: strings.TrimRight(baseURL, "/")}, logger, opts...)
}

// NewMapTiler searches the MapTiler geocoding API.
func NewMapTiler(baseURL, key string, logger *slog.Logger, opts ...Option) *Client {
	return newClient(&mapTiler{baseURL: strings.TrimRight(baseURL, "/"), key: key}, logger, opts...)
}

// Search returns matching places. It never fails: upstream and decoding errors
// are logged and yield an empty list. A blank query makes no request.
func (c *Client) Search(ctx context.Context, query string) []Place {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Place{}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.observe("cancelled")
			return []Place{}
		}
	}
	start := time.Now()
	places, err := c.backend.search(ctx, c.http, query)
	if err != nil {
		c.observe("error")
		logging.LogError(c.logger, "geocode search failed", err,
			slog.String("component", "geocode"),
			slog.String("backend", c.backend.name()),
			slog.String("query", query))
		return []Place{}
	}
	c.observe("ok")
	logging.LogOperation(c.logger, "geocode search",
		slog.String("backend", c.backend.name()),
		slog.Int("results", len(places)),
		slog.Duration("duration", time.Since(start)))
	if places == nil {
		places = []Place{}
	}
	return places
}

func (c *Client) observe(result string) {
	if c.metrics != nil {
		c.metrics.GeocodeObserve(c.backend.name(), result)
	}
}

func getJSON(ctx context.Context, hc *http.Client, u string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pixelpath/1.0")
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%v: %w", err, route.ErrNetworkFailure)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %w", resp.StatusCode, route.ErrNetworkFailure)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %v: %w", err, route.ErrNetworkFailure)
	}
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("decode: %v: %w", err, route.ErrMalformedResponse)
	}
	return nil
}
