// Package provider turns a user selection into the route sequence that
// playback consumes.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"pixelpath/internal/catalog"
	"pixelpath/internal/logging"
	"pixelpath/internal/osrm"
	"pixelpath/internal/route"
)

// ErrSuperseded is returned by Resolve when a newer selection was issued before
// this one finished. Its result is discarded.
var ErrSuperseded = errors.New("selection superseded")

var ErrClosed = errors.New("provider closed")

// Selection names what to play back. TripID takes precedence over Points.
// When Routed is set the points are sent through the routing service and the
// returned road geometry becomes the sequence.
type Selection struct {
	TripID string           `json:"tripId,omitempty"`
	Points []route.Waypoint `json:"points,omitempty"`
	Routed bool             `json:"routed,omitempty"`
}

// Router fetches a road path visiting points in order.
type Router interface {
	GetRoute(ctx context.Context, points []route.Waypoint) (osrm.Route, error)
}

type Metrics interface {
	RouteFetchObserve(result string)
}

type Option func(*Provider)

func WithMetrics(m Metrics) Option { return func(p *Provider) { p.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(p *Provider) { p.logger = l } }

type Provider struct {
	catalog catalog.Catalog
	router  Router
	logger  *slog.Logger
	metrics Metrics

	gen     atomic.Uint64
	pending atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	current route.Sequence
	steps   []osrm.Step
	tripID  string
	subs    []func(route.Sequence)
}

// New returns a provider with the empty sequence. cat or router may be nil, in
// which case trip and routed selections fail.
func New(cat catalog.Catalog, router Router, opts ...Option) *Provider {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		catalog: cat,
		router:  router,
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// OnChange registers fn to receive each committed sequence. fn runs with the
// provider lock held and must not call back into the provider.
func (p *Provider) OnChange(fn func(route.Sequence)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// Current returns the committed sequence.
func (p *Provider) Current() route.Sequence {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Steps returns the turn-by-turn steps of the last routed selection, if any.
func (p *Provider) Steps() []osrm.Step {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]osrm.Step(nil), p.steps...)
}

// TripID is the trip behind the committed sequence, empty for manual points.
func (p *Provider) TripID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tripID
}

// Pending reports whether a fetch is in flight.
func (p *Provider) Pending() bool { return p.pending.Load() > 0 }

// Resolve builds the sequence for sel and commits it. On failure the current
// sequence is kept and the error is returned.
func (p *Provider) Resolve(ctx context.Context, sel Selection) (route.Sequence, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return route.Sequence{}, ErrClosed
	}
	p.mu.Unlock()

	gen := p.gen.Add(1)
	p.pending.Add(1)
	defer p.pending.Add(-1)

	start := time.Now()
	seq, steps, err := p.fetch(ctx, sel)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen.Load() {
		p.observe("superseded")
		return route.Sequence{}, ErrSuperseded
	}
	if err != nil {
		p.observe("error")
		logging.LogError(p.logger, "route selection failed", err,
			slog.String("component", "provider"),
			slog.String("trip_id", sel.TripID),
			slog.Int("points", len(sel.Points)),
			slog.Bool("routed", sel.Routed))
		return route.Sequence{}, err
	}
	p.observe("ok")
	p.current = seq
	p.steps = steps
	p.tripID = sel.TripID
	logging.LogOperation(p.logger, "route selected",
		slog.String("trip_id", sel.TripID),
		slog.Int("waypoints", seq.Len()),
		slog.Duration("duration", time.Since(start)))
	for _, fn := range p.subs {
		fn(seq)
	}
	return seq, nil
}

// ResolveAsync resolves sel in the background. The prior sequence stays current
// until the fetch completes; failures are only logged.
func (p *Provider) ResolveAsync(sel Selection) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		_, _ = p.Resolve(p.ctx, sel)
	}()
}

// Close cancels in-flight fetches and waits for them.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}

func (p *Provider) fetch(ctx context.Context, sel Selection) (route.Sequence, []osrm.Step, error) {
	points := sel.Points
	if sel.TripID != "" {
		if p.catalog == nil {
			return route.Sequence{}, nil, fmt.Errorf("trip %q: %w", sel.TripID, catalog.ErrTripNotFound)
		}
		trip, err := p.catalog.Get(ctx, sel.TripID)
		if err != nil {
			return route.Sequence{}, nil, fmt.Errorf("load trip %q: %w", sel.TripID, err)
		}
		points = trip.Places
	}

	if !sel.Routed || len(points) < 2 {
		return route.NewSequence(points), nil, nil
	}
	if p.router == nil {
		return route.Sequence{}, nil, fmt.Errorf("no routing service configured: %w", route.ErrNetworkFailure)
	}
	r, err := p.router.GetRoute(ctx, points)
	if err != nil {
		return route.Sequence{}, nil, err
	}
	if len(r.Path) < 2 {
		return route.Sequence{}, nil, fmt.Errorf("routed path has %d points: %w", len(r.Path), route.ErrMalformedResponse)
	}
	return route.NewSequence(labelPath(r.Path, points)), r.Steps, nil
}

// labelPath copies stop labels onto the closest path vertex, scanning forward
// so stops keep their order along the path.
func labelPath(path, stops []route.Waypoint) []route.Waypoint {
	seq := route.NewSequence(path)
	out := seq.Points()
	from := 0
	for _, s := range stops {
		if s.Label == "" {
			continue
		}
		idx := seq.NearestFrom(s.Lat, s.Lon, from)
		if idx < 0 {
			break
		}
		out[idx].Label = s.Label
		from = idx
	}
	return out
}

func (p *Provider) observe(result string) {
	if p.metrics != nil {
		p.metrics.RouteFetchObserve(result)
	}
}
