// Package binding connects a playback clock to its widgets. Frames flow out to
// widgets; clicks flow back in as seeks. Nothing here writes playback state
// except through the clock's own commands.
package binding

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pixelpath/internal/logging"
	"pixelpath/internal/playback"
	"pixelpath/internal/route"
)

// Frame is what a widget needs to draw one moment of playback.
type Frame struct {
	Session  string            `json:"session"`
	Event    string            `json:"event"`
	State    playback.State    `json:"state"`
	Progress playback.Snapshot `json:"progress"`
	Route    []route.Waypoint  `json:"route,omitempty"`

	// RouteChanged marks frames whose Route replaces the widget's route. An
	// empty Route with RouteChanged set clears it.
	RouteChanged bool      `json:"routeChanged,omitempty"`
	Time         time.Time `json:"time"`
}

// Widget renders frames. Render is called from a single goroutine per binding.
type Widget interface {
	Render(ctx context.Context, f Frame) error
}

type WidgetFunc func(ctx context.Context, f Frame) error

func (fn WidgetFunc) Render(ctx context.Context, f Frame) error { return fn(ctx, f) }

// Controller is the part of the clock the binding drives.
type Controller interface {
	Play() error
	Pause() error
	Seek(i int) error
	Status() (playback.Status, error)
}

// Event is an inbound widget interaction.
type Event interface{ event() }

// MapClick is a click on the map at a coordinate.
type MapClick struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimelineClick is a click on a timeline entry.
type TimelineClick struct {
	Index int `json:"index"`
}

func (MapClick) event()      {}
func (TimelineClick) event() {}

type Metrics interface {
	FrameObserve(result string)
}

type Option func(*Binding)

func WithLogger(l *slog.Logger) Option { return func(b *Binding) { b.logger = l } }

func WithMetrics(m Metrics) Option { return func(b *Binding) { b.metrics = m } }

// WithBuffer sets how many frames may wait for delivery before the oldest is
// dropped.
func WithBuffer(n int) Option {
	return func(b *Binding) {
		if n > 0 {
			b.frames = make(chan Frame, n)
		}
	}
}

const defaultBuffer = 16

type Binding struct {
	session string
	ctrl    Controller
	logger  *slog.Logger
	metrics Metrics

	frames chan Frame
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	widgets map[int]Widget
	nextID  int
}

// New starts the delivery goroutine for session. Register Listener with the
// clock to feed it.
func New(session string, ctrl Controller, opts ...Option) *Binding {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Binding{
		session: session,
		ctrl:    ctrl,
		logger:  slog.Default(),
		frames:  make(chan Frame, defaultBuffer),
		ctx:     ctx,
		cancel:  cancel,
		widgets: make(map[int]Widget),
	}
	for _, o := range opts {
		o(b)
	}
	b.wg.Add(1)
	go b.deliver()
	return b
}

// Listener adapts clock updates into frames. It never blocks the clock.
func (b *Binding) Listener() playback.Listener {
	return func(u playback.Update) {
		f := Frame{
			Session:  b.session,
			Event:    u.Event,
			State:    u.State,
			Progress: u.Progress,
			Time:     time.Now().UTC(),
		}
		if u.RouteChanged {
			f.Route = u.Route.Points()
			f.RouteChanged = true
		}
		b.enqueue(f)
	}
}

// Attach adds a widget and returns a function that removes it.
func (b *Binding) Attach(w Widget) (detach func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.widgets[id] = w
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.widgets, id)
		b.mu.Unlock()
	}
}

// FullFrame describes the current state including the route, for widgets that
// just connected.
func (b *Binding) FullFrame() (Frame, error) {
	st, err := b.ctrl.Status()
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Session:  b.session,
		Event:    "sync",
		State:    st.State,
		Progress: st.Progress,
		Route:    st.Route.Points(),
		Time:     time.Now().UTC(),

		RouteChanged: true,
	}, nil
}

// HandleEvent turns a widget interaction into a clock command. Events on an
// empty route are ignored.
func (b *Binding) HandleEvent(e Event) error {
	st, err := b.ctrl.Status()
	if err != nil {
		return err
	}
	if st.Route.Empty() {
		return nil
	}
	switch ev := e.(type) {
	case MapClick:
		return b.ctrl.Seek(st.Route.Nearest(ev.Lat, ev.Lng))
	case TimelineClick:
		return b.ctrl.Seek(ev.Index)
	default:
		return errors.New("unknown event")
	}
}

// Play and Pause let widgets drive the clock without holding it.
func (b *Binding) Play() error  { return b.ctrl.Play() }
func (b *Binding) Pause() error { return b.ctrl.Pause() }

// Close stops delivery. Frames still queued are discarded.
func (b *Binding) Close() {
	b.cancel()
	b.wg.Wait()
}

// enqueue adds f, dropping the oldest queued frame when full. A dropped frame's
// route is carried forward so widgets never miss a route change.
func (b *Binding) enqueue(f Frame) {
	for {
		select {
		case b.frames <- f:
			return
		default:
		}
		select {
		case old := <-b.frames:
			if old.RouteChanged && !f.RouteChanged {
				f.Route, f.RouteChanged = old.Route, true
			}
			b.observe("dropped")
		default:
		}
	}
}

func (b *Binding) deliver() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case f := <-b.frames:
			b.render(f)
		}
	}
}

func (b *Binding) render(f Frame) {
	b.mu.RLock()
	widgets := make([]Widget, 0, len(b.widgets))
	for _, w := range b.widgets {
		widgets = append(widgets, w)
	}
	b.mu.RUnlock()

	for _, w := range widgets {
		if err := w.Render(b.ctx, f); err != nil {
			b.observe("error")
			logging.LogError(b.logger, "widget render failed", err,
				slog.String("component", "binding"),
				slog.String("session", b.session))
			continue
		}
		b.observe("ok")
	}
}

func (b *Binding) observe(result string) {
	if b.metrics != nil {
		b.metrics.FrameObserve(result)
	}
}
