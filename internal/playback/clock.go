package playback

import (
	"errors"
	"fmt"
	"time"

	"pixelpath/internal/route"
)

var (
	ErrClosed       = errors.New("playback clock closed")
	ErrInvalidSpeed = errors.New("speed multiplier must be positive")
)

type Mode int

const (
	Idle Mode = iota
	Running
)

func (m Mode) String() string {
	if m == Running {
		return "running"
	}
	return "idle"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "running":
		*m = Running
	case "idle":
		*m = Idle
	default:
		return fmt.Errorf("unknown playback mode %q", b)
	}
	return nil
}

// State is the mutable part of playback. Only the clock's loop goroutine writes
// it; everybody else sees copies.
type State struct {
	CurrentIndex int           `json:"currentIndex"`
	IsPlaying    bool          `json:"isPlaying"`
	Mode         Mode          `json:"mode"`
	TickInterval time.Duration `json:"tickInterval"`
	Speed        float64       `json:"speed"`
}

// Status is a consistent read of the clock.
type Status struct {
	State    State          `json:"state"`
	Progress Snapshot       `json:"progress"`
	Route    route.Sequence `json:"-"`
}

// Update is delivered to listeners after every state change.
type Update struct {
	Status
	Event        string
	RouteChanged bool
}

// Listener functions run on the clock goroutine and must not block or call
// back into the clock.
type Listener func(Update)

// Metrics receives clock events. Implementations must be safe for concurrent use.
type Metrics interface {
	ClockEvent(event string)
	TickObserve(d time.Duration)
}

type Option func(*Clock)

func WithTicker(f TickerFunc) Option { return func(c *Clock) { c.newTicker = f } }

func WithMetrics(m Metrics) Option { return func(c *Clock) { c.metrics = m } }

func WithListener(l Listener) Option {
	return func(c *Clock) { c.listeners = append(c.listeners, l) }
}

type command struct {
	fn   func()
	quit bool
	done chan struct{}
}

// Clock advances an index through a route sequence on a fixed cadence. All
// mutations, timer ticks included, are serialized through one goroutine, so a
// seek between two ticks is applied in arrival order.
type Clock struct {
	cmds    chan command
	stopped chan struct{}

	// owned by the loop goroutine
	seq       route.Sequence
	state     State
	base      time.Duration
	ticker    Ticker
	newTicker TickerFunc
	listeners []Listener
	metrics   Metrics
}

// NewClock starts an idle clock with an empty sequence. interval is the tick
// period at 1x speed.
func NewClock(interval time.Duration, opts ...Option) *Clock {
	if interval <= 0 {
		interval = time.Second
	}
	c := &Clock{
		cmds:      make(chan command),
		stopped:   make(chan struct{}),
		base:      interval,
		newTicker: newRealTicker,
		state:     State{TickInterval: interval, Speed: 1},
	}
	for _, o := range opts {
		o(c)
	}
	go c.run()
	return c
}

func (c *Clock) run() {
	defer close(c.stopped)
	for {
		var tickC <-chan time.Time
		if c.ticker != nil {
			tickC = c.ticker.C()
		}
		select {
		case cmd := <-c.cmds:
			if cmd.quit {
				c.stopTimer()
				close(cmd.done)
				return
			}
			cmd.fn()
			close(cmd.done)
		case <-tickC:
			c.tick()
		}
	}
}

// do runs fn on the loop goroutine and waits for it.
func (c *Clock) do(fn func()) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case c.cmds <- cmd:
	case <-c.stopped:
		return ErrClosed
	}
	<-cmd.done
	return nil
}

// Play starts advancing. At the last index playback restarts from 0. Play on an
// empty sequence or while already running changes nothing.
func (c *Clock) Play() error {
	return c.do(func() {
		if c.seq.Empty() || c.state.IsPlaying {
			return
		}
		if c.state.CurrentIndex >= c.seq.LastIndex() {
			c.state.CurrentIndex = 0
		}
		c.setPlaying(true)
		c.startTimer()
		c.emit("play", false)
	})
}

// Pause stops advancing and keeps the index.
func (c *Clock) Pause() error {
	return c.do(func() {
		if !c.state.IsPlaying {
			return
		}
		c.stopTimer()
		c.setPlaying(false)
		c.emit("pause", false)
	})
}

// Seek moves to i, clamped to the sequence, and interrupts autoplay.
func (c *Clock) Seek(i int) error {
	return c.do(func() { c.seek(i, "seek") })
}

// Reset is a seek to the first waypoint.
func (c *Clock) Reset() error {
	return c.do(func() { c.seek(0, "reset") })
}

func (c *Clock) seek(i int, event string) {
	c.stopTimer()
	c.setPlaying(false)
	c.state.CurrentIndex = c.seq.Clamp(i)
	c.emit(event, false)
}

// Tick advances one step as if the timer had fired. It has no effect while idle.
func (c *Clock) Tick() error {
	return c.do(c.tick)
}

func (c *Clock) tick() {
	if !c.state.IsPlaying {
		return
	}
	start := time.Now()
	last := c.seq.LastIndex()
	if c.state.CurrentIndex < last {
		c.state.CurrentIndex++
	}
	event := "tick"
	if c.state.CurrentIndex >= last {
		// no looping: reaching the end stops playback on the same tick
		c.stopTimer()
		c.setPlaying(false)
		event = "end"
	}
	c.emit(event, false)
	if c.metrics != nil {
		c.metrics.TickObserve(time.Since(start))
	}
}

// SetSequence replaces the route. Playback stops and the index returns to 0.
func (c *Clock) SetSequence(seq route.Sequence) error {
	return c.do(func() {
		c.stopTimer()
		c.seq = seq
		c.state.CurrentIndex = 0
		c.setPlaying(false)
		c.emit("route", true)
	})
}

// SetSpeed changes the cadence to the base interval divided by multiplier. A
// running timer is restarted with the new period.
func (c *Clock) SetSpeed(multiplier float64) error {
	if multiplier <= 0 {
		return ErrInvalidSpeed
	}
	return c.do(func() {
		c.state.Speed = multiplier
		c.state.TickInterval = time.Duration(float64(c.base) / multiplier)
		if c.state.TickInterval <= 0 {
			c.state.TickInterval = time.Millisecond
		}
		if c.ticker != nil {
			c.stopTimer()
			c.startTimer()
		}
		c.emit("speed", false)
	})
}

// Status returns a consistent copy of the state and its projection.
func (c *Clock) Status() (Status, error) {
	var st Status
	err := c.do(func() { st = c.status() })
	return st, err
}

// Close cancels the timer and stops the loop. It is safe to call more than once.
func (c *Clock) Close() {
	cmd := command{quit: true, done: make(chan struct{})}
	select {
	case c.cmds <- cmd:
		<-cmd.done
	case <-c.stopped:
	}
}

func (c *Clock) status() Status {
	return Status{
		State:    c.state,
		Progress: Project(c.seq, c.state.CurrentIndex),
		Route:    c.seq,
	}
}

func (c *Clock) setPlaying(on bool) {
	c.state.IsPlaying = on
	if on {
		c.state.Mode = Running
	} else {
		c.state.Mode = Idle
	}
}

func (c *Clock) startTimer() {
	if c.ticker == nil {
		c.ticker = c.newTicker(c.state.TickInterval)
	}
}

func (c *Clock) stopTimer() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Clock) emit(event string, routeChanged bool) {
	if c.metrics != nil {
		c.metrics.ClockEvent(event)
	}
	if len(c.listeners) == 0 {
		return
	}
	u := Update{Status: c.status(), Event: event, RouteChanged: routeChanged}
	for _, l := range c.listeners {
		l(u)
	}
}
