package sim

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pixelpath/internal/binding"
	"pixelpath/internal/catalog"
	mmetrics "pixelpath/internal/metrics"
	"pixelpath/internal/playback"
	"pixelpath/internal/provider"
	"pixelpath/internal/route"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one independent playback: its own selection, clock and widgets.
type Session struct {
	ID       string
	Created  time.Time
	Provider *provider.Provider
	Clock    *playback.Clock
	Binding  *binding.Binding
	Hub      *binding.Hub

	lastUsed atomic.Int64 // unix nanos
}

// Touch marks the session as in use so the reaper leaves it alone.
func (s *Session) Touch() { s.lastUsed.Store(time.Now().UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastUsed.Load()) }

func (s *Session) close() {
	s.Provider.Close()
	s.Clock.Close()
	s.Hub.Close()
	s.Binding.Close()
}

type Manager struct {
	catalog      catalog.Catalog
	router       provider.Router
	tickInterval time.Duration
	widgets      []binding.Widget
	checkOrigin  func(*http.Request) bool
	metrics      *mmetrics.Collector
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	reapCancel context.CancelFunc
	reapWG     sync.WaitGroup
}

type Option func(*Manager)

// WithWidget attaches w to every session, e.g. the NATS publisher.
func WithWidget(w binding.Widget) Option {
	return func(m *Manager) { m.widgets = append(m.widgets, w) }
}

func WithMetrics(c *mmetrics.Collector) Option { return func(m *Manager) { m.metrics = c } }

func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithOriginCheck restricts which origins may open a session's WebSocket.
func WithOriginCheck(fn func(*http.Request) bool) Option {
	return func(m *Manager) { m.checkOrigin = fn }
}

func NewManager(cat catalog.Catalog, router provider.Router, tickInterval time.Duration, opts ...Option) *Manager {
	m := &Manager{
		catalog:      cat,
		router:       router,
		tickInterval: tickInterval,
		logger:       slog.Default(),
		sessions:     make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create starts a new session with the empty sequence.
func (m *Manager) Create() *Session {
	id := uuid.NewString()
	logger := m.logger.With(slog.String("session", id))

	var (
		clockOpts    []playback.Option
		providerOpts = []provider.Option{provider.WithLogger(logger)}
		bindingOpts  = []binding.Option{binding.WithLogger(logger)}
	)
	if m.metrics != nil {
		clockOpts = append(clockOpts, playback.WithMetrics(m.metrics))
		providerOpts = append(providerOpts, provider.WithMetrics(m.metrics))
		bindingOpts = append(bindingOpts, binding.WithMetrics(m.metrics))
	}

	// the binding needs the clock and the clock needs the binding's listener
	var b *binding.Binding
	clock := playback.NewClock(m.tickInterval, append(clockOpts, playback.WithListener(func(u playback.Update) {
		b.Listener()(u)
	}))...)
	b = binding.New(id, clock, bindingOpts...)
	for _, w := range m.widgets {
		b.Attach(w)
	}

	p := provider.New(m.catalog, m.router, providerOpts...)
	p.OnChange(func(seq route.Sequence) {
		if err := clock.SetSequence(seq); err != nil && !errors.Is(err, playback.ErrClosed) {
			logger.Error("apply sequence failed", slog.String("error", err.Error()))
		}
	})

	s := &Session{
		ID:       id,
		Created:  time.Now(),
		Provider: p,
		Clock:    clock,
		Binding:  b,
		Hub:      binding.NewHub(b, logger, m.checkOrigin),
	}
	s.Touch()

	m.mu.Lock()
	m.sessions[id] = s
	active := len(m.sessions)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionOpened(active)
	}
	logger.Info("session created")
	return s
}

// Get returns the session and marks it used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.Touch()
	return s, nil
}

// Close tears down one session, cancelling its timer and pending fetches.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	active := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	if m.metrics != nil {
		m.metrics.SessionClosed(active)
	}
	m.logger.Info("session closed", slog.String("session", id))
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Stop stops the reaper and closes every session.
func (m *Manager) Stop() {
	if m.reapCancel != nil {
		m.reapCancel()
	}
	m.reapWG.Wait()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.close()
		}(s)
	}
	wg.Wait()
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(0)
	}
}

// StartReaper launches a background loop that closes sessions unused for
// longer than ttl.
func (m *Manager) StartReaper(parent context.Context, ttl, every time.Duration) {
	if ttl <= 0 || every <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.reapCancel = cancel
	m.reapWG.Add(1)
	go func() {
		defer m.reapWG.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.ReapIdle(now, ttl)
			}
		}
	}()
}

// ReapIdle closes sessions whose last use is older than ttl at now. It returns
// how many were closed.
func (m *Manager) ReapIdle(now time.Time, ttl time.Duration) int {
	m.mu.Lock()
	var stale []string
	for id, s := range m.sessions {
		if now.Sub(s.idleSince()) > ttl {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	n := 0
	for _, id := range stale {
		if err := m.Close(id); err == nil {
			n++
		}
	}
	if n > 0 {
		m.logger.Info("reaped idle sessions", slog.Int("count", n))
	}
	return n
}
