// Package api exposes trips, playback sessions and geocoding over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"pixelpath/internal/catalog"
	"pixelpath/internal/geocode"
	"pixelpath/internal/session"
	"pixelpath/internal/sim"
)

// Searcher looks up places by name.
type Searcher interface {
	Search(ctx context.Context, query string) []geocode.Place
}

type Deps struct {
	Catalog  catalog.Catalog
	Sessions *sim.Manager
	Geocoder Searcher
	Auth     *session.Checker
	Metrics  http.Handler

	// Ping reports storage health for /health. Nil means no storage to check.
	Ping func(ctx context.Context) error

	// RequireLogin rejects playback calls from callers the auth backend does
	// not know.
	RequireLogin bool

	CORSOrigins []string
	Logger      *slog.Logger
	Now         func() time.Time
}

type handler struct {
	Deps
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handler{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.health)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(h.openSession)
		r.Get("/session", h.getAuthSession)
		r.Post("/session/logout", h.logout)

		r.Get("/trips", h.listTrips)
		r.Get("/trips/{id}", h.getTrip)
		r.Get("/geocode", h.searchPlaces)

		r.Route("/sessions", func(r chi.Router) {
			r.Use(h.requireLogin)
			r.Post("/", h.createSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getSession)
				r.Delete("/", h.deleteSession)
				r.Post("/select", h.selectRoute)
				r.Post("/play", h.play)
				r.Post("/pause", h.pause)
				r.Post("/reset", h.reset)
				r.Post("/seek", h.seek)
				r.Post("/speed", h.speed)
				r.Post("/click", h.click)
				r.Get("/ws", h.websocket)
			})
		})
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"sessions":  h.Sessions.Len(),
		"timestamp": h.Now().UTC(),
	}
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			body["status"] = "error"
			body["database"] = "disconnected"
			body["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "connected"
	}
	writeJSON(w, http.StatusOK, body)
}
