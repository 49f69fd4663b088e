package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"pixelpath/internal/binding"
	"pixelpath/internal/logging"
	"pixelpath/internal/osrm"
	"pixelpath/internal/playback"
	"pixelpath/internal/provider"
	"pixelpath/internal/route"
	"pixelpath/internal/sim"
)

// SessionResponse describes one playback session.
type SessionResponse struct {
	ID       string            `json:"id"`
	TripID   string            `json:"tripId,omitempty"`
	Pending  bool              `json:"pending"`
	State    playback.State    `json:"state"`
	Progress playback.Snapshot `json:"progress"`
	Route    []route.Waypoint  `json:"route"`
	Steps    []osrm.Step       `json:"steps,omitempty"`
}

type seekRequest struct {
	Index *int `json:"index"`
}

type speedRequest struct {
	Multiplier float64 `json:"multiplier"`
}

type clickRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) (*sim.Session, bool) {
	s, err := h.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return s, true
}

func (h *handler) writeSession(w http.ResponseWriter, status int, s *sim.Session) {
	st, err := s.Clock.Status()
	if err != nil {
		writeErr(w, err)
		return
	}
	pts := st.Route.Points()
	if pts == nil {
		pts = []route.Waypoint{}
	}
	writeJSON(w, status, SessionResponse{
		ID:       s.ID,
		TripID:   s.Provider.TripID(),
		Pending:  s.Provider.Pending(),
		State:    st.State,
		Progress: st.Progress,
		Route:    pts,
		Steps:    s.Provider.Steps(),
	})
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	s := h.Sessions.Create()
	h.writeSession(w, http.StatusCreated, s)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		h.writeSession(w, http.StatusOK, s)
	}
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// selectionFromQuery builds a road-routed selection from
// ?from=lat,lon&via=lat,lon&to=lat,lon. via may repeat. routed=false keeps the
// straight line between the points.
func selectionFromQuery(q url.Values) (provider.Selection, error) {
	if !q.Has("to") {
		return provider.Selection{}, errors.New("from needs a to coordinate")
	}
	raw := append([]string{q.Get("from")}, q["via"]...)
	raw = append(raw, q.Get("to"))

	sel := provider.Selection{Routed: q.Get("routed") != "false"}
	for _, v := range raw {
		wp, err := osrm.ParseLatLon(v)
		if err != nil {
			return provider.Selection{}, err
		}
		sel.Points = append(sel.Points, wp)
	}
	return sel, nil
}

// selectRoute resolves a selection, read from the JSON body or from the from/to
// query form. With ?async=true it returns 202 at once and
// the new route arrives through the session's frames.
func (h *handler) selectRoute(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var sel provider.Selection
	if q := r.URL.Query(); q.Has("from") {
		var err error
		if sel, err = selectionFromQuery(q); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if err := decodeJSON(w, r, &sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid selection: "+err.Error())
		return
	}
	if r.URL.Query().Get("async") == "true" {
		s.Provider.ResolveAsync(sel)
		h.writeSession(w, http.StatusAccepted, s)
		return
	}
	if _, err := s.Provider.Resolve(r.Context(), sel); err != nil {
		writeErr(w, err)
		return
	}
	h.writeSession(w, http.StatusOK, s)
}

// command runs a clock operation and answers with the resulting session.
func (h *handler) command(fn func(s *sim.Session) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := h.session(w, r)
		if !ok {
			return
		}
		if err := fn(s); err != nil {
			writeErr(w, err)
			return
		}
		h.writeSession(w, http.StatusOK, s)
	}
}

func (h *handler) play(w http.ResponseWriter, r *http.Request) {
	h.command(func(s *sim.Session) error { return s.Clock.Play() })(w, r)
}

func (h *handler) pause(w http.ResponseWriter, r *http.Request) {
	h.command(func(s *sim.Session) error { return s.Clock.Pause() })(w, r)
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	h.command(func(s *sim.Session) error { return s.Clock.Reset() })(w, r)
}

func (h *handler) seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Index == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"index\": n}")
		return
	}
	h.command(func(s *sim.Session) error {
		return s.Binding.HandleEvent(binding.TimelineClick{Index: *req.Index})
	})(w, r)
}

func (h *handler) speed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"multiplier\": x}")
		return
	}
	h.command(func(s *sim.Session) error { return s.Clock.SetSpeed(req.Multiplier) })(w, r)
}

func (h *handler) click(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"lat\": y, \"lng\": x}")
		return
	}
	h.command(func(s *sim.Session) error {
		return s.Binding.HandleEvent(binding.MapClick{Lat: req.Lat, Lng: req.Lng})
	})(w, r)
}

func (h *handler) websocket(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	logging.LogOperation(h.Logger, "websocket connect", slog.String("session", s.ID))
	s.Hub.ServeHTTP(w, r)
}
