package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"pixelpath/internal/route"
)

type tripsResponse struct {
	Trips []route.Trip `json:"trips"`
	Count int          `json:"count"`
}

type tripResponse struct {
	Trip    route.Trip        `json:"trip"`
	Summary route.Summary     `json:"summary"`
	Line    *geojson.Geometry `json:"line,omitempty"`
}

func (h *handler) listTrips(w http.ResponseWriter, r *http.Request) {
	trips, err := h.Catalog.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if trips == nil {
		trips = []route.Trip{}
	}
	writeJSON(w, http.StatusOK, tripsResponse{Trips: trips, Count: len(trips)})
}

// getTrip returns one trip with its travel summary. ?mode= picks driving,
// walking or cycling.
func (h *handler) getTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := h.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	mode, err := route.ParseTravelMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := tripResponse{
		Trip:    trip,
		Summary: route.Summarize(trip.DistanceKm, mode, h.Now()),
	}
	if seq := route.NewSequence(trip.Places); !seq.Empty() {
		resp.Line = seq.LineString()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) searchPlaces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if h.Geocoder == nil {
		writeJSON(w, http.StatusOK, map[string]any{"places": []any{}})
		return
	}
	places := h.Geocoder.Search(r.Context(), q)
	writeJSON(w, http.StatusOK, map[string]any{"places": places})
}
