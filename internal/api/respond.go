package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"pixelpath/internal/catalog"
	"pixelpath/internal/playback"
	"pixelpath/internal/provider"
	"pixelpath/internal/route"
	"pixelpath/internal/sim"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps domain errors onto HTTP statuses. Upstream failures are the
// gateway's problem, not the caller's.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrTripNotFound), errors.Is(err, sim.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, route.ErrMalformedResponse), errors.Is(err, route.ErrNetworkFailure):
		return http.StatusBadGateway
	case errors.Is(err, route.ErrEmptySequence), errors.Is(err, playback.ErrInvalidSpeed):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, playback.ErrClosed), errors.Is(err, provider.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, into any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}
