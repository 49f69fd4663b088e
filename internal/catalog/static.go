package catalog

import (
	"context"

	"pixelpath/internal/route"
)

// Static serves a fixed list of trips.
type Static struct {
	trips []route.Trip
}

func NewStatic(trips []route.Trip) *Static {
	return &Static{trips: trips}
}

// Samples are the demo trips shown before any catalog is configured.
func Samples() *Static {
	return NewStatic([]route.Trip{
		{
			ID:         "1",
			Title:      "Mumbai Heritage Trail",
			Date:       "March 15-17, 2026",
			DistanceKm: 8.8,
			Places: []route.Waypoint{
				{Lat: 18.922, Lon: 72.8347, Label: "Gateway"},
				{Lat: 18.9398, Lon: 72.8355, Label: "CST"},
				{Lat: 18.9432, Lon: 72.8236, Label: "Marine Drive"},
			},
		},
		{
			ID:         "2",
			Title:      "Goa Beach Escape",
			Date:       "April 20-25, 2026",
			DistanceKm: 12,
			Places: []route.Waypoint{
				{Lat: 15.5559, Lon: 73.7516, Label: "Baga Beach"},
				{Lat: 15.5008, Lon: 73.9117, Label: "Bom Jesus"},
				{Lat: 15.3144, Lon: 74.3144, Label: "Dudhsagar"},
			},
		},
	})
}

func (s *Static) List(context.Context) ([]route.Trip, error) {
	out := make([]route.Trip, len(s.trips))
	copy(out, s.trips)
	return out, nil
}

func (s *Static) Get(_ context.Context, id string) (route.Trip, error) {
	for _, t := range s.trips {
		if t.ID == id {
			return t, nil
		}
	}
	return route.Trip{}, ErrTripNotFound
}
