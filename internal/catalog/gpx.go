package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tkrajina/gpxgo/gpx"

	"pixelpath/internal/route"
)

// LoadGPXDir reads every *.gpx file in dir into a static catalog. The trip id is
// the file name without extension. Track points are preferred, then route
// points, then standalone waypoints.
func LoadGPXDir(dir string) (*Static, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read gpx dir: %w", err)
	}
	var trips []route.Trip
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".gpx") {
			continue
		}
		t, err := LoadGPXFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	sort.Slice(trips, func(i, j int) bool { return trips[i].ID < trips[j].ID })
	return NewStatic(trips), nil
}

// LoadGPXFile parses a single GPX file into a trip.
func LoadGPXFile(path string) (route.Trip, error) {
	g, err := gpx.ParseFile(path)
	if err != nil {
		return route.Trip{}, fmt.Errorf("failed to parse GPX file %s: %w", path, err)
	}
	return tripFromGPX(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), g), nil
}

func tripFromGPX(id string, g *gpx.GPX) route.Trip {
	t := route.Trip{ID: id, Title: g.Name}
	if t.Title == "" && len(g.Tracks) > 0 {
		t.Title = g.Tracks[0].Name
	}
	if t.Title == "" {
		t.Title = id
	}
	if g.Time != nil {
		t.Date = g.Time.Format("January 2, 2006")
	}

	for _, track := range g.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				t.Places = append(t.Places, route.Waypoint{Lat: p.Latitude, Lon: p.Longitude, Label: p.Name})
			}
		}
	}
	if len(t.Places) == 0 {
		for _, r := range g.Routes {
			for _, p := range r.Points {
				t.Places = append(t.Places, route.Waypoint{Lat: p.Latitude, Lon: p.Longitude, Label: p.Name})
			}
		}
	}
	if len(t.Places) == 0 {
		for _, p := range g.Waypoints {
			t.Places = append(t.Places, route.Waypoint{Lat: p.Latitude, Lon: p.Longitude, Label: p.Name})
		}
	}
	t.DistanceKm = route.NewSequence(t.Places).LengthMeters() / 1000
	return t
}
