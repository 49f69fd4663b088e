package route

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

func (w Waypoint) point() orb.Point { return orb.Point{w.Lon, w.Lat} }

// CumulativeMeters returns the haversine distance from the first waypoint to each
// waypoint, so the last element is the sequence length.
func (s Sequence) CumulativeMeters() []float64 {
	n := len(s.points)
	if n == 0 {
		return nil
	}
	cum := make([]float64, n)
	sum := 0.0
	for i := 1; i < n; i++ {
		sum += geo.DistanceHaversine(s.points[i-1].point(), s.points[i].point())
		cum[i] = sum
	}
	return cum
}

// LengthMeters is the total haversine length of the sequence.
func (s Sequence) LengthMeters() float64 {
	cum := s.CumulativeMeters()
	if len(cum) == 0 {
		return 0
	}
	return cum[len(cum)-1]
}

// Bearing returns the heading in degrees [0,360) at waypoint i: towards i+1, or
// from i-1 for the last waypoint.
func (s Sequence) Bearing(i int) float64 {
	n := len(s.points)
	if n < 2 || i < 0 || i >= n {
		return 0
	}
	from, to := i, i+1
	if i == n-1 {
		from, to = n-2, n-1
	}
	b := geo.Bearing(s.points[from].point(), s.points[to].point())
	if b < 0 {
		b += 360
	}
	return b
}

// Nearest returns the index of the waypoint closest to lat/lon, or -1 for the
// empty sequence. Ties resolve to the earliest index.
func (s Sequence) Nearest(lat, lon float64) int {
	return s.NearestFrom(lat, lon, 0)
}

// NearestFrom is Nearest restricted to indices >= from.
func (s Sequence) NearestFrom(lat, lon float64, from int) int {
	best := -1
	bestDist := math.MaxFloat64
	target := orb.Point{lon, lat}
	for i := max(from, 0); i < len(s.points); i++ {
		d := geo.DistanceHaversine(target, s.points[i].point())
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// LineString returns the sequence as a GeoJSON geometry in lon/lat order, which
// is what map widgets consume.
func (s Sequence) LineString() *geojson.Geometry {
	ls := make(orb.LineString, 0, len(s.points))
	for _, p := range s.points {
		ls = append(ls, p.point())
	}
	return geojson.NewGeometry(ls)
}
