package playback

import "pixelpath/internal/route"

// Snapshot is the derived progress at one index. It is recomputed on every
// change and never stored.
type Snapshot struct {
	Index          int             `json:"index"`
	Length         int             `json:"length"`
	Position       *route.Waypoint `json:"position"`
	Percent        float64         `json:"percent"`
	ReachedCount   int             `json:"reachedCount"`
	Bearing        float64         `json:"bearing"`
	DistanceMeters float64         `json:"distanceMeters"`
}

// Project computes the snapshot for index within seq. The index is clamped, so
// callers may pass stale values.
func Project(seq route.Sequence, index int) Snapshot {
	n := seq.Len()
	if n == 0 {
		return Snapshot{}
	}
	index = seq.Clamp(index)
	pos := seq.At(index)

	s := Snapshot{
		Index:        index,
		Length:       n,
		Position:     &pos,
		ReachedCount: index + 1,
		Bearing:      seq.Bearing(index),
	}
	if n > 1 {
		s.Percent = float64(index) / float64(n-1) * 100
	}
	if cum := seq.CumulativeMeters(); len(cum) > index {
		s.DistanceMeters = cum[index]
	}
	return s
}

// Reached reports whether waypoint i has been passed. Reached waypoints are
// always the prefix 0..Index.
func (s Snapshot) Reached(i int) bool {
	return i >= 0 && i < s.ReachedCount
}

// ReachedIndices lists the reached waypoints.
func (s Snapshot) ReachedIndices() []int {
	out := make([]int, s.ReachedCount)
	for i := range out {
		out[i] = i
	}
	return out
}
