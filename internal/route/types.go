package route

// Waypoint is a single labelled point of a route. Values are never mutated after
// they leave a provider.
type Waypoint struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Label string  `json:"label,omitempty"`
}

// Trip is a stored journey the user can select and replay.
type Trip struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Date       string     `json:"date,omitempty"`
	DistanceKm float64    `json:"distanceKm"`
	Places     []Waypoint `json:"places"`
}

// Sequence is an ordered, immutable list of waypoints in travel order.
// The zero value is the empty sequence.
type Sequence struct {
	points []Waypoint
}

// NewSequence copies points into a sequence. Fewer than two points cannot be
// played back, so they produce the empty sequence.
func NewSequence(points []Waypoint) Sequence {
	if len(points) < 2 {
		return Sequence{}
	}
	cp := make([]Waypoint, len(points))
	copy(cp, points)
	return Sequence{points: cp}
}

func (s Sequence) Len() int { return len(s.points) }

func (s Sequence) Empty() bool { return len(s.points) == 0 }

// At returns the waypoint at i. It panics when i is out of range.
func (s Sequence) At(i int) Waypoint { return s.points[i] }

// Points returns a copy of the waypoints.
func (s Sequence) Points() []Waypoint {
	if len(s.points) == 0 {
		return nil
	}
	cp := make([]Waypoint, len(s.points))
	copy(cp, s.points)
	return cp
}

// LastIndex is Len()-1, or 0 for the empty sequence.
func (s Sequence) LastIndex() int {
	if len(s.points) == 0 {
		return 0
	}
	return len(s.points) - 1
}

// Clamp limits i to [0, LastIndex()].
func (s Sequence) Clamp(i int) int {
	if i < 0 {
		return 0
	}
	if last := s.LastIndex(); i > last {
		return last
	}
	return i
}
