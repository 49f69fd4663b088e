package route

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diagonal(n int) []Waypoint {
	pts := make([]Waypoint, n)
	for i := range pts {
		pts[i] = Waypoint{Lat: float64(i), Lon: float64(i)}
	}
	return pts
}

func TestNewSequence(t *testing.T) {
	t.Run("fewer than two points is empty", func(t *testing.T) {
		assert.True(t, NewSequence(nil).Empty())
		assert.True(t, NewSequence(diagonal(1)).Empty())
		assert.Equal(t, 0, NewSequence(diagonal(1)).Len())
	})

	t.Run("copies the input", func(t *testing.T) {
		pts := diagonal(3)
		seq := NewSequence(pts)
		pts[0].Lat = 42
		assert.Equal(t, 0.0, seq.At(0).Lat)

		out := seq.Points()
		out[1].Lat = 42
		assert.Equal(t, 1.0, seq.At(1).Lat)
	})
}

func TestClamp(t *testing.T) {
	seq := NewSequence(diagonal(3))
	tests := []struct {
		in, want int
	}{
		{-1, 0},
		{0, 0},
		{2, 2},
		{5, 2},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, seq.Clamp(tc.in), "Clamp(%d)", tc.in)
	}
	assert.Equal(t, 0, Sequence{}.Clamp(3))
}

func TestGeometry(t *testing.T) {
	seq := NewSequence([]Waypoint{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
		{Lat: 1, Lon: 1},
	})

	cum := seq.CumulativeMeters()
	require.Len(t, cum, 3)
	assert.Equal(t, 0.0, cum[0])
	// one degree of longitude on the equator is roughly 111km
	assert.InDelta(t, 111_000, cum[1], 500)
	assert.InDelta(t, cum[2], seq.LengthMeters(), 1e-9)

	assert.InDelta(t, 90, seq.Bearing(0), 0.01)
	assert.InDelta(t, 0, seq.Bearing(1), 0.01)
	assert.InDelta(t, 0, seq.Bearing(2), 0.01, "last point reuses the final leg")
	assert.Equal(t, 0.0, Sequence{}.Bearing(0))
}

func TestNearest(t *testing.T) {
	seq := NewSequence(diagonal(4))
	assert.Equal(t, 2, seq.Nearest(2.1, 1.9))
	assert.Equal(t, 0, seq.Nearest(-10, -10))
	assert.Equal(t, 3, seq.Nearest(50, 50))
	assert.Equal(t, -1, Sequence{}.Nearest(0, 0))
	assert.Equal(t, 3, seq.NearestFrom(-10, -10, 3))
	assert.Equal(t, -1, seq.NearestFrom(0, 0, 10))
}

func TestLineStringIsLonLat(t *testing.T) {
	seq := NewSequence([]Waypoint{{Lat: 18.922, Lon: 72.8347}, {Lat: 18.9398, Lon: 72.8355}})
	b, err := seq.LineString().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"LineString","coordinates":[[72.8347,18.922],[72.8355,18.9398]]}`, string(b))
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	s := Summarize(8.8, Driving, now)
	assert.Equal(t, 11, s.DurationMinutes)
	assert.Equal(t, 50.0, s.SpeedKmh)
	assert.Equal(t, now.Add(11*time.Minute), s.Arrival)

	assert.Equal(t, 106, Summarize(8.8, Walking, now).DurationMinutes)
	assert.Equal(t, 0, Summarize(0, Cycling, now).DurationMinutes)
}

func TestParseTravelMode(t *testing.T) {
	m, err := ParseTravelMode(" Cycling ")
	require.NoError(t, err)
	assert.Equal(t, Cycling, m)

	m, err = ParseTravelMode("")
	require.NoError(t, err)
	assert.Equal(t, Driving, m)

	_, err = ParseTravelMode("flying")
	assert.Error(t, err)
}
