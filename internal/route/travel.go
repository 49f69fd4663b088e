package route

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type TravelMode string

const (
	Driving TravelMode = "driving"
	Walking TravelMode = "walking"
	Cycling TravelMode = "cycling"
)

// average speeds in km/h
var modeSpeeds = map[TravelMode]float64{
	Driving: 50,
	Cycling: 18,
	Walking: 5,
}

// ParseTravelMode accepts the mode names case-insensitively. An empty string is
// driving.
func ParseTravelMode(s string) (TravelMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Driving, nil
	}
	m := TravelMode(s)
	if _, ok := modeSpeeds[m]; !ok {
		return "", fmt.Errorf("unknown travel mode %q", s)
	}
	return m, nil
}

// SpeedKmh returns the average speed used for estimates.
func (m TravelMode) SpeedKmh() float64 { return modeSpeeds[m] }

type Summary struct {
	Mode            TravelMode `json:"mode"`
	DistanceKm      float64    `json:"distanceKm"`
	SpeedKmh        float64    `json:"speedKmh"`
	DurationMinutes int        `json:"durationMinutes"`
	Arrival         time.Time  `json:"arrival"`
}

// Summarize estimates duration and arrival for a distance travelled at the
// mode's average speed, starting at now.
func Summarize(distanceKm float64, mode TravelMode, now time.Time) Summary {
	speed := mode.SpeedKmh()
	minutes := 0
	if speed > 0 && distanceKm > 0 {
		minutes = int(math.Ceil(distanceKm / speed * 60))
	}
	return Summary{
		Mode:            mode,
		DistanceKm:      distanceKm,
		SpeedKmh:        speed,
		DurationMinutes: minutes,
		Arrival:         now.Add(time.Duration(minutes) * time.Minute),
	}
}
