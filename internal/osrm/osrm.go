package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pixelpath/internal/route"
)

// ParseLatLon reads a "lat,lon" pair as typed into a query string. Values
// outside the WGS84 range are rejected.
func ParseLatLon(s string) (route.Waypoint, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok || strings.Contains(lonStr, ",") {
		return route.Waypoint{}, fmt.Errorf("want lat,lon, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil || lat < -90 || lat > 90 {
		return route.Waypoint{}, fmt.Errorf("bad latitude in %q", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil || lon < -180 || lon > 180 {
		return route.Waypoint{}, fmt.Errorf("bad longitude in %q", s)
	}
	return route.Waypoint{Lat: lat, Lon: lon}, nil
}

// OSRM response format. Only the fields we consume are declared.
type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry *struct {
			Type        string      `json:"type"`
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Legs []struct {
			Steps []struct {
				Name     string  `json:"name"`
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
				Maneuver struct {
					Type     string `json:"type"`
					Modifier string `json:"modifier"`
				} `json:"maneuver"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// Step is one turn-by-turn instruction of the first leg.
type Step struct {
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Maneuver string  `json:"maneuver"`
	Modifier string  `json:"modifier,omitempty"`
}

// Route is the decoded first route of an OSRM answer.
type Route struct {
	Path     []route.Waypoint
	Steps    []Step
	Distance float64 // meters
	Duration float64 // seconds
}

type Client struct {
	baseURL string
	profile string
	http    *http.Client
}

func NewClient(baseURL, profile string, timeout time.Duration) *Client {
	if profile == "" {
		profile = "driving"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: profile,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetRoute asks OSRM for a road route visiting points in order.
func (c *Client) GetRoute(ctx context.Context, points []route.Waypoint) (Route, error) {
	if len(points) < 2 {
		return Route{}, fmt.Errorf("osrm: %d points: %w", len(points), route.ErrEmptySequence)
	}
	coords := make([]string, len(points))
	for i, p := range points {
		coords[i] = fmt.Sprintf("%.6f,%.6f", p.Lon, p.Lat)
	}
	u := fmt.Sprintf("%s/route/v1/%s/%s?overview=full&geometries=geojson&steps=true",
		c.baseURL, url.PathEscape(c.profile), strings.Join(coords, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Route{}, fmt.Errorf("osrm: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("osrm: %v: %w", err, route.ErrNetworkFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Route{}, fmt.Errorf("osrm returned %d: %w", resp.StatusCode, route.ErrNetworkFailure)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Route{}, fmt.Errorf("osrm: read body: %v: %w", err, route.ErrNetworkFailure)
	}
	return decodeRoute(body)
}

func decodeRoute(body []byte) (Route, error) {
	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Route{}, fmt.Errorf("osrm: JSON decode failed: %v: %w", err, route.ErrMalformedResponse)
	}
	if parsed.Code != "" && parsed.Code != "Ok" {
		return Route{}, fmt.Errorf("osrm: code %s %s: %w", parsed.Code, parsed.Message, route.ErrMalformedResponse)
	}
	if len(parsed.Routes) == 0 {
		return Route{}, fmt.Errorf("osrm: no routes: %w", route.ErrMalformedResponse)
	}
	first := parsed.Routes[0]
	if first.Geometry == nil || len(first.Geometry.Coordinates) < 2 {
		return Route{}, fmt.Errorf("osrm: routes[0].geometry needs at least 2 coordinates: %w", route.ErrMalformedResponse)
	}

	out := Route{Distance: first.Distance, Duration: first.Duration}
	out.Path = make([]route.Waypoint, 0, len(first.Geometry.Coordinates))
	for i, pair := range first.Geometry.Coordinates {
		if len(pair) < 2 {
			return Route{}, fmt.Errorf("osrm: coordinate %d has %d values: %w", i, len(pair), route.ErrMalformedResponse)
		}
		out.Path = append(out.Path, route.Waypoint{Lon: pair[0], Lat: pair[1]})
	}
	if len(first.Legs) > 0 {
		for _, s := range first.Legs[0].Steps {
			out.Steps = append(out.Steps, Step{
				Name:     s.Name,
				Distance: s.Distance,
				Duration: s.Duration,
				Maneuver: s.Maneuver.Type,
				Modifier: s.Maneuver.Modifier,
			})
		}
	}
	return out, nil
}
