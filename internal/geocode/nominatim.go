package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"pixelpath/internal/route"
)

type nominatim struct {
	baseURL string
}

// Nominatim encodes coordinates as strings.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

func (n *nominatim) name() string { return "nominatim" }

func (n *nominatim) search(ctx context.Context, hc *http.Client, query string) ([]Place, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("q", query)
	q.Set("limit", "10")

	var results []nominatimResult
	if err := getJSON(ctx, hc, n.baseURL+"/search?"+q.Encode(), &results); err != nil {
		return nil, err
	}
	places := make([]Place, 0, len(results))
	for i, r := range results {
		lat, err1 := strconv.ParseFloat(r.Lat, 64)
		lon, err2 := strconv.ParseFloat(r.Lon, 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("result %d lat/lon %q,%q: %w", i, r.Lat, r.Lon, route.ErrMalformedResponse)
		}
		name := r.Name
		if name == "" {
			name = r.DisplayName
		}
		places = append(places, Place{Lat: lat, Lon: lon, Name: name, DisplayName: r.DisplayName})
	}
	return places, nil
}
