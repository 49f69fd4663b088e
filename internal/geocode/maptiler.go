package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"pixelpath/internal/route"
)

type mapTiler struct {
	baseURL string
	key     string
}

type mapTilerResponse struct {
	Features []struct {
		Center    []float64 `json:"center"` // lon, lat
		Text      string    `json:"text"`
		PlaceName string    `json:"place_name"`
	} `json:"features"`
}

func (m *mapTiler) name() string { return "maptiler" }

func (m *mapTiler) search(ctx context.Context, hc *http.Client, query string) ([]Place, error) {
	u := fmt.Sprintf("%s/geocoding/%s.json?key=%s", m.baseURL, url.PathEscape(query), url.QueryEscape(m.key))

	var resp mapTilerResponse
	if err := getJSON(ctx, hc, u, &resp); err != nil {
		return nil, err
	}
	places := make([]Place, 0, len(resp.Features))
	for i, f := range resp.Features {
		if len(f.Center) < 2 {
			return nil, fmt.Errorf("feature %d center has %d values: %w", i, len(f.Center), route.ErrMalformedResponse)
		}
		places = append(places, Place{Lon: f.Center[0], Lat: f.Center[1], Name: f.Text, DisplayName: f.PlaceName})
	}
	return places, nil
}
