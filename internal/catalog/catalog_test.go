package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelpath/internal/route"
)

const trackGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <metadata><name>Morning Ride</name></metadata>
  <trk><name>ride</name><trkseg>
    <trkpt lat="15.5559" lon="73.7516"><name>start</name></trkpt>
    <trkpt lat="15.5008" lon="73.9117"></trkpt>
    <trkpt lat="15.3144" lon="74.3144"><name>falls</name></trkpt>
  </trkseg></trk>
</gpx>`

const waypointGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <wpt lat="18.922" lon="72.8347"><name>Gateway</name></wpt>
  <wpt lat="18.9398" lon="72.8355"><name>CST</name></wpt>
</gpx>`

type failingCatalog struct{}

func (failingCatalog) List(context.Context) ([]route.Trip, error) { return nil, errors.New("db down") }
func (failingCatalog) Get(context.Context, string) (route.Trip, error) {
	return route.Trip{}, errors.New("db down")
}

func TestSamples(t *testing.T) {
	ctx := context.Background()
	s := Samples()

	trips, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, trips, 2)

	trip, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Mumbai Heritage Trail", trip.Title)
	assert.Len(t, trip.Places, 3)

	_, err = s.Get(ctx, "404")
	assert.ErrorIs(t, err, ErrTripNotFound)
}

func TestLoadGPXDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "goa.gpx"), []byte(trackGPX), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mumbai.GPX"), []byte(waypointGPX), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	cat, err := LoadGPXDir(dir)
	require.NoError(t, err)

	trips, err := cat.List(context.Background())
	require.NoError(t, err)
	require.Len(t, trips, 2)

	goa := trips[0]
	assert.Equal(t, "goa", goa.ID)
	assert.Equal(t, "Morning Ride", goa.Title)
	require.Len(t, goa.Places, 3)
	assert.Equal(t, "start", goa.Places[0].Label)
	assert.Equal(t, 74.3144, goa.Places[2].Lon)
	assert.Greater(t, goa.DistanceKm, 40.0)

	mumbai := trips[1]
	assert.Equal(t, "mumbai", mumbai.ID)
	assert.Equal(t, "mumbai", mumbai.Title, "untitled files use the id")
	assert.Equal(t, []string{"Gateway", "CST"}, []string{mumbai.Places[0].Label, mumbai.Places[1].Label})
}

func TestLoadGPXDirErrors(t *testing.T) {
	_, err := LoadGPXDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.gpx"), []byte("<gpx"), 0o644))
	_, err = LoadGPXDir(dir)
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	extra := NewStatic([]route.Trip{{ID: "x", Title: "Extra"}})
	chain := Chain{Samples(), extra}

	trips, err := chain.List(ctx)
	require.NoError(t, err)
	assert.Len(t, trips, 3)

	trip, err := chain.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "Extra", trip.Title)

	_, err = chain.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrTripNotFound)

	broken := Chain{failingCatalog{}, extra}
	_, err = broken.Get(ctx, "x")
	assert.EqualError(t, err, "db down")
	_, err = broken.List(ctx)
	assert.Error(t, err)
}
