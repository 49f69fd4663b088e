package catalog

import (
	"context"
	"errors"

	"pixelpath/internal/route"
)

var ErrTripNotFound = errors.New("trip not found")

// Catalog lists the trips a user can select.
type Catalog interface {
	List(ctx context.Context) ([]route.Trip, error)
	Get(ctx context.Context, id string) (route.Trip, error)
}

// Chain consults catalogs in order. Get returns the first match; List
// concatenates every catalog.
type Chain []Catalog

func (c Chain) List(ctx context.Context) ([]route.Trip, error) {
	var out []route.Trip
	for _, cat := range c {
		trips, err := cat.List(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, trips...)
	}
	return out, nil
}

func (c Chain) Get(ctx context.Context, id string) (route.Trip, error) {
	for _, cat := range c {
		t, err := cat.Get(ctx, id)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrTripNotFound) {
			return route.Trip{}, err
		}
	}
	return route.Trip{}, ErrTripNotFound
}
