package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"pixelpath/internal/catalog"
	"pixelpath/internal/route"
)

func Open(dsn string) (*sql.DB, error) {
	driver, normalized, err := driverFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, normalized)
	if err != nil {
		return nil, err
	}
	if driver == driverSQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trips (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		trip_date   TEXT NOT NULL DEFAULT '',
		distance_km DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS trip_places (
		trip_id TEXT NOT NULL REFERENCES trips(id),
		seq     INTEGER NOT NULL,
		lat     DOUBLE PRECISION NOT NULL,
		lon     DOUBLE PRECISION NOT NULL,
		label   TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (trip_id, seq)
	)`,
}

// EnsureSchema creates the trip tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// TripStore is a read-mostly trip catalog kept in SQL.
type TripStore struct {
	db *sql.DB
}

var _ catalog.Catalog = (*TripStore)(nil)

func NewTripStore(db *sql.DB) *TripStore {
	return &TripStore{db: db}
}

func (s *TripStore) List(ctx context.Context) ([]route.Trip, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, trip_date, distance_km FROM trips ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	var trips []route.Trip
	for rows.Next() {
		var t route.Trip
		if err := rows.Scan(&t.ID, &t.Title, &t.Date, &t.DistanceKm); err != nil {
			rows.Close()
			return nil, err
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// places are loaded after the trip cursor is closed; SQLite runs on one connection
	for i := range trips {
		places, err := s.fetchPlaces(ctx, trips[i].ID)
		if err != nil {
			return nil, err
		}
		trips[i].Places = places
	}
	return trips, nil
}

func (s *TripStore) Get(ctx context.Context, id string) (route.Trip, error) {
	var t route.Trip
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, trip_date, distance_km FROM trips WHERE id = $1`, id).
		Scan(&t.ID, &t.Title, &t.Date, &t.DistanceKm)
	if errors.Is(err, sql.ErrNoRows) {
		return route.Trip{}, catalog.ErrTripNotFound
	}
	if err != nil {
		return route.Trip{}, fmt.Errorf("query trip %s: %w", id, err)
	}
	t.Places, err = s.fetchPlaces(ctx, id)
	if err != nil {
		return route.Trip{}, err
	}
	return t, nil
}

func (s *TripStore) fetchPlaces(ctx context.Context, tripID string) ([]route.Waypoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lat, lon, label FROM trip_places WHERE trip_id = $1 ORDER BY seq`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query trip_places: %w", err)
	}
	defer rows.Close()
	var places []route.Waypoint
	for rows.Next() {
		var p route.Waypoint
		if err := rows.Scan(&p.Lat, &p.Lon, &p.Label); err != nil {
			return nil, err
		}
		places = append(places, p)
	}
	return places, rows.Err()
}

// PutTrip inserts or replaces a trip and its places in one transaction.
func (s *TripStore) PutTrip(ctx context.Context, t route.Trip) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM trip_places WHERE trip_id = $1`, t.ID); err != nil {
		return fmt.Errorf("delete trip_places: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM trips WHERE id = $1`, t.ID); err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO trips (id, title, trip_date, distance_km) VALUES ($1, $2, $3, $4)`,
		t.ID, t.Title, t.Date, t.DistanceKm); err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	for i, p := range t.Places {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO trip_places (trip_id, seq, lat, lon, label) VALUES ($1, $2, $3, $4, $5)`,
			t.ID, i, p.Lat, p.Lon, p.Label); err != nil {
			return fmt.Errorf("insert trip_places: %w", err)
		}
	}
	return tx.Commit()
}
