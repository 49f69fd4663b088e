package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pixelpath/internal/api"
	"pixelpath/internal/catalog"
	"pixelpath/internal/config"
	"pixelpath/internal/db"
	"pixelpath/internal/geocode"
	"pixelpath/internal/logging"
	"pixelpath/internal/metrics"
	"pixelpath/internal/osrm"
	"pixelpath/internal/publisher"
	"pixelpath/internal/session"
	"pixelpath/internal/sim"
)

func main() {
	importDir := flag.String("import-gpx", "", "import every .gpx file in this directory into DATABASE_URL and exit")
	flag.Parse()

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewStructuredLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *importDir != "" {
		err = importGPX(ctx, cfg, *importDir, logger)
	} else {
		err = run(ctx, cfg, logger)
	}
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	mcol := metrics.NewCollector(cfg.TickInterval)

	// Trip catalogs: built-in samples, then GPX files, then the database
	catalogs := catalog.Chain{catalog.Samples()}
	if cfg.GPXDir != "" {
		gpxCat, err := catalog.LoadGPXDir(cfg.GPXDir)
		if err != nil {
			return logging.Fatal(logger, "load gpx catalog", err)
		}
		catalogs = append(catalogs, gpxCat)
	}
	var ping func(context.Context) error
	if cfg.DatabaseURL != "" {
		sqlDB, err := openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return logging.Fatal(logger, "database", err)
		}
		defer logging.SafeCloseWithLogging(sqlDB, logger, "database")
		catalogs = append(catalogs, db.NewTripStore(sqlDB))
		ping = func(ctx context.Context) error { return db.Ping(ctx, sqlDB) }
	}

	router := osrm.NewClient(cfg.OSRMURL, cfg.OSRMProfile, cfg.HTTPTimeout)

	var geocoder *geocode.Client
	geoOpts := []geocode.Option{
		geocode.WithMetrics(mcol),
		geocode.WithRateLimit(cfg.GeocodeRatePerSec),
		geocode.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	}
	switch cfg.Geocoder {
	case "maptiler":
		geocoder = geocode.NewMapTiler(cfg.MapTilerURL, cfg.MapTilerKey, logger, geoOpts...)
	default:
		geocoder = geocode.NewNominatim(cfg.NominatimURL, logger, geoOpts...)
	}

	mgrOpts := []sim.Option{
		sim.WithLogger(logger),
		sim.WithMetrics(mcol),
		sim.WithOriginCheck(originChecker(cfg.CORSOrigins)),
	}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.LogNATSSubjects, mcol, logger)
		if err != nil {
			return logging.Fatal(logger, "nats", err)
		}
		defer pub.Close()
		mgrOpts = append(mgrOpts, sim.WithWidget(pub))
		logger.Info("publishing frames to nats", slog.String("subject", publisher.Subject("*")))
	}
	mgr := sim.NewManager(catalogs, router, cfg.TickInterval, mgrOpts...)
	mgr.StartReaper(ctx, cfg.SessionIdleTTL, time.Minute)
	defer mgr.Stop()

	// Metrics on their own listener when configured; always on /metrics too
	if cfg.MetricsAddr != "" {
		msrv := mcol.Serve(cfg.MetricsAddr, logger)
		defer shutdown(msrv, logger)
	}

	handler := api.NewRouter(api.Deps{
		Catalog:      catalogs,
		Sessions:     mgr,
		Geocoder:     geocoder,
		Auth:         session.NewChecker(cfg.AuthBackendURL, cfg.HTTPTimeout),
		Metrics:      mcol.Handler(),
		Ping:         ping,
		RequireLogin: cfg.RequireLogin,
		CORSOrigins:  cfg.CORSOrigins,
		Logger:       logger,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info("api listening", slog.String("addr", cfg.HTTPAddr),
			slog.String("osrm", cfg.OSRMURL), slog.String("geocoder", cfg.Geocoder))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// Block until context cancelled or the server dies
	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return logging.Fatal(logger, "http server", err)
		}
	}
	shutdown(srv, logger)
	logger.Info("shutdown complete")
	return nil
}

func importGPX(ctx context.Context, cfg *config.Config, dir string, logger *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return logging.Fatal(logger, "import gpx", errors.New("DATABASE_URL is not set"))
	}
	trips, err := catalog.LoadGPXDir(dir)
	if err != nil {
		return logging.Fatal(logger, "import gpx", err)
	}
	sqlDB, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return logging.Fatal(logger, "database", err)
	}
	defer logging.SafeCloseWithLogging(sqlDB, logger, "database")

	store := db.NewTripStore(sqlDB)
	list, err := trips.List(ctx)
	if err != nil {
		return logging.Fatal(logger, "import gpx", err)
	}
	for _, t := range list {
		if err := store.PutTrip(ctx, t); err != nil {
			return logging.Fatal(logger, "import trip "+t.ID, err)
		}
		logging.LogOperation(logger, "imported trip",
			slog.String("trip_id", t.ID),
			slog.Int("places", len(t.Places)))
	}
	logger.Info("import complete", slog.Int("trips", len(list)))
	return nil
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.EnsureSchema(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.LogError(logger, "server shutdown", err, slog.String("addr", srv.Addr))
	}
}

// originChecker matches WebSocket origins against the CORS allow list. An empty
// list or "*" allows any origin.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return nil
		}
		set[o] = true
	}
	if len(set) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
