package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	MetricsAddr string
	CORSOrigins []string
	LogLevel    string

	DatabaseURL string
	GPXDir      string

	OSRMURL     string
	OSRMProfile string
	HTTPTimeout time.Duration

	Geocoder          string
	NominatimURL      string
	MapTilerURL       string
	MapTilerKey       string
	GeocodeRatePerSec float64

	AuthBackendURL string

	TickInterval   time.Duration
	SessionIdleTTL time.Duration
	RequireLogin   bool

	NATSURL         string
	LogNATSSubjects bool
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:       getenvDefault("HTTP_ADDR", ":8080"),
		MetricsAddr:    os.Getenv("METRICS_ADDR"),
		LogLevel:       getenvDefault("LOG_LEVEL", "info"),
		DatabaseURL:    firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")),
		GPXDir:         os.Getenv("GPX_DIR"),
		OSRMURL:        strings.TrimRight(getenvDefault("OSRM_URL", "https://router.project-osrm.org"), "/"),
		OSRMProfile:    getenvDefault("OSRM_PROFILE", "driving"),
		NominatimURL:   strings.TrimRight(getenvDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"), "/"),
		MapTilerURL:    strings.TrimRight(getenvDefault("MAPTILER_URL", "https://api.maptiler.com"), "/"),
		MapTilerKey:    os.Getenv("MAPTILER_KEY"),
		AuthBackendURL: strings.TrimRight(os.Getenv("AUTH_BACKEND_URL"), "/"),
		NATSURL:        os.Getenv("NATS_URL"),
	}

	cfg.CORSOrigins = splitList(getenvDefault("CORS_ORIGINS", "http://localhost:5173"))

	cfg.Geocoder = strings.ToLower(getenvDefault("GEOCODER", "nominatim"))
	switch cfg.Geocoder {
	case "nominatim":
	case "maptiler":
		if cfg.MapTilerKey == "" {
			return nil, fmt.Errorf("MAPTILER_KEY must be set when GEOCODER=maptiler")
		}
	default:
		return nil, fmt.Errorf("invalid GEOCODER: %q", cfg.Geocoder)
	}

	// Tick interval at 1x speed
	if v := os.Getenv("TICK_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid TICK_INTERVAL_MS: %q", v)
		}
		cfg.TickInterval = time.Duration(ms) * time.Millisecond
	} else {
		cfg.TickInterval = time.Second
	}

	// Sessions nobody touched for this long are closed. 0 keeps them forever.
	if v := os.Getenv("SESSION_IDLE_MIN"); v != "" {
		mins, err := strconv.Atoi(v)
		if err != nil || mins < 0 {
			return nil, fmt.Errorf("invalid SESSION_IDLE_MIN: %q", v)
		}
		cfg.SessionIdleTTL = time.Duration(mins) * time.Minute
	} else {
		cfg.SessionIdleTTL = 30 * time.Minute
	}

	if v := os.Getenv("HTTP_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT_SEC: %q", v)
		}
		cfg.HTTPTimeout = time.Duration(sec) * time.Second
	} else {
		cfg.HTTPTimeout = 15 * time.Second
	}

	// Nominatim's usage policy allows one request per second
	if v := os.Getenv("GEOCODE_RATE_PER_SEC"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid GEOCODE_RATE_PER_SEC: %q", v)
		}
		cfg.GeocodeRatePerSec = f
	} else {
		cfg.GeocodeRatePerSec = 1
	}

	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		cfg.LogNATSSubjects = parseBool(v)
	}
	cfg.RequireLogin = parseBool(os.Getenv("REQUIRE_LOGIN"))
	if cfg.RequireLogin && cfg.AuthBackendURL == "" {
		return nil, fmt.Errorf("REQUIRE_LOGIN needs AUTH_BACKEND_URL")
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
