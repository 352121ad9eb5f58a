package config

import (
	"fmt"
	"github.com/joho/godotenv"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
	"github.com/i474232898/air-quality-forecast/internal/features"
)

// Defaults for the tracked location.
const (
	DefaultLocationName    = "Karachi"
	DefaultLocationCountry = "PK"
	DefaultLatitude        = 24.8608
	DefaultLongitude       = 67.0011

	DefaultStoreURL = "redis://localhost:6379/0"
)

type AppConfig struct {
	// StoreURL selects the record store backend by scheme.
	StoreURL string

	ArtifactDir  string
	ArtifactKeep int // number of model versions kept on disk

	Location       aqi.Location
	GeocoderAPIKey string

	HTTPTimeout      time.Duration
	SourceMaxRetries int
	SourceTimezone   string

	IngestHistoryDays int
	IngestPastDays    int

	Features features.Config

	TrainTestFraction float64
	TrainSeed         uint64
	TrainScaler       string
	TrainRoster       []string // empty = default roster

	// Scheduler intervals; 0 disables the job.
	IngestInterval time.Duration
	TrainInterval  time.Duration

	ForecastDailyDrift float64

	PublishRedisURL string

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.StoreURL = getenvDefault("STORE_URL", DefaultStoreURL)
	cfg.ArtifactDir = getenvDefault("ARTIFACT_DIR", "models")
	if cfg.ArtifactKeep, err = getenvInt("ARTIFACT_KEEP", 3); err != nil {
		return nil, err
	}

	if cfg.Location, err = loadLocation(); err != nil {
		return nil, err
	}
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SourceMaxRetries, err = getenvInt("SOURCE_MAX_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.SourceMaxRetries < 0 {
		return nil, fmt.Errorf("SOURCE_MAX_RETRIES must not be negative, got %d", cfg.SourceMaxRetries)
	}
	cfg.SourceTimezone = getenvDefault("SOURCE_TIMEZONE", "GMT")
	if cfg.IngestHistoryDays, err = getenvInt("INGEST_HISTORY_DAYS", 365); err != nil {
		return nil, err
	}
	if cfg.IngestPastDays, err = getenvInt("INGEST_PAST_DAYS", 2); err != nil {
		return nil, err
	}

	if cfg.Features, err = loadFeatures(); err != nil {
		return nil, err
	}

	if cfg.TrainTestFraction, err = getenvFloat("TRAIN_TEST_FRACTION", 0.2); err != nil {
		return nil, err
	}
	if cfg.TrainTestFraction <= 0 || cfg.TrainTestFraction >= 1 {
		return nil, fmt.Errorf("TRAIN_TEST_FRACTION must be in (0, 1), got %v", cfg.TrainTestFraction)
	}
	if cfg.TrainSeed, err = getenvUint64("TRAIN_SEED", 42); err != nil {
		return nil, err
	}
	cfg.TrainScaler = strings.ToLower(getenvDefault("TRAIN_SCALER", "robust"))
	if cfg.TrainScaler != "robust" && cfg.TrainScaler != "none" {
		return nil, fmt.Errorf("TRAIN_SCALER must be robust or none, got %q", cfg.TrainScaler)
	}
	cfg.TrainRoster = getenvList("TRAIN_ROSTER")

	if cfg.IngestInterval, err = getenvDuration("INGEST_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.TrainInterval, err = getenvDuration("TRAIN_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}

	if cfg.ForecastDailyDrift, err = getenvFloat("FORECAST_DAILY_DRIFT", 0.5); err != nil {
		return nil, err
	}
	cfg.PublishRedisURL = os.Getenv("PUBLISH_REDIS_URL")
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

// loadLocation reads the tracked location. Coordinates default to Karachi's
// only when the default location is used; any other place without explicit
// coordinates is left for geocoding.
func loadLocation() (aqi.Location, error) {
	loc := aqi.Location{
		Name:    getenvDefault("LOCATION_NAME", DefaultLocationName),
		Country: getenvDefault("LOCATION_COUNTRY", DefaultLocationCountry),
	}

	latRaw, lonRaw := os.Getenv("LOCATION_LAT"), os.Getenv("LOCATION_LON")
	if (latRaw == "") != (lonRaw == "") {
		return loc, fmt.Errorf("LOCATION_LAT and LOCATION_LON must be set together")
	}
	if latRaw != "" {
		lat, err := strconv.ParseFloat(latRaw, 64)
		if err != nil || lat < -90 || lat > 90 {
			return loc, fmt.Errorf("invalid LOCATION_LAT %q", latRaw)
		}
		lon, err := strconv.ParseFloat(lonRaw, 64)
		if err != nil || lon < -180 || lon > 180 {
			return loc, fmt.Errorf("invalid LOCATION_LON %q", lonRaw)
		}
		loc.Lat, loc.Lon = &lat, &lon
		return loc, nil
	}

	if loc.Name == DefaultLocationName && loc.Country == DefaultLocationCountry {
		lat, lon := DefaultLatitude, DefaultLongitude
		loc.Lat, loc.Lon = &lat, &lon
	}
	return loc, nil
}

// loadFeatures starts from the FEATURE_SET preset and applies overrides.
func loadFeatures() (features.Config, error) {
	fc, err := features.Preset(strings.ToLower(getenvDefault("FEATURE_SET", features.SetBasic)))
	if err != nil {
		return fc, fmt.Errorf("invalid FEATURE_SET: %w", err)
	}

	if fc.Horizon, err = getenvInt("FEATURE_HORIZON", fc.Horizon); err != nil {
		return fc, err
	}
	if v := getenvList("FEATURE_LAGS"); v != nil {
		if fc.Lags, err = atoiAll(v); err != nil {
			return fc, fmt.Errorf("invalid FEATURE_LAGS: %w", err)
		}
	}
	if v := getenvList("FEATURE_WINDOWS"); v != nil {
		if fc.Windows, err = atoiAll(v); err != nil {
			return fc, fmt.Errorf("invalid FEATURE_WINDOWS: %w", err)
		}
	}
	if v := os.Getenv("FEATURE_WINDOW_POLICY"); v != "" {
		fc.Policy = features.WindowPolicy(strings.ToLower(v))
	}
	if v := os.Getenv("FEATURE_ROLLING_STD"); v != "" {
		if fc.RollingStd, err = strconv.ParseBool(v); err != nil {
			return fc, fmt.Errorf("invalid FEATURE_ROLLING_STD: %w", err)
		}
	}

	if err := fc.Validate(); err != nil {
		return fc, fmt.Errorf("invalid feature configuration: %w", err)
	}
	return fc, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvUint64(key string, def uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getenvList splits a comma separated value, dropping empty items.
// It returns nil when the variable is unset or empty.
func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func atoiAll(in []string) ([]int, error) {
	out := make([]int, 0, len(in))
	for _, s := range in {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
