package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelvins/geocoder"
)

// AppConfig holds all process-level configuration, read once at startup.
type AppConfig struct {
	// Target city. All sources are filtered/queried for this metro area.
	City    string
	Country string
	CityLat float64
	CityLon float64

	// WAQI bounding-box scan, "lat1,lon1,lat2,lon2".
	WAQIBounds string

	// API credentials. A missing key disables the corresponding job for
	// the lifetime of the process (logged once at startup).
	DataGovAPIKey     string
	WAQIToken         string
	TomTomAPIKey      string
	OpenWeatherAPIKey string
	GeocoderAPIKey    string

	// Database connection.
	DBHost    string
	DBPort    string
	DBUser    string
	DBPass    string
	DBName    string
	DBSSLMode string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Outbound HTTP behaviour.
	HTTPTimeout      time.Duration
	TrafficPollDelay time.Duration // fixed delay between per-station traffic requests
	RateLimitBackoff time.Duration // single backoff after a 429 before skipping

	// Fusion / windowing.
	LookbackDays int
	WindowSize   int
	ScalerPath   string

	// Forecasting model server; empty disables the forecast endpoint.
	ModelURL string

	Port     string
	Env      string
	LogLevel slog.Level
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "reason", err)
	}

	cfg := &AppConfig{
		City:    getenvDefault("AERIS_CITY", "Bengaluru"),
		Country: getenvDefault("AERIS_COUNTRY", "IN"),

		WAQIBounds: getenvDefault("WAQI_BOUNDS", "12.700000,77.350000,13.250000,77.850000"),

		DataGovAPIKey:     os.Getenv("DATA_GOV_API_KEY"),
		WAQIToken:         os.Getenv("WAQI_TOKEN"),
		TomTomAPIKey:      os.Getenv("TOMTOM_API_KEY"),
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		GeocoderAPIKey:    os.Getenv("GEOCODER_API_KEY"),

		DBHost:    getenvDefault("DB_HOST", "localhost"),
		DBPort:    getenvDefault("DB_PORT", "5432"),
		DBUser:    getenvDefault("DB_USER", "postgres"),
		DBPass:    os.Getenv("DB_PASS"),
		DBName:    getenvDefault("DB_NAME", "aeris"),
		DBSSLMode: getenvDefault("DB_SSLMODE", "disable"),

		DBMaxOpenConns: getenvInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns: getenvInt("DB_MAX_IDLE_CONNS", 5),

		LookbackDays: getenvInt("FUSION_LOOKBACK_DAYS", 30),
		WindowSize:   getenvInt("FUSION_WINDOW_SIZE", 24),
		ScalerPath:   getenvDefault("SCALER_PATH", "scaler.json"),

		ModelURL: os.Getenv("MODEL_URL"),

		Port: getenvDefault("PORT", "8080"),
		Env:  getenvDefault("APP_ENV", "dev"),
	}

	var err error
	if cfg.DBConnMaxLifetime, err = getenvDuration("DB_CONN_MAX_LIFETIME", time.Hour); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.TrafficPollDelay, err = getenvDuration("TRAFFIC_POLL_DELAY", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.RateLimitBackoff, err = getenvDuration("RATE_LIMIT_BACKOFF", 2*time.Second); err != nil {
		return nil, err
	}

	switch getenvDefault("LOG_LEVEL", "info") {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	if err := cfg.resolveCityCoordinates(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveCityCoordinates fills CityLat/CityLon from the environment, or by
// geocoding the configured city when a geocoder key is available.
func (c *AppConfig) resolveCityCoordinates() error {
	latStr, lonStr := os.Getenv("AERIS_CITY_LAT"), os.Getenv("AERIS_CITY_LON")
	if latStr != "" && lonStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return fmt.Errorf("invalid AERIS_CITY_LAT: %w", err)
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return fmt.Errorf("invalid AERIS_CITY_LON: %w", err)
		}
		c.CityLat, c.CityLon = lat, lon
		return nil
	}

	if c.GeocoderAPIKey != "" {
		geocoder.ApiKey = c.GeocoderAPIKey
		loc, err := geocoder.Geocoding(geocoder.Address{City: c.City, Country: c.Country})
		if err != nil {
			return fmt.Errorf("geocode %s,%s: %w", c.City, c.Country, err)
		}
		c.CityLat, c.CityLon = loc.Latitude, loc.Longitude
		return nil
	}

	// Bengaluru city centre.
	c.CityLat, c.CityLon = 12.9716, 77.5946
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
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
