package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	Database  DatabaseConfig
	Redis     RedisConfig
	Geo       GeoConfig
	Sweep     SweepConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// RedisConfig holds the optional Redis connection used for the sweep lock.
// Empty Addr means no Redis: single-node deployment, sweep runs unlocked.
type RedisConfig struct {
	Addr     string
	Password string
}

// GeoConfig holds visit validation tuning
type GeoConfig struct {
	// FakeVisitThresholdMeters is the maximum distance between the
	// submitted coordinates and the case address before a visit is
	// auto-flagged.
	FakeVisitThresholdMeters float64
}

// SweepConfig holds the broken-PTP sweep schedule
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	threshold := 300.0
	if v := os.Getenv("GEO_FAKE_VISIT_THRESHOLD_M"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid GEO_FAKE_VISIT_THRESHOLD_M: %q", v)
		}
		threshold = parsed
	}

	sweepInterval := 24 * time.Hour
	if v := os.Getenv("PTP_SWEEP_INTERVAL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid PTP_SWEEP_INTERVAL: %q", v)
		}
		sweepInterval = parsed
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3001"),
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "fieldcollect"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDRESS"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Geo: GeoConfig{
			FakeVisitThresholdMeters: threshold,
		},
		Sweep: SweepConfig{
			Enabled:  getEnv("PTP_SWEEP_ENABLED", "true") == "true",
			Interval: sweepInterval,
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
