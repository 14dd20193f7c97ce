package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/AccuracyTracker/models"
)

// Store backends
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	UpstreamURL    string             `env:"UPSTREAM_URL" envDefault:"http://localhost:8000"`
	Instruments    []string           `env:"INSTRUMENTS" envDefault:"nifty,banknifty,sensex"`
	Instrument     string             `env:"INSTRUMENT" envDefault:"nifty"`
	Timeframes     []models.Timeframe `env:"TIMEFRAMES" envDefault:"5m,15m,1h"`
	PollInterval   time.Duration      `env:"POLL_INTERVAL" envDefault:"60s"`
	RequestTimeout int                `env:"REQUEST_TIMEOUT" envDefault:"30"` // seconds
	RequestsPerSec int                `env:"REQUESTS_PER_SEC" envDefault:"5"`
	MaxRetries     int                `env:"MAX_RETRIES" envDefault:"3"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"file"`
	StoreDir     string `env:"STORE_DIR" envDefault:"prediction_history"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	HTTPAddr         string `env:"HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config
	var err error

	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getEnvWithDefault("LOG_FORMAT", "console")

	cfg.UpstreamURL = strings.TrimRight(getEnvWithDefault("UPSTREAM_URL", "http://localhost:8000"), "/")
	cfg.Instruments = getEnvListWithDefault("INSTRUMENTS", []string{"nifty", "banknifty", "sensex"})
	cfg.Instrument = NormalizeInstrument(getEnvWithDefault("INSTRUMENT", "nifty"))
	cfg.PollInterval = getEnvDurationWithDefault("POLL_INTERVAL", 60*time.Second)
	cfg.RequestTimeout = getEnvIntWithDefault("REQUEST_TIMEOUT", 30)
	cfg.RequestsPerSec = getEnvIntWithDefault("REQUESTS_PER_SEC", 5)
	cfg.MaxRetries = getEnvIntWithDefault("MAX_RETRIES", 3)

	rawTimeframes := getEnvListWithDefault("TIMEFRAMES", []string{"5m", "15m", "1h"})
	cfg.Timeframes, err = parseTimeframes(rawTimeframes)
	if err != nil {
		return nil, err
	}

	cfg.StoreBackend = strings.ToLower(getEnvWithDefault("STORE_BACKEND", BackendFile))
	cfg.StoreDir = getEnvWithDefault("STORE_DIR", "prediction_history")

	cfg.DBHost = getEnvWithDefault("DB_HOST", "localhost")
	cfg.DBPort = getEnvWithDefault("DB_PORT", "5432")
	cfg.DBUser = os.Getenv("DB_USER")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	cfg.DBName = os.Getenv("DB_NAME")
	cfg.DBSSLMode = getEnvWithDefault("DB_SSLMODE", "disable")

	cfg.RedisAddr = getEnvWithDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvIntWithDefault("REDIS_DB", 0)

	cfg.HTTPAddr = getEnvWithDefault("HTTP_ADDR", "127.0.0.1:8080")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that have no safe fallback.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Instruments) == 0 {
		errs = append(errs, errors.New("INSTRUMENTS must list at least one instrument"))
	} else if !c.Tracks(c.Instrument) {
		errs = append(errs, fmt.Errorf("INSTRUMENT %q is not listed in INSTRUMENTS", c.Instrument))
	}
	if len(c.Timeframes) == 0 {
		errs = append(errs, errors.New("TIMEFRAMES must list at least one timeframe"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}

	switch c.StoreBackend {
	case BackendFile:
		if c.StoreDir == "" {
			errs = append(errs, errors.New("STORE_DIR is required for the file backend"))
		}
	case BackendPostgres:
		if c.DBName == "" || c.DBUser == "" {
			errs = append(errs, errors.New("DB_NAME and DB_USER are required for the postgres backend"))
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	return errors.Join(errs...)
}

// Tracks reports whether instrument is one of the configured instruments
func (c *Config) Tracks(instrument string) bool {
	instrument = NormalizeInstrument(instrument)
	for _, known := range c.Instruments {
		if known == instrument {
			return true
		}
	}
	return false
}

// NormalizeInstrument canonicalizes an instrument key.
func NormalizeInstrument(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func parseTimeframes(raw []string) ([]models.Timeframe, error) {
	seen := make(map[models.Timeframe]bool, len(raw))
	out := make([]models.Timeframe, 0, len(raw))
	for _, r := range raw {
		tf, err := models.ParseTimeframe(r)
		if err != nil {
			return nil, fmt.Errorf("TIMEFRAMES: %w", err)
		}
		if seen[tf] {
			continue
		}
		seen[tf] = true
		out = append(out, tf)
	}
	return out, nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Bare numbers are seconds
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration, using default")
	}
	return defaultValue
}

func getEnvListWithDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
