package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. Values come from the
// environment first and from an optional config file second.
type Config struct {
	// Block explorer configuration
	ExplorerAPIURL   string
	ExplorerAPIKey   string
	ExplorerPageSize int
	HTTPTimeout      time.Duration

	// Price cache configuration
	PriceCachePath        string
	PriceCacheDatabaseURL string

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Observability
	MetricsAddr string
	LogLevel    string
	LogFormat   string
}

const (
	DefaultExplorerAPIURL = "https://api.arbiscan.io/api"
	DefaultPageSize       = 100
	MaxPageSize           = 10000
)

// lookup resolves a configuration key to its raw value ("" when unset).
type lookup func(key string) string

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	return load(os.Getenv)
}

// LoadWithFile reads configuration from the environment, falling back to the
// given TOML, YAML or JSON file for keys the environment leaves unset.
// Keys in the file are the environment variable names, matched case-insensitively.
func LoadWithFile(path string) (*Config, error) {
	values, err := readValues(path)
	if err != nil {
		return nil, err
	}
	return load(func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return values[key]
	})
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// LoadDotEnv loads variables from .env files into the process environment.
// Variables already set are left alone, and missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func load(get lookup) (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ExplorerAPIURL = orDefault(get, "EXPLORER_API_URL", DefaultExplorerAPIURL)
	cfg.ExplorerAPIKey = get("EXPLORER_API_KEY")
	if cfg.ExplorerAPIKey == "" {
		cfg.ExplorerAPIKey = get("ETHERSCAN_API_KEY")
	}

	pageSize, err := parseInt(get, "EXPLORER_PAGE_SIZE", DefaultPageSize)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ExplorerPageSize = pageSize
	}

	timeout, err := parseDuration(get, "HTTP_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HTTPTimeout = timeout
	}

	cfg.PriceCachePath = orDefault(get, "PRICE_CACHE_PATH", "prices.json")
	cfg.PriceCacheDatabaseURL = get("PRICE_CACHE_DATABASE_URL")

	cfg.NATSURL = get("NATS_URL")

	cfg.TemporalHost = orDefault(get, "TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = orDefault(get, "TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = orDefault(get, "TEMPORAL_TASK_QUEUE", "arbledger-export")

	cfg.MetricsAddr = orDefault(get, "METRICS_ADDR", ":9091")
	cfg.LogLevel = strings.ToLower(orDefault(get, "LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(orDefault(get, "LOG_FORMAT", "json"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.ExplorerAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("EXPLORER_API_URL must be an absolute http(s) URL, got %q", c.ExplorerAPIURL))
	}

	if c.ExplorerPageSize < 1 || c.ExplorerPageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("EXPLORER_PAGE_SIZE must be between 1 and %d, got %d", MaxPageSize, c.ExplorerPageSize))
	}

	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_TIMEOUT must be positive"))
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TEMPORAL_TASK_QUEUE is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel converts a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", level)
	}
}

// readValues decodes a config file into a flat map keyed by upper-cased names.
func readValues(path string) (map[string]string, error) {
	raw := map[string]any{}
	if err := DecodeFile(path, &raw); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("config file %s: key %q must be a scalar", path, k)
		}
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return values, nil
}

func orDefault(get lookup, key, defaultValue string) string {
	if value := get(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(get lookup, key, defaultValue string) (time.Duration, error) {
	value := orDefault(get, key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

func parseInt(get lookup, key string, defaultValue int) (int, error) {
	value := get(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
