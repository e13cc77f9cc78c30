// Package config provides environment-variable loading helpers
// (EnvOrDefault, EnvBool, EnvInt, EnvDuration) and the typed Config assembled from
// them, plus an optional YAML overlay for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvOrDefault returns the trimmed environment variable value, or def if unset/blank.
func EnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// EnvBool parses a boolean environment variable. Accepts true/1/yes/y
// (case-insensitive) as true and false/0/no/n as false; anything else
// (including unset) yields def.
func EnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "y":
		return true
	case "false", "0", "no", "n":
		return false
	default:
		return def
	}
}

// EnvInt parses an integer environment variable, falling back to def on
// absence or parse failure.
func EnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// EnvDuration parses a Go duration environment variable (e.g. "500ms"),
// falling back to def on absence or parse failure.
func EnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// PartitionStrategy enumerates BUNSANE_PARTITION_STRATEGY values.
type PartitionStrategy string

const (
	PartitionList PartitionStrategy = "list"
	PartitionHash PartitionStrategy = "hash"
)

// CacheProvider enumerates CACHE_PROVIDER values.
type CacheProvider string

const (
	CacheProviderMemory     CacheProvider = "memory"
	CacheProviderRemote     CacheProvider = "remote"
	CacheProviderMultilevel CacheProvider = "multilevel"
	CacheProviderNoop       CacheProvider = "noop"
)

// CacheStrategy enumerates CACHE_STRATEGY values.
type CacheStrategy string

const (
	CacheStrategyWriteThrough   CacheStrategy = "write-through"
	CacheStrategyWriteInvalidate CacheStrategy = "write-invalidate"
)

// CacheCategoryConfig holds the enabled/TTL pair for one cache category.
type CacheCategoryConfig struct {
	Enabled bool
	TTL     time.Duration
}

// Config is the fully assembled, typed configuration for a running instance.
type Config struct {
	AppPort int

	DatabaseURL      string
	DatabasePoolSize int

	UseLateralJoins   bool
	PartitionStrategy PartitionStrategy
	UseDirectPartition bool

	CacheEnabled  bool
	CacheProvider CacheProvider
	CacheStrategy CacheStrategy
	CacheDefaultTTL time.Duration
	CacheEntity    CacheCategoryConfig
	CacheComponent CacheCategoryConfig
	CacheQuery     CacheCategoryConfig

	RedisURL string

	LogLevel string
	Debug    bool
	Env      string

	// ConfigFile is the path of the optional YAML overlay (from
	// BUNSANE_CONFIG_FILE) applied before environment variables are read
	// (env still wins on conflict) — a local-dev convenience on top of the
	// flat env-var surface. Empty when no overlay was used.
	ConfigFile string
}

// Load assembles a Config from the process environment, applying defaults
// for anything left unset.
func Load() (*Config, error) {
	overlay, err := loadYAMLOverlay(EnvOrDefault("BUNSANE_CONFIG_FILE", ""))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyOverlayToEnv(overlay)

	cfg := &Config{
		AppPort: EnvInt("APP_PORT", 3000),

		DatabaseURL:      EnvOrDefault("DATABASE_URL", ""),
		DatabasePoolSize: EnvInt("DATABASE_POOL_SIZE", 10),

		UseLateralJoins:    EnvBool("BUNSANE_USE_LATERAL_JOINS", true),
		PartitionStrategy:  PartitionStrategy(EnvOrDefault("BUNSANE_PARTITION_STRATEGY", string(PartitionList))),
		UseDirectPartition: EnvBool("BUNSANE_USE_DIRECT_PARTITION", true),

		CacheEnabled:    EnvBool("CACHE_ENABLED", true),
		CacheProvider:   CacheProvider(EnvOrDefault("CACHE_PROVIDER", string(CacheProviderMemory))),
		CacheStrategy:   CacheStrategy(EnvOrDefault("CACHE_STRATEGY", string(CacheStrategyWriteInvalidate))),
		CacheDefaultTTL: EnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),

		CacheEntity: CacheCategoryConfig{
			Enabled: EnvBool("CACHE_ENTITY_ENABLED", true),
			TTL:     EnvDuration("CACHE_ENTITY_TTL", 5*time.Minute),
		},
		CacheComponent: CacheCategoryConfig{
			Enabled: EnvBool("CACHE_COMPONENT_ENABLED", true),
			TTL:     EnvDuration("CACHE_COMPONENT_TTL", 5*time.Minute),
		},
		CacheQuery: CacheCategoryConfig{
			Enabled: EnvBool("CACHE_QUERY_ENABLED", true),
			TTL:     EnvDuration("CACHE_QUERY_TTL", 1*time.Minute),
		},

		RedisURL: EnvOrDefault("REDIS_URL", ""),

		LogLevel: EnvOrDefault("LOG_LEVEL", "info"),
		Debug:    EnvBool("DEBUG", false),
		Env:      EnvOrDefault("ENV", EnvOrDefault("NODE_ENV", "development")),

		ConfigFile: EnvOrDefault("BUNSANE_CONFIG_FILE", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.DatabasePoolSize <= 0 {
		return nil, fmt.Errorf("config: DATABASE_POOL_SIZE must be positive")
	}
	switch cfg.PartitionStrategy {
	case PartitionList, PartitionHash:
	default:
		return nil, fmt.Errorf("config: invalid BUNSANE_PARTITION_STRATEGY %q", cfg.PartitionStrategy)
	}

	return cfg, nil
}

// loadYAMLOverlay reads an optional YAML file of flat key/value config
// overrides. An empty path is a no-op.
func loadYAMLOverlay(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	var overlay map[string]string
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return overlay, nil
}

// applyOverlayToEnv sets environment variables from the overlay only where
// they are not already set, so real environment variables always win.
func applyOverlayToEnv(overlay map[string]string) {
	for k, v := range overlay {
		if _, set := os.LookupEnv(k); !set {
			os.Setenv(k, v)
		}
	}
}
