// Package config loads application settings from an optional YAML file and
// BGGCACHE_* environment variables, in that order.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// TextCodeInvalidConfig marks configuration that cannot be loaded or used.
const TextCodeInvalidConfig = "INVALID_CONFIG"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BGGCACHE_"

type Config struct {
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	Freshness FreshnessConfig `yaml:"freshness" envPrefix:"FRESHNESS_"`
	Refresh   RefreshConfig   `yaml:"refresh" envPrefix:"REFRESH_"`
	ReadCache ReadCacheConfig `yaml:"read_cache" envPrefix:"READ_CACHE_"`
	BGG       BGGConfig       `yaml:"bgg" envPrefix:"BGG_"`
	HTTP      HTTPConfig      `yaml:"http" envPrefix:"HTTP_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

type DatabaseConfig struct {
	Driver        string `yaml:"driver" env:"DRIVER"`
	DSN           string `yaml:"dsn" env:"DSN"`
	MaxOpenConns  int    `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" env:"BUSY_TIMEOUT_MS"`
	Debug         bool   `yaml:"debug" env:"DEBUG"`
}

type FreshnessConfig struct {
	Window time.Duration `yaml:"window" env:"WINDOW"`
	// MinSchemaVersion is the oldest schema version still considered fresh.
	MinSchemaVersion int `yaml:"min_schema_version" env:"MIN_SCHEMA_VERSION"`
	// WriteSchemaVersion is stamped on every refreshed record.
	WriteSchemaVersion int `yaml:"write_schema_version" env:"WRITE_SCHEMA_VERSION"`
}

type RefreshConfig struct {
	BatchSize int           `yaml:"batch_size" env:"BATCH_SIZE"`
	Delay     time.Duration `yaml:"delay" env:"DELAY"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type ReadCacheConfig struct {
	Enabled            bool          `yaml:"enabled" env:"ENABLED"`
	Capacity           int           `yaml:"capacity" env:"CAPACITY"`
	Shards             int           `yaml:"shards" env:"SHARDS"`
	TTL                time.Duration `yaml:"ttl" env:"TTL"`
	EvictionPercentage int           `yaml:"eviction_percentage" env:"EVICTION_PERCENTAGE"`
}

type BGGConfig struct {
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Token       string        `yaml:"token" env:"TOKEN"`
	UserAgent   string        `yaml:"user_agent" env:"USER_AGENT"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

type LogConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Format     string `yaml:"format" env:"FORMAT"`
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled" env:"ENABLED"`
	Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// Default returns a configuration that runs against a local sqlite file
// and the public BGG API.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:        "sqlite3",
			DSN:           "file:bggcache.db?cache=shared",
			BusyTimeoutMS: 5000,
		},
		Freshness: FreshnessConfig{
			Window:             7 * 24 * time.Hour,
			MinSchemaVersion:   2,
			WriteSchemaVersion: 2,
		},
		Refresh: RefreshConfig{
			BatchSize: 20,
			Delay:     time.Second,
			Timeout:   2 * time.Minute,
		},
		ReadCache: ReadCacheConfig{
			Enabled:            true,
			Capacity:           2000,
			Shards:             16,
			TTL:                30 * time.Second,
			EvictionPercentage: 10,
		},
		BGG: BGGConfig{
			BaseURL:     "https://boardgamegeek.com",
			UserAgent:   "go-bgg-cache",
			Timeout:     30 * time.Second,
			MaxAttempts: 5,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Telemetry: TelemetryConfig{ServiceName: "bggcache", SampleRatio: 1},
	}
}

// Load reads path (when not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	return load(path, nil)
}

// LoadWithEnv is Load with an explicit environment instead of the process
// one.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	return load(path, environ)
}

func load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, invalid(err, "read config file", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, invalid(err, "parse config file", path)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return Config{}, invalid(err, "parse environment", path)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Database),
		validation.Field(&c.Freshness),
		validation.Field(&c.Refresh),
		validation.Field(&c.ReadCache),
		validation.Field(&c.BGG),
		validation.Field(&c.Log),
		validation.Field(&c.Telemetry),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid configuration").
			WithTextCode(TextCodeInvalidConfig)
	}
	return nil
}

func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In("sqlite3", "sqlite", "postgres", "postgresql", "pg")),
		validation.Field(&d.DSN, validation.Required),
		validation.Field(&d.MaxOpenConns, validation.Min(0)),
		validation.Field(&d.BusyTimeoutMS, validation.Min(0)),
	)
}

func (f FreshnessConfig) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Window, validation.Required, validation.Min(time.Minute)),
		validation.Field(&f.MinSchemaVersion, validation.Min(0)),
		validation.Field(&f.WriteSchemaVersion, validation.Min(f.MinSchemaVersion)),
	)
}

func (r RefreshConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BatchSize, validation.Required, validation.Min(1), validation.Max(20)),
		validation.Field(&r.Delay, validation.Min(time.Duration(0))),
		validation.Field(&r.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

func (r ReadCacheConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Capacity, validation.When(r.Enabled, validation.Required, validation.Min(1))),
		validation.Field(&r.Shards, validation.When(r.Enabled, validation.Required, validation.Min(1))),
		validation.Field(&r.TTL, validation.When(r.Enabled, validation.Required, validation.Min(time.Millisecond))),
		validation.Field(&r.EvictionPercentage, validation.When(r.Enabled, validation.Required, validation.Min(1), validation.Max(100))),
	)
}

func (b BGGConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.BaseURL, validation.Required),
		validation.Field(&b.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&b.MaxAttempts, validation.Min(0), validation.Max(10)),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("", "debug", "info", "warn", "warning", "error")),
		validation.Field(&l.Format, validation.In("", "text", "json")),
	)
}

func (t TelemetryConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Endpoint, validation.When(t.Enabled, validation.Required)),
		validation.Field(&t.SampleRatio, validation.Min(0.0), validation.Max(1.0)),
	)
}

func invalid(err error, msg, path string) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, msg).
		WithTextCode(TextCodeInvalidConfig).
		WithMetadata(map[string]any{"path": path})
}
