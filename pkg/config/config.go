// Package config provides the core configuration system for tmplhub
package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/logger"
)

// Config represents the unified configuration structure
type Config struct {
	// Engine settings
	DefaultEngine string         `json:"default_engine" yaml:"default_engine"`
	TemplateRoot  string         `json:"template_root" yaml:"template_root"`
	Engines       []EngineConfig `json:"engines,omitempty" yaml:"engines,omitempty"`

	// SessionsEnabled exposes the request session to templates as "session".
	// It defaults to false; enable it to load the session on every request.
	SessionsEnabled bool `json:"sessions_enabled" yaml:"sessions_enabled"`

	// Values is the configuration mapping templates see as "config".
	Values map[string]any `json:"values,omitempty" yaml:"values,omitempty"`

	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Logger    LoggerConfig    `json:"logger" yaml:"logger"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Reload    ReloadConfig    `json:"reload" yaml:"reload"`

	// Instance-level settings
	LoggerInstance logger.Logger `json:"-" yaml:"-"`
}

// EngineConfig describes one engine to prepare at startup
type EngineConfig struct {
	Name    string         `json:"name" yaml:"name"`
	Alias   string         `json:"alias,omitempty" yaml:"alias,omitempty"`
	Root    string         `json:"root,omitempty" yaml:"root,omitempty"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Key returns the name the engine is registered under in the facade.
func (e EngineConfig) Key() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Name
}

// CacheConfig configures the render cache backends
type CacheConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	DefaultType      string        `json:"default_type" yaml:"default_type"`
	Dir              string        `json:"dir" yaml:"dir"`
	DBMPath          string        `json:"dbm_path,omitempty" yaml:"dbm_path,omitempty"`
	DatabaseDSN      string        `json:"database_dsn,omitempty" yaml:"database_dsn,omitempty"`
	RedisAddr        string        `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword    string        `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB          int           `json:"redis_db" yaml:"redis_db"`
	RedisPrefix      string        `json:"redis_prefix" yaml:"redis_prefix"`
	MemoryMaxEntries int           `json:"memory_max_entries" yaml:"memory_max_entries"`
	CleanupInterval  time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
	Layers           []string      `json:"layers,omitempty" yaml:"layers,omitempty"`
}

// LoggerConfig configures logging behavior
type LoggerConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// TelemetryConfig configures OpenTelemetry export
type TelemetryConfig struct {
	Enabled        bool              `json:"enabled" yaml:"enabled"`
	ServiceName    string            `json:"service_name" yaml:"service_name"`
	ServiceVersion string            `json:"service_version" yaml:"service_version"`
	Environment    string            `json:"environment" yaml:"environment"`
	OTLPEndpoint   string            `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty"`
	OTLPHeaders    map[string]string `json:"otlp_headers,omitempty" yaml:"otlp_headers,omitempty"`
	Insecure       bool              `json:"insecure" yaml:"insecure"`
	SampleRate     float64           `json:"sample_rate" yaml:"sample_rate"`
}

// ReloadConfig configures template hot reload
type ReloadConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Debounce time.Duration `json:"debounce" yaml:"debounce"`
}

// Option defines a functional option for configuration
type Option func(*Config) error

// New creates a new configuration with the given options
func New(opts ...Option) (*Config, error) {
	cfg := defaultConfig()

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load reads a YAML file and applies opts on top of it.
func Load(path string, opts ...Option) (*Config, error) {
	return New(append([]Option{WithFile(path)}, opts...)...)
}

func defaultConfig() *Config {
	return &Config{
		DefaultEngine: "pongo2",
		TemplateRoot:  "templates",
		Values:        make(map[string]any),
		Cache: CacheConfig{
			DefaultType:      "dbm",
			Dir:              "data/cache",
			RedisPrefix:      "tmplhub:",
			MemoryMaxEntries: 1000,
			CleanupInterval:  5 * time.Minute,
		},
		Logger: LoggerConfig{
			Level:  "warn",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "tmplhub",
			ServiceVersion: "dev",
			Environment:    "development",
			SampleRate:     1.0,
		},
		Reload: ReloadConfig{
			Debounce: 100 * time.Millisecond,
		},
	}
}

// HasEngine returns true if an engine is configured under key
func (c *Config) HasEngine(key string) bool {
	for _, e := range c.Engines {
		if e.Key() == key {
			return true
		}
	}
	return false
}

// Validate fills in defaults and rejects configurations that cannot be used
func (c *Config) Validate() error {
	if c.TemplateRoot == "" {
		c.TemplateRoot = "templates"
	}
	if c.Values == nil {
		c.Values = make(map[string]any)
	}

	if c.Cache.DefaultType == "" {
		c.Cache.DefaultType = "dbm"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "data/cache"
	}
	if c.Cache.MemoryMaxEntries <= 0 {
		c.Cache.MemoryMaxEntries = 1000
	}
	if c.Cache.CleanupInterval <= 0 {
		c.Cache.CleanupInterval = 5 * time.Minute
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "warn"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "tmplhub"
	}
	if c.Telemetry.SampleRate <= 0 {
		c.Telemetry.SampleRate = 1.0
	}

	if c.Reload.Debounce <= 0 {
		c.Reload.Debounce = 100 * time.Millisecond
	}

	result := NewValidator(true).Validate(c)
	if !result.Valid {
		first := result.Errors[0]
		return tmplerrors.Newf(tmplerrors.CodeInvalidConfig, "%s: %s", first.Field, first.Message).
			WithMetadata("errors", len(result.Errors))
	}

	if c.LoggerInstance == nil {
		c.LoggerInstance = c.Logger.Build()
	}

	return nil
}

// Build creates a logger from the configured level and format
func (l LoggerConfig) Build() logger.Logger {
	level := logger.ParseLevel(l.Level)
	switch l.Format {
	case "tint", "console":
		return logger.NewTint(os.Stderr, level)
	case "json":
		return logger.NewSlog(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})), level)
	default:
		return logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags), level, "[tmplhub]")
	}
}

// String returns a short description for logs
func (c *Config) String() string {
	return fmt.Sprintf("Config{default_engine=%s, template_root=%s, engines=%d, cache=%s}",
		c.DefaultEngine, c.TemplateRoot, len(c.Engines), c.Cache.DefaultType)
}
