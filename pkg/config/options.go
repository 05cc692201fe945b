// Functional options for tmplhub configuration
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/logger"
)

// WithFile loads settings from a YAML file
func WithFile(path string) Option {
	return func(c *Config) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return tmplerrors.Wrap(tmplerrors.CodeInvalidConfig, fmt.Sprintf("read config %s", path), err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return tmplerrors.Wrap(tmplerrors.CodeInvalidConfig, fmt.Sprintf("parse config %s", path), err)
		}
		return nil
	}
}

// WithDefaultEngine sets the engine used when a render names none
func WithDefaultEngine(name string) Option {
	return func(c *Config) error {
		c.DefaultEngine = name
		return nil
	}
}

// WithTemplateRoot sets the root directory for templates
func WithTemplateRoot(root string) Option {
	return func(c *Config) error {
		c.TemplateRoot = root
		return nil
	}
}

// WithEngine adds an engine to prepare at startup
func WithEngine(engine EngineConfig) Option {
	return func(c *Config) error {
		c.Engines = append(c.Engines, engine)
		return nil
	}
}

// WithSessions exposes the request session to templates
func WithSessions(enabled bool) Option {
	return func(c *Config) error {
		c.SessionsEnabled = enabled
		return nil
	}
}

// WithValue sets one entry of the template-visible configuration mapping
func WithValue(key string, value any) Option {
	return func(c *Config) error {
		if c.Values == nil {
			c.Values = make(map[string]any)
		}
		c.Values[key] = value
		return nil
	}
}

// WithCacheDir sets the directory used by the file and dbm backends
func WithCacheDir(dir string) Option {
	return func(c *Config) error {
		c.Cache.Enabled = true
		c.Cache.Dir = dir
		return nil
	}
}

// WithDatabaseCache configures the SQL database backend
func WithDatabaseCache(dsn string) Option {
	return func(c *Config) error {
		c.Cache.Enabled = true
		c.Cache.DatabaseDSN = dsn
		return nil
	}
}

// WithRedisCache configures the distributed memory backend
func WithRedisCache(addr, password string, db int) Option {
	return func(c *Config) error {
		c.Cache.Enabled = true
		c.Cache.RedisAddr = addr
		c.Cache.RedisPassword = password
		c.Cache.RedisDB = db
		return nil
	}
}

// WithMemoryCache enables the in-process backend with a size limit
func WithMemoryCache(maxEntries int) Option {
	return func(c *Config) error {
		c.Cache.Enabled = true
		c.Cache.MemoryMaxEntries = maxEntries
		return nil
	}
}

// WithLogger sets the logger instance
func WithLogger(l logger.Logger) Option {
	return func(c *Config) error {
		c.LoggerInstance = l
		return nil
	}
}

// WithLogLevel sets the log level name
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logger.Level = level
		return nil
	}
}

// WithTelemetry enables OTLP export to endpoint
func WithTelemetry(serviceName, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.ServiceName = serviceName
		c.Telemetry.OTLPEndpoint = endpoint
		return nil
	}
}

// WithHotReload watches template roots for changes
func WithHotReload(debounce time.Duration) Option {
	return func(c *Config) error {
		c.Reload.Enabled = true
		c.Reload.Debounce = debounce
		return nil
	}
}

// WithTestDefaults applies test-friendly defaults
func WithTestDefaults() Option {
	return func(c *Config) error {
		c.Logger.Level = "debug"
		c.Logger.Format = "text"
		c.Cache.DefaultType = "memory"
		c.Cache.MemoryMaxEntries = 100
		c.Reload.Enabled = false
		return nil
	}
}

// WithEnvDefaults reads TMPLHUB_* environment variables
func WithEnvDefaults() Option {
	return func(c *Config) error {
		if v := os.Getenv("TMPLHUB_DEFAULT_ENGINE"); v != "" {
			c.DefaultEngine = v
		}
		if v := os.Getenv("TMPLHUB_TEMPLATE_ROOT"); v != "" {
			c.TemplateRoot = v
		}
		if v := os.Getenv("TMPLHUB_SESSIONS"); v != "" {
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				return tmplerrors.Wrap(tmplerrors.CodeInvalidConfig, "TMPLHUB_SESSIONS", err)
			}
			c.SessionsEnabled = enabled
		}

		if v := os.Getenv("TMPLHUB_CACHE_TYPE"); v != "" {
			c.Cache.DefaultType = v
		}
		if v := os.Getenv("TMPLHUB_CACHE_DIR"); v != "" {
			c.Cache.Enabled = true
			c.Cache.Dir = v
		}
		if v := os.Getenv("TMPLHUB_DATABASE_DSN"); v != "" {
			c.Cache.Enabled = true
			c.Cache.DatabaseDSN = v
		}
		if v := os.Getenv("TMPLHUB_REDIS_ADDR"); v != "" {
			c.Cache.Enabled = true
			c.Cache.RedisAddr = v
		}
		if v := os.Getenv("TMPLHUB_REDIS_PASSWORD"); v != "" {
			c.Cache.RedisPassword = v
		}
		if v := os.Getenv("TMPLHUB_REDIS_DB"); v != "" {
			db, err := strconv.Atoi(v)
			if err != nil {
				return tmplerrors.Wrap(tmplerrors.CodeInvalidConfig, "TMPLHUB_REDIS_DB", err)
			}
			c.Cache.RedisDB = db
		}

		if v := os.Getenv("TMPLHUB_LOG_LEVEL"); v != "" {
			c.Logger.Level = v
		}
		if v := os.Getenv("TMPLHUB_LOG_FORMAT"); v != "" {
			c.Logger.Format = v
		}

		if v := os.Getenv("TMPLHUB_OTLP_ENDPOINT"); v != "" {
			c.Telemetry.Enabled = true
			c.Telemetry.OTLPEndpoint = v
		}
		if v := os.Getenv("TMPLHUB_RELOAD"); v == "true" {
			c.Reload.Enabled = true
		}
		return nil
	}
}
