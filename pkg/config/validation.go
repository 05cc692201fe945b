// Package config provides configuration validation functionality for tmplhub
package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// CacheTypes lists the backend identifiers accepted in cache directives
var CacheTypes = []string{"memory", "file", "dbm", "database", "memcached", "ext:memcached", "redis", "ext:redis", "multilayer"}

// ValidationResult represents the result of configuration validation
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors,omitempty"`
	Warnings []ValidationWarning `json:"warnings,omitempty"`
	Summary  ValidationSummary   `json:"summary"`
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationWarning represents a validation warning
type ValidationWarning struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationSummary provides a summary of validation results
type ValidationSummary struct {
	TotalErrors   int `json:"total_errors"`
	TotalWarnings int `json:"total_warnings"`
	EngineCount   int `json:"engine_count"`
}

// Validator provides configuration validation functionality
type Validator struct {
	strict bool
}

// NewValidator creates a new configuration validator
func NewValidator(strict bool) *Validator {
	return &Validator{strict: strict}
}

// Validate validates a configuration
func (v *Validator) Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   make([]ValidationError, 0),
		Warnings: make([]ValidationWarning, 0),
	}

	v.validateEngines(cfg, result)
	v.validateCache(cfg, result)
	v.validateLogger(cfg, result)
	v.validateTelemetry(cfg, result)

	result.Valid = len(result.Errors) == 0
	result.Summary = ValidationSummary{
		TotalErrors:   len(result.Errors),
		TotalWarnings: len(result.Warnings),
		EngineCount:   len(cfg.Engines),
	}

	return result
}

// validateEngines checks engine names and alias uniqueness
func (v *Validator) validateEngines(cfg *Config, result *ValidationResult) {
	seen := make(map[string]bool, len(cfg.Engines))
	for i, e := range cfg.Engines {
		field := fmt.Sprintf("engines[%d]", i)
		if strings.TrimSpace(e.Name) == "" {
			v.addError(result, field+".name", "MISSING_ENGINE_NAME", "engine name is required")
			continue
		}
		key := e.Key()
		if seen[key] {
			v.addError(result, field+".alias", "DUPLICATE_ENGINE", fmt.Sprintf("engine %q configured twice", key))
		}
		seen[key] = true
	}

	if cfg.DefaultEngine == "" && len(cfg.Engines) > 0 {
		v.addWarning(result, "default_engine", "NO_DEFAULT_ENGINE", "no default engine, every render must name one")
	}
}

// validateCache validates cache backend settings
func (v *Validator) validateCache(cfg *Config, result *ValidationResult) {
	c := cfg.Cache
	if !slices.Contains(CacheTypes, c.DefaultType) {
		v.addError(result, "cache.default_type", "INVALID_CACHE_TYPE", fmt.Sprintf("unknown cache type: %s", c.DefaultType))
	}
	if c.RedisDB < 0 {
		v.addError(result, "cache.redis_db", "INVALID_REDIS_DB", "redis db cannot be negative")
	}
	for i, layer := range c.Layers {
		if layer == "multilayer" || !slices.Contains(CacheTypes, layer) {
			v.addError(result, fmt.Sprintf("cache.layers[%d]", i), "INVALID_CACHE_LAYER", fmt.Sprintf("invalid cache layer: %s", layer))
		}
	}
	if c.DatabaseDSN != "" && strings.HasPrefix(c.DatabaseDSN, "file::memory:") {
		v.addWarning(result, "cache.database_dsn", "EPHEMERAL_DATABASE", "database cache is in memory and will not survive restarts")
	}
}

// validateLogger validates logger configuration
func (v *Validator) validateLogger(cfg *Config, result *ValidationResult) {
	validLevels := []string{"debug", "info", "warn", "warning", "error", "silent"}
	if !slices.Contains(validLevels, strings.ToLower(cfg.Logger.Level)) {
		v.addError(result, "logger.level", "INVALID_LEVEL", fmt.Sprintf("invalid log level: %s", cfg.Logger.Level))
	}

	validFormats := []string{"json", "text", "tint", "console"}
	if !slices.Contains(validFormats, cfg.Logger.Format) {
		v.addError(result, "logger.format", "INVALID_FORMAT", fmt.Sprintf("invalid log format: %s", cfg.Logger.Format))
	}
}

// validateTelemetry validates the OTLP endpoint when telemetry is on
func (v *Validator) validateTelemetry(cfg *Config, result *ValidationResult) {
	t := cfg.Telemetry
	if !t.Enabled {
		return
	}
	if t.OTLPEndpoint != "" {
		if err := v.validateURL(t.OTLPEndpoint); err != nil {
			v.addError(result, "telemetry.otlp_endpoint", "INVALID_ENDPOINT", fmt.Sprintf("invalid OTLP endpoint: %v", err))
		}
	}
	if t.SampleRate > 1 {
		v.addError(result, "telemetry.sample_rate", "INVALID_SAMPLE_RATE", "sample rate must be between 0 and 1")
	}
	if t.Insecure {
		v.addWarning(result, "telemetry.insecure", "INSECURE_EXPORT", "telemetry is exported without TLS")
	}
}

// validateURL validates a URL
func (v *Validator) validateURL(urlStr string) error {
	u, err := url.Parse(urlStr)
	if err != nil {
		return err
	}

	if u.Scheme == "" {
		return fmt.Errorf("URL scheme is required")
	}

	if u.Host == "" {
		return fmt.Errorf("URL host is required")
	}

	return nil
}

// addError adds a validation error
func (v *Validator) addError(result *ValidationResult, field, code, message string) {
	result.Errors = append(result.Errors, ValidationError{
		Field:   field,
		Code:    code,
		Message: message,
	})
}

// addWarning adds a validation warning
func (v *Validator) addWarning(result *ValidationResult, field, code, message string) {
	// Skip warnings in strict mode
	if v.strict {
		return
	}

	result.Warnings = append(result.Warnings, ValidationWarning{
		Field:   field,
		Code:    code,
		Message: message,
	})
}

// ValidateQuick performs quick validation with default settings
func ValidateQuick(cfg *Config) *ValidationResult {
	return NewValidator(false).Validate(cfg)
}

// ValidateStrict performs strict validation
func ValidateStrict(cfg *Config) *ValidationResult {
	return NewValidator(true).Validate(cfg)
}

// IsValid checks if configuration is valid
func IsValid(cfg *Config) bool {
	return ValidateQuick(cfg).Valid
}
