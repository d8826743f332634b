package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

func Validate(cfg *Config) error {
	if err := validateApp(&cfg.App); err != nil {
		return fmt.Errorf("app config: %w", err)
	}

	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	if err := validateHTTP(&cfg.HTTP); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := validateRetry(&cfg.Retry); err != nil {
		return fmt.Errorf("retry config: %w", err)
	}

	return nil
}

func validateApp(cfg *AppConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("app name is required")
	}

	validEnvs := []string{EnvDevelopment, EnvStaging, EnvProduction}
	if !slices.Contains(validEnvs, cfg.Env) {
		return fmt.Errorf("invalid environment: %s (must be one of: %s)",
			cfg.Env, strings.Join(validEnvs, ", "))
	}

	return nil
}

func validateLog(cfg *LogConfig) error {
	if !slices.Contains(validLogLevels, cfg.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)",
			cfg.Level, strings.Join(validLogLevels, ", "))
	}
	return nil
}

func validateHTTP(cfg *HTTPConfig) error {
	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}

	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid proxy URL: %s", cfg.ProxyURL)
		}
	}

	return nil
}

func validateRetry(cfg *RetryConfig) error {
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}

	if cfg.BackOffFactor < 0 {
		return fmt.Errorf("backoff factor must not be negative")
	}

	for _, status := range cfg.StatusCodes {
		if status < 100 || status > 599 {
			return fmt.Errorf("invalid retry status code: %d (must be 100-599)", status)
		}
	}

	if cfg.MaxDelay < 0 {
		return fmt.Errorf("max delay must not be negative")
	}

	return nil
}
