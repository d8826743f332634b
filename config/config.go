// Package config loads and validates client configuration from defaults,
// YAML files, and environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/gaborage/go-conduit/retry"
)

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. YAML configuration files
// 3. Default values (lowest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// YAML files are optional; absence is not an error.
	_ = k.Load(file.Provider("config.yaml"), yaml.Parser())

	env := k.String("app.env")
	if env != "" {
		_ = k.Load(file.Provider(fmt.Sprintf("config.%s.yaml", env)), yaml.Parser())
	}

	if err := k.Load(envprovider.Provider("", ".", func(s string) string {
		// Convert UPPER_CASE to lower.case for koanf
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return fromKoanf(k)
}

// LoadFile builds a configuration from defaults plus a single YAML file,
// without consulting the process environment.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Store the Koanf instance for flexible access
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":  "conduit",
		"app.env":   EnvDevelopment,
		"app.debug": false,

		"log.level":  "info",
		"log.pretty": false,

		"http.timeout":   "0s",
		"http.proxy":     "",
		"http.useragent": "",

		"retry.maxretries":    4,
		"retry.backofffactor": 0.5,
		"retry.ioerrorcodes":  []string{retry.CodeConnectionReset, retry.CodeTimedOut},
		"retry.statuscodes":   []int{503},
		"retry.maxdelay":      "60s",

		"quotaproject": "",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
