package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

type Config struct {
	App   AppConfig   `koanf:"app"`
	Log   LogConfig   `koanf:"log"`
	HTTP  HTTPConfig  `koanf:"http"`
	Retry RetryConfig `koanf:"retry"`

	// QuotaProject attributes request quota to a project distinct from
	// the credential's own; empty means no attribution header is sent.
	QuotaProject string `koanf:"quotaproject"`

	// k holds the underlying Koanf instance for flexible access to custom configurations
	k *koanf.Koanf `json:"-" yaml:"-" toml:"-" mapstructure:"-"`
}

type AppConfig struct {
	Name  string `koanf:"name"`
	Env   string `koanf:"env"`
	Debug bool   `koanf:"debug"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

type HTTPConfig struct {
	// Timeout bounds each transport attempt; zero disables the bound.
	Timeout   time.Duration `koanf:"timeout"`
	ProxyURL  string        `koanf:"proxy"`
	UserAgent string        `koanf:"useragent"`
}

type RetryConfig struct {
	MaxRetries    int           `koanf:"maxretries"`
	BackOffFactor float64       `koanf:"backofffactor"`
	IOErrorCodes  []string      `koanf:"ioerrorcodes"`
	StatusCodes   []int         `koanf:"statuscodes"`
	MaxDelay      time.Duration `koanf:"maxdelay"`
}
