package config

import (
	"net/http"
	"net/url"

	"github.com/gaborage/go-conduit/httpclient"
	"github.com/gaborage/go-conduit/logger"
	"github.com/gaborage/go-conduit/retry"
)

// RetryConfig converts the declarative retry section into the policy's
// configuration. A zero MaxRetries yields a config that disables retrying.
func (c *Config) RetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:    c.Retry.MaxRetries,
		BackOffFactor: c.Retry.BackOffFactor,
		IOErrorCodes:  append([]string(nil), c.Retry.IOErrorCodes...),
		StatusCodes:   append([]int(nil), c.Retry.StatusCodes...),
		MaxDelay:      c.Retry.MaxDelay,
	}
}

// ClientConfig assembles an httpclient configuration from the loaded
// settings. The proxy URL was validated at load time; a malformed one can
// only appear when the struct is built by hand, in which case it is
// ignored here and rejected later by Validate.
func (c *Config) ClientConfig(log logger.Logger) httpclient.Config {
	cfg := httpclient.Config{
		Timeout: c.HTTP.Timeout,
		Retry:   c.RetryConfig(),
		Logger:  log,
	}

	if c.HTTP.UserAgent != "" {
		cfg.DefaultHeaders = map[string]string{"User-Agent": c.HTTP.UserAgent}
	}

	if c.HTTP.ProxyURL != "" {
		if proxy, err := url.Parse(c.HTTP.ProxyURL); err == nil {
			cfg.Transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
		}
	}

	return cfg
}

// Logger builds the zerolog-backed logger described by the log section.
func (c *Config) Logger() logger.Logger {
	return logger.New(c.Log.Level, c.Log.Pretty)
}
