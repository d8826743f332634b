// Package retry decides whether and how long to wait before re-issuing a
// failed transport attempt. The policy is pure computation: callers
// perform the actual waiting.
package retry

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Transport-layer I/O error codes, distinct from HTTP statuses. The
// clients classify raw network failures into these before consulting the
// policy.
const (
	CodeConnectionReset   = "ECONNRESET"
	CodeTimedOut          = "ETIMEDOUT"
	CodeConnectionRefused = "ECONNREFUSED"
	CodeConnectionAborted = "ECONNABORTED"
	CodeAddrNotFound      = "ENOTFOUND"
	CodeBrokenPipe        = "EPIPE"
	CodeStreamReset       = "ERR_HTTP2_STREAM_ERROR"
	CodeSessionClosed     = "ERR_HTTP2_SESSION_CLOSED"
	CodeUnknown           = "EUNKNOWN"
)

// Config controls retry eligibility and pacing. A nil Config, or one with
// MaxRetries == 0, disables retrying entirely.
type Config struct {
	// MaxRetries caps the number of re-attempts after the initial one.
	MaxRetries int `koanf:"maxretries" validate:"gte=0"`
	// BackOffFactor is the multiplier of the exponential backoff curve.
	// Zero makes every computed delay zero.
	BackOffFactor float64 `koanf:"backofffactor" validate:"gte=0"`
	// IOErrorCodes is the set of transport error codes worth retrying.
	IOErrorCodes []string `koanf:"ioerrorcodes"`
	// StatusCodes is the set of HTTP statuses worth retrying. Matched only
	// against non-2xx responses; 2xx is always terminal success.
	StatusCodes []int `koanf:"statuscodes" validate:"dive,gte=100,lte=599"`
	// MaxDelay caps any single computed or server-directed delay.
	MaxDelay time.Duration `koanf:"maxdelay" validate:"gte=0"`
}

var validate = validator.New()

// DefaultConfig returns the retry configuration used when the caller
// supplies none: four retries, 0.5 backoff factor, connection-reset and
// timeout I/O errors, 503 responses, 60s delay cap.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:    4,
		BackOffFactor: 0.5,
		IOErrorCodes:  []string{CodeConnectionReset, CodeTimedOut},
		StatusCodes:   []int{503},
		MaxDelay:      time.Minute,
	}
}

// Validate rejects non-conforming field values before any request is
// attempted.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}
	return nil
}

// clone returns a copy so later mutation by the caller is never visible
// to the policy and vice versa.
func (c *Config) clone() Config {
	out := *c
	out.IOErrorCodes = append([]string(nil), c.IOErrorCodes...)
	out.StatusCodes = append([]int(nil), c.StatusCodes...)
	return out
}
