package retry

import (
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"
)

// Outcome describes one completed transport attempt: either an I/O
// failure with a code, or an HTTP response with a status and an optional
// retry-after header value.
type Outcome struct {
	// ErrorCode is the transport failure classifier; empty when the
	// attempt produced an HTTP response.
	ErrorCode string
	// StatusCode is the HTTP status of a completed response; zero for I/O
	// failures.
	StatusCode int
	// RetryAfter is the raw retry-after header value, empty when absent.
	RetryAfter string
}

// Decision is the policy's verdict for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy computes retry decisions from a validated Config. It performs
// no I/O and no waiting. The zero value disables retrying.
type Policy struct {
	cfg     Config
	enabled bool

	// now is the clock used for retry-after date math; replaceable in
	// tests.
	now func() time.Time
}

// NewPolicy validates cfg and builds a policy around a private copy of
// it. A nil cfg yields a policy that never retries.
func NewPolicy(cfg *Config) (*Policy, error) {
	if cfg == nil {
		return &Policy{now: time.Now}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Policy{cfg: cfg.clone(), enabled: cfg.MaxRetries > 0, now: time.Now}, nil
}

// MaxRetries returns the configured retry cap, zero when disabled.
func (p *Policy) MaxRetries() int {
	if !p.enabled {
		return 0
	}
	return p.cfg.MaxRetries
}

// Decide reports whether the attempt that produced outcome should be
// retried, and after what delay, given that retriesAttempted retries have
// already happened.
func (p *Policy) Decide(retriesAttempted int, outcome Outcome) Decision {
	if !p.enabled || retriesAttempted >= p.cfg.MaxRetries {
		return Decision{}
	}
	if !p.eligible(outcome) {
		return Decision{}
	}

	if outcome.StatusCode > 0 && outcome.RetryAfter != "" {
		delay := p.parseRetryAfter(outcome.RetryAfter)
		if delay > p.cfg.MaxDelay {
			// The server is asking for more patience than we are
			// configured to spend: surface the failure immediately.
			return Decision{}
		}
		return Decision{Retry: true, Delay: delay}
	}

	return Decision{Retry: true, Delay: p.backoffDelay(retriesAttempted)}
}

// eligible applies the code/status membership rules. 2xx responses never
// reach here through the clients, but the precedence is kept explicit:
// success is terminal regardless of the configured status set.
func (p *Policy) eligible(outcome Outcome) bool {
	if outcome.ErrorCode != "" {
		return slices.Contains(p.cfg.IOErrorCodes, outcome.ErrorCode)
	}
	if outcome.StatusCode >= 200 && outcome.StatusCode < 300 {
		return false
	}
	return slices.Contains(p.cfg.StatusCodes, outcome.StatusCode)
}

// backoffDelay computes the exponential delay before the next retry. The
// first retry goes out immediately; retry r then waits
// min(factor * 2^r * 1s, MaxDelay).
func (p *Policy) backoffDelay(retriesAttempted int) time.Duration {
	if retriesAttempted == 0 || p.cfg.BackOffFactor == 0 {
		return 0
	}
	// Cap in float space: for large retry counts 2^r overflows
	// time.Duration long before the comparison would catch it.
	millis := math.Exp2(float64(retriesAttempted)) * p.cfg.BackOffFactor * 1000
	millis = math.Min(millis, float64(p.cfg.MaxDelay/time.Millisecond))
	return time.Duration(millis) * time.Millisecond
}

// parseRetryAfter interprets a retry-after header value: non-negative
// integer seconds, or an HTTP date relative to now. Malformed values
// yield zero; the server asked for no measurable wait.
func (p *Policy) parseRetryAfter(value string) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if delay := at.Sub(p.now()); delay > 0 {
			return delay
		}
		return 0
	}
	return 0
}
