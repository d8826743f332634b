// Package httpclient issues one-shot outbound HTTP requests with a retry
// loop, error classification and a normalized response model.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/gaborage/go-conduit/logger"
	"github.com/gaborage/go-conduit/response"
	"github.com/gaborage/go-conduit/retry"
	"github.com/gaborage/go-conduit/trace"
)

// HeaderXRequestID is the header used for request correlation.
const HeaderXRequestID = trace.HeaderXRequestID

// Client sends one logical request per call, retrying transport attempts
// internally according to its retry policy.
type Client interface {
	Send(ctx context.Context, req *Request) (*response.Response, error)
}

// Request describes one logical outbound call. It is a caller-owned value
// object; the client copies what it needs and never mutates it.
type Request struct {
	// Method is one of GET, POST, PUT, DELETE, PATCH, HEAD.
	Method string
	// URL is the target; scheme defaults to https when absent.
	URL string
	// Headers are merged over the client's default headers.
	Headers map[string]string
	// Query parameters are merged into the URL's query string. This is
	// how GET/HEAD calls carry structured input; those methods must not
	// set Body.
	Query map[string]string
	// Body is the request payload: string, []byte, or any
	// JSON-serializable value. JSON bodies get
	// content-type: application/json unless Headers overrides it.
	Body any
	// Timeout bounds each individual transport attempt, overriding the
	// client default. Zero means the client default applies.
	Timeout time.Duration
}

// RequestInterceptor runs against the wire request before each attempt.
type RequestInterceptor func(ctx context.Context, req *http.Request) error

// Config holds the client configuration. The zero value is usable: no
// retries, no timeout, default transport.
type Config struct {
	// Timeout bounds each individual transport attempt (not the whole
	// retried sequence).
	Timeout time.Duration
	// Transport is the underlying round tripper (proxy agents, TLS
	// settings). Nil means http.DefaultTransport.
	Transport http.RoundTripper
	// Retry controls the retry loop. Nil disables retrying.
	Retry *retry.Config
	// Limiter optionally gates each transport attempt.
	Limiter *rate.Limiter
	// Logger receives request/response debug events and retry warnings.
	// Nil means no logging.
	Logger logger.Logger
	// DefaultHeaders are applied to every request, overridable per call.
	DefaultHeaders map[string]string
	// RequestInterceptors run in order before every attempt.
	RequestInterceptors []RequestInterceptor

	// Sleep implements the retry delay. Nil means a real timer; tests
	// inject a recorder so computed delays can be asserted without
	// elapsed time.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRequestIDInterceptor returns an interceptor that stamps the request
// correlation header from context, generating an ID when none is present.
// Existing header values are preserved.
func NewRequestIDInterceptor() RequestInterceptor {
	return func(ctx context.Context, req *http.Request) error {
		if req.Header.Get(HeaderXRequestID) == "" {
			req.Header.Set(HeaderXRequestID, trace.EnsureID(ctx))
		}
		return nil
	}
}
