package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/gaborage/go-conduit/logger"
	"github.com/gaborage/go-conduit/response"
	"github.com/gaborage/go-conduit/retry"
)

var allowedMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut,
	http.MethodDelete, http.MethodPatch, http.MethodHead,
}

// HTTPClient is the HTTP/1.1-style request client. It owns the retry
// loop and delegates transport I/O to net/http.
type HTTPClient struct {
	httpClient     *http.Client
	policy         *retry.Policy
	limiter        *rate.Limiter
	log            logger.Logger
	timeout        time.Duration
	defaultHeaders map[string]string
	interceptors   []RequestInterceptor
	sleep          func(ctx context.Context, d time.Duration) error
}

var _ Client = (*HTTPClient)(nil)

// New builds a client from cfg. Retry configuration is validated here;
// a malformed one fails construction before any request is attempted.
func New(cfg Config) (*HTTPClient, error) {
	policy, err := retry.NewPolicy(cfg.Retry)
	if err != nil {
		return nil, NewValidationError(err.Error(), "retry")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNoop()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	headers := make(map[string]string, len(cfg.DefaultHeaders))
	for k, v := range cfg.DefaultHeaders {
		headers[k] = v
	}

	return &HTTPClient{
		httpClient:     &http.Client{Transport: cfg.Transport},
		policy:         policy,
		limiter:        cfg.Limiter,
		log:            log,
		timeout:        cfg.Timeout,
		defaultHeaders: headers,
		interceptors:   slices.Clone(cfg.RequestInterceptors),
		sleep:          sleep,
	}, nil
}

// Get issues a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string, query map[string]string) (*response.Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodGet, URL: url, Query: query})
}

// Post issues a POST request with the given body.
func (c *HTTPClient) Post(ctx context.Context, url string, body any) (*response.Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodPost, URL: url, Body: body})
}

// Put issues a PUT request with the given body.
func (c *HTTPClient) Put(ctx context.Context, url string, body any) (*response.Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodPut, URL: url, Body: body})
}

// Patch issues a PATCH request with the given body.
func (c *HTTPClient) Patch(ctx context.Context, url string, body any) (*response.Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodPatch, URL: url, Body: body})
}

// Delete issues a DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, url string) (*response.Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodDelete, URL: url})
}

// Head issues a HEAD request.
func (c *HTTPClient) Head(ctx context.Context, url string) (*response.Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodHead, URL: url})
}

// Send issues one logical request, internally making up to
// maxRetries+1 transport attempts.
func (c *HTTPClient) Send(ctx context.Context, req *Request) (*response.Response, error) {
	wire, err := buildWireRequest(req)
	if err != nil {
		return nil, err
	}
	return RunRetryLoop(ctx, c.policy, c.log, c.sleep, wire.timeoutOr(c.timeout), func(attemptCtx context.Context) (*response.Response, error) {
		return c.attempt(attemptCtx, wire)
	})
}

// attempt performs a single transport attempt.
func (c *HTTPClient) attempt(ctx context.Context, wire *wireRequest) (*response.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, wire.method, wire.url, wire.bodyReader())
	if err != nil {
		return nil, err
	}
	for k, v := range c.defaultHeaders {
		httpReq.Header.Set(k, v)
	}
	wire.applyHeaders(httpReq)
	for _, interceptor := range c.interceptors {
		if err := interceptor(ctx, httpReq); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	c.log.Debug().
		Str("method", wire.method).
		Str("url", wire.url).
		Msg("http client request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	model, err := response.FromHTTP(resp)
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("method", wire.method).
		Str("url", wire.url).
		Int("status", model.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("http client response")
	return model, nil
}

// wireRequest is the validated, serialized form of a Request, reusable
// across attempts.
type wireRequest struct {
	method      string
	url         string
	headers     map[string]string
	body        []byte
	contentType string
	timeout     time.Duration
}

func (w *wireRequest) timeoutOr(fallback time.Duration) time.Duration {
	if w.timeout > 0 {
		return w.timeout
	}
	return fallback
}

func (w *wireRequest) bodyReader() io.Reader {
	if w.body == nil {
		return http.NoBody
	}
	return bytes.NewReader(w.body)
}

func (w *wireRequest) applyHeaders(req *http.Request) {
	if w.contentType != "" {
		req.Header.Set("Content-Type", w.contentType)
	}
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
}

// buildWireRequest validates the method/body combination and serializes
// the payload. Caller-owned headers and byte bodies are copied, so
// mutating them after Send never changes what later attempts put on the
// wire. All failures here are validation errors raised before any I/O.
func buildWireRequest(req *Request) (*wireRequest, error) {
	if req == nil {
		return nil, NewValidationError("request must not be nil", "")
	}
	method := strings.ToUpper(req.Method)
	if !slices.Contains(allowedMethods, method) {
		return nil, NewValidationError(fmt.Sprintf("unsupported HTTP method %q", req.Method), "method")
	}
	if (method == http.MethodGet || method == http.MethodHead) && req.Body != nil {
		return nil, NewValidationError(fmt.Sprintf("%s requests must not carry a body", method), "body")
	}

	target, err := buildURL(req)
	if err != nil {
		return nil, err
	}

	wire := &wireRequest{
		method:  method,
		url:     target,
		headers: maps.Clone(req.Headers),
		timeout: req.Timeout,
	}

	switch body := req.Body.(type) {
	case nil:
	case string:
		wire.body = []byte(body)
	case []byte:
		wire.body = bytes.Clone(body)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, NewValidationError("request body must be a string, binary, or JSON-serializable value", "body")
		}
		wire.body = data
		if !hasContentType(req.Headers) {
			wire.contentType = "application/json"
		}
	}
	return wire, nil
}

// buildURL merges structured query parameters into the URL's query string
// and defaults the scheme to https when absent.
func buildURL(req *Request) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		// Bare host[:port]/path shapes parse as opaque paths; re-parse
		// with the default scheme attached.
		u, err = url.Parse("https://" + req.URL)
		if err != nil || u.Host == "" {
			return "", NewValidationError(fmt.Sprintf("invalid URL %q", req.URL), "url")
		}
	}

	if len(req.Query) > 0 {
		q := u.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func hasContentType(headers map[string]string) bool {
	for k := range headers {
		if strings.EqualFold(k, "Content-Type") {
			return true
		}
	}
	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
