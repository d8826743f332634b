package httpclient

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/gaborage/go-conduit/response"
)

const (
	headerAuthorization = "Authorization"
	// HeaderQuotaProject attributes request quota to a project distinct
	// from the credential's own.
	HeaderQuotaProject = "x-goog-user-project"
	// HeaderClientMetrics identifies the client runtime to the service.
	HeaderClientMetrics = "x-goog-api-client"
)

// TokenSource asynchronously resolves a bearer token. Token acquisition
// itself is outside this layer; only the resolved string is consumed.
type TokenSource func(ctx context.Context) (string, error)

// AuthorizedClient decorates a Client with bearer-token credentials and
// the environment-attribution headers that travel with them.
type AuthorizedClient struct {
	base         Client
	source       TokenSource
	quotaProject string
	metrics      string
}

var _ Client = (*AuthorizedClient)(nil)

// AuthorizedOption customizes an AuthorizedClient.
type AuthorizedOption func(*AuthorizedClient)

// WithQuotaProject attaches the quota-project header to every request.
// The value comes from explicit configuration, never from ad hoc
// environment reads inside the transport.
func WithQuotaProject(project string) AuthorizedOption {
	return func(c *AuthorizedClient) { c.quotaProject = project }
}

// WithClientMetrics overrides the client-metrics header value.
func WithClientMetrics(value string) AuthorizedOption {
	return func(c *AuthorizedClient) { c.metrics = value }
}

// NewAuthorizedClient wraps base so every request carries
// "Authorization: Bearer <token>" from the given source.
func NewAuthorizedClient(base Client, source TokenSource, opts ...AuthorizedOption) *AuthorizedClient {
	c := &AuthorizedClient{
		base:    base,
		source:  source,
		metrics: "gl-go/" + strings.TrimPrefix(runtime.Version(), "go"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send resolves a token and forwards the request with credential headers
// attached. The caller's request is never mutated. Token retrieval
// failures propagate as the call's failure.
func (c *AuthorizedClient) Send(ctx context.Context, req *Request) (*response.Response, error) {
	if req == nil {
		return nil, NewValidationError("request must not be nil", "")
	}

	token, err := c.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire bearer token: %w", err)
	}

	authorized := *req
	authorized.Headers = make(map[string]string, len(req.Headers)+3)
	for k, v := range req.Headers {
		authorized.Headers[k] = v
	}
	authorized.Headers[headerAuthorization] = "Bearer " + token
	authorized.Headers[HeaderClientMetrics] = c.metrics
	if c.quotaProject != "" {
		authorized.Headers[HeaderQuotaProject] = c.quotaProject
	}

	return c.base.Send(ctx, &authorized)
}
