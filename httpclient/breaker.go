package httpclient

import (
	"context"

	"github.com/sony/gobreaker/v2"

	"github.com/gaborage/go-conduit/response"
)

// BreakerClient decorates a Client with a circuit breaker so a
// destination that keeps failing is cut off instead of hammered through
// full retry sequences.
type BreakerClient struct {
	base Client
	cb   *gobreaker.CircuitBreaker[*response.Response]
}

var _ Client = (*BreakerClient)(nil)

// NewBreakerClient wraps base with a circuit breaker built from settings.
// An empty settings name defaults to "httpclient".
func NewBreakerClient(base Client, settings gobreaker.Settings) *BreakerClient {
	if settings.Name == "" {
		settings.Name = "httpclient"
	}
	return &BreakerClient{
		base: base,
		cb:   gobreaker.NewCircuitBreaker[*response.Response](settings),
	}
}

// Send forwards through the breaker. While the breaker is open, calls
// fail fast with gobreaker.ErrOpenState and no transport attempt is made.
func (c *BreakerClient) Send(ctx context.Context, req *Request) (*response.Response, error) {
	return c.cb.Execute(func() (*response.Response, error) {
		return c.base.Send(ctx, req)
	})
}
