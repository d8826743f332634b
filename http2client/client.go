package http2client

import (
	"context"
	"net/http"
	"strings"

	"github.com/gaborage/go-conduit/httpclient"
	"github.com/gaborage/go-conduit/response"
)

// Client issues requests as streams on a shared session, under the same
// validation, retry, and error-classification contract as the HTTP/1.1
// client. Attempts within one Send are sequential; independent Sends
// multiplex freely over the one connection.
type Client struct {
	inner   *httpclient.HTTPClient
	session *SessionHandler
}

var _ httpclient.Client = (*Client)(nil)

// NewClient binds a request client to a caller-owned session. The session
// outlives the client and must be closed by whoever created it.
func NewClient(session *SessionHandler, cfg httpclient.Config) (*Client, error) {
	if session == nil {
		return nil, httpclient.NewValidationError("session must not be nil", "session")
	}
	cfg.Transport = session
	inner, err := httpclient.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{inner: inner, session: session}, nil
}

// Session returns the underlying session handler.
func (c *Client) Session() *SessionHandler {
	return c.session
}

// Send issues one logical request over the session. A path-only URL is
// resolved against the session origin.
func (c *Client) Send(ctx context.Context, req *Request) (*response.Response, error) {
	if req != nil && strings.HasPrefix(req.URL, "/") {
		resolved := *req
		resolved.URL = c.session.Origin() + req.URL
		return c.inner.Send(ctx, &resolved)
	}
	return c.inner.Send(ctx, req)
}

// Request is the transport-independent request shape shared with the
// HTTP/1.1 client.
type Request = httpclient.Request

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, query map[string]string) (*response.Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodGet, URL: url, Query: query})
}

// Post issues a POST request with the given body.
func (c *Client) Post(ctx context.Context, url string, body any) (*response.Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodPost, URL: url, Body: body})
}

// Put issues a PUT request with the given body.
func (c *Client) Put(ctx context.Context, url string, body any) (*response.Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodPut, URL: url, Body: body})
}

// Patch issues a PATCH request with the given body.
func (c *Client) Patch(ctx context.Context, url string, body any) (*response.Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodPatch, URL: url, Body: body})
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string) (*response.Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodDelete, URL: url})
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, url string) (*response.Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodHead, URL: url})
}
