package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerClientPassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	base, _ := newTestClient(t, Config{})
	client := NewBreakerClient(base, gobreaker.Settings{})

	resp, err := client.Send(context.Background(), &Request{Method: http.MethodGet, URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestBreakerClientOpensAfterConsecutiveFailures(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	base, _ := newTestClient(t, Config{})
	client := NewBreakerClient(base, gobreaker.Settings{
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	req := &Request{Method: http.MethodGet, URL: server.URL}
	for i := 0; i < 3; i++ {
		_, err := client.Send(context.Background(), req)
		require.Error(t, err)
		assert.True(t, IsHTTPStatusError(err, 500))
	}

	before := attempts.Load()
	_, err := client.Send(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, before, attempts.Load(), "open breaker must not reach the transport")
}
