package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-conduit/retry"
	"github.com/gaborage/go-conduit/trace"
)

// sleepRecorder captures retry delays instead of waiting them out.
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(t *testing.T, cfg Config) (*HTTPClient, *sleepRecorder) {
	t.Helper()
	recorder := &sleepRecorder{}
	cfg.Sleep = recorder.sleep
	client, err := New(cfg)
	require.NoError(t, err)
	return client, recorder
}

func TestNewRejectsInvalidRetryConfig(t *testing.T) {
	_, err := New(Config{Retry: &retry.Config{MaxRetries: -1}})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ValidationError))
}

func TestSendSuccess(t *testing.T) {
	t.Run("json round trip", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)
		}))
		defer server.Close()

		client, _ := newTestClient(t, Config{})
		payload := map[string]any{"name": "conduit", "count": float64(3), "tags": []any{"a", "b"}}

		resp, err := client.Post(context.Background(), server.URL, payload)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)

		data, err := resp.Data()
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("2xx is terminal even when listed as retryable", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		cfg := retry.DefaultConfig()
		cfg.StatusCodes = []int{200, 503}
		client, _ := newTestClient(t, Config{Retry: cfg})

		_, err := client.Get(context.Background(), server.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("query parameters merge into the URL", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "1", r.URL.Query().Get("a"))
			assert.Equal(t, "two words", r.URL.Query().Get("b"))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client, _ := newTestClient(t, Config{})
		_, err := client.Get(context.Background(), server.URL+"?a=1", map[string]string{"b": "two words"})
		require.NoError(t, err)
	})

	t.Run("explicit content type is preserved", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/vnd.custom+json", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		client, _ := newTestClient(t, Config{})
		_, err := client.Send(context.Background(), &Request{
			Method:  http.MethodPost,
			URL:     server.URL,
			Headers: map[string]string{"Content-Type": "application/vnd.custom+json"},
			Body:    map[string]string{"k": "v"},
		})
		require.NoError(t, err)
	})
}

func TestSendCopiesCallerRequest(t *testing.T) {
	var mu sync.Mutex
	var headersSeen, bodiesSeen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		mu.Lock()
		headersSeen = append(headersSeen, r.Header.Get("X-Token"))
		bodiesSeen = append(bodiesSeen, string(body))
		first := len(headersSeen) == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	body := []byte("original body")
	req := &Request{
		Method:  http.MethodPost,
		URL:     server.URL,
		Headers: map[string]string{"X-Token": "original"},
		Body:    body,
	}

	cfg := retry.DefaultConfig()
	cfg.MaxRetries = 1
	client, err := New(Config{
		Retry: cfg,
		// The caller mutates its request while the retry delay elapses;
		// later attempts must still send what Send was handed.
		Sleep: func(context.Context, time.Duration) error {
			req.Headers["X-Token"] = "mutated"
			copy(body, "tampered body")
			return nil
		},
	})
	require.NoError(t, err)

	_, err = client.Send(context.Background(), req)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"original", "original"}, headersSeen)
	assert.Equal(t, []string{"original body", "original body"}, bodiesSeen)
}

func TestSendValidation(t *testing.T) {
	client, _ := newTestClient(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  *Request
	}{
		{name: "GET with body", req: &Request{Method: http.MethodGet, URL: "https://example.com", Body: map[string]int{"a": 1}}},
		{name: "HEAD with body", req: &Request{Method: http.MethodHead, URL: "https://example.com", Body: "text"}},
		{name: "unsupported method", req: &Request{Method: "TRACE", URL: "https://example.com"}},
		{name: "unserializable body", req: &Request{Method: http.MethodPost, URL: "https://example.com", Body: func() {}}},
		{name: "invalid url", req: &Request{Method: http.MethodGet, URL: "://"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Send(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, IsErrorType(err, ValidationError), "expected validation error, got %v", err)
		})
	}
}

func TestRetryLoop(t *testing.T) {
	t.Run("continuous 503 makes maxRetries+1 attempts with backoff sequence", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client, recorder := newTestClient(t, Config{Retry: retry.DefaultConfig()})

		_, err := client.Get(context.Background(), server.URL, nil)
		require.Error(t, err)
		assert.True(t, IsErrorType(err, HTTPError))
		assert.True(t, IsHTTPStatusError(err, 503))
		assert.Equal(t, int32(5), attempts.Load(), "4 retries means 5 attempts")
		assert.Equal(t, []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second}, recorder.delays)
	})

	t.Run("recovery mid-sequence returns success", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		client, _ := newTestClient(t, Config{Retry: retry.DefaultConfig()})

		resp, err := client.Get(context.Background(), server.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, int32(3), attempts.Load())
		assert.True(t, resp.IsJSON())
	})

	t.Run("last failure is surfaced, not the first", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if attempts.Add(1) <= 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("first failure"))
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("final failure"))
		}))
		defer server.Close()

		client, _ := newTestClient(t, Config{Retry: retry.DefaultConfig()})

		_, err := client.Get(context.Background(), server.URL, nil)
		require.Error(t, err)
		assert.True(t, IsHTTPStatusError(err, 400))
		resp := ResponseFromError(err)
		require.NotNil(t, resp)
		assert.Equal(t, "final failure", string(resp.Body))
		assert.Equal(t, int32(2), attempts.Load(), "400 is not retryable, loop must stop")
	})

	t.Run("retry-after seconds override computed backoff", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			attempts.Add(1)
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		cfg := retry.DefaultConfig()
		cfg.MaxRetries = 1
		client, recorder := newTestClient(t, Config{Retry: cfg})

		_, err := client.Get(context.Background(), server.URL, nil)
		require.Error(t, err)
		assert.Equal(t, int32(2), attempts.Load())
		assert.Equal(t, []time.Duration{30 * time.Second}, recorder.delays)
	})

	t.Run("retry-after beyond max delay fails immediately", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			attempts.Add(1)
			w.Header().Set("Retry-After", "61")
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client, recorder := newTestClient(t, Config{Retry: retry.DefaultConfig()})

		_, err := client.Get(context.Background(), server.URL, nil)
		require.Error(t, err)
		assert.True(t, IsHTTPStatusError(err, 503))
		assert.Equal(t, int32(1), attempts.Load(), "no additional attempt may be made")
		assert.Empty(t, recorder.delays)
	})

	t.Run("malformed retry-after still retries with zero delay", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			attempts.Add(1)
			w.Header().Set("Retry-After", "soon")
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		cfg := retry.DefaultConfig()
		cfg.MaxRetries = 2
		client, recorder := newTestClient(t, Config{Retry: cfg})

		_, err := client.Get(context.Background(), server.URL, nil)
		require.Error(t, err)
		assert.Equal(t, int32(3), attempts.Load())
		assert.Equal(t, []time.Duration{0, 0}, recorder.delays)
	})

	t.Run("nil retry config disables retrying", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client, _ := newTestClient(t, Config{})

		_, err := client.Get(context.Background(), server.URL, nil)
		require.Error(t, err)
		assert.Equal(t, int32(1), attempts.Load())
	})
}

func TestTransportErrors(t *testing.T) {
	t.Run("timeout is classified as a timeout error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(500 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client, _ := newTestClient(t, Config{Timeout: 30 * time.Millisecond})

		_, err := client.Get(context.Background(), server.URL, nil)
		require.Error(t, err)
		assert.True(t, IsErrorType(err, TimeoutError), "got %v", err)
	})

	t.Run("timeouts are retry-eligible", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			attempts.Add(1)
			time.Sleep(500 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		cfg := retry.DefaultConfig()
		cfg.MaxRetries = 2
		client, _ := newTestClient(t, Config{Timeout: 30 * time.Millisecond, Retry: cfg})

		_, err := client.Get(context.Background(), server.URL, nil)
		require.Error(t, err)
		assert.True(t, IsErrorType(err, TimeoutError))
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("connection refused surfaces a network error with its code", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
		url := server.URL
		server.Close()

		client, _ := newTestClient(t, Config{})

		_, err := client.Get(context.Background(), url, nil)
		require.Error(t, err)
		assert.True(t, IsErrorType(err, NetworkError), "got %v", err)
		assert.Equal(t, retry.CodeConnectionRefused, ErrorCode(err))
		assert.True(t, errors.Is(err, syscall.ECONNREFUSED))
	})
}

func TestDefaultHeadersAndInterceptors(t *testing.T) {
	t.Run("default headers apply and per-request headers win", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "conduit-test", r.Header.Get("User-Agent"))
			assert.Equal(t, "override", r.Header.Get("X-Custom"))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client, _ := newTestClient(t, Config{
			DefaultHeaders: map[string]string{"User-Agent": "conduit-test", "X-Custom": "default"},
		})

		_, err := client.Send(context.Background(), &Request{
			Method:  http.MethodGet,
			URL:     server.URL,
			Headers: map[string]string{"X-Custom": "override"},
		})
		require.NoError(t, err)
	})

	t.Run("request id interceptor stamps the context ID", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "fixed-id", r.Header.Get(HeaderXRequestID))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client, _ := newTestClient(t, Config{
			RequestInterceptors: []RequestInterceptor{NewRequestIDInterceptor()},
		})

		ctx := trace.WithID(context.Background(), "fixed-id")
		_, err := client.Get(ctx, server.URL, nil)
		require.NoError(t, err)
	})
}

func TestJSONRoundTripThroughUnmarshal(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload{Name: "conduit", Count: 7})
	}))
	defer server.Close()

	client, _ := newTestClient(t, Config{})
	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)

	var out payload
	require.NoError(t, resp.Unmarshal(&out))
	assert.Equal(t, payload{Name: "conduit", Count: 7}, out)
}
