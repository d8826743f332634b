// Package http2client sends requests as streams multiplexed over a single
// long-lived HTTP/2 connection per origin. The session connects lazily on
// first use, survives across many requests, and is closed exactly once by
// its owner.
package http2client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/sync/singleflight"

	"github.com/gaborage/go-conduit/httpclient"
	"github.com/gaborage/go-conduit/logger"
)

// State is the lifecycle position of a session.
type State int

const (
	StateUnconnected State = iota
	StateConnecting
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionConfig customizes session establishment and supervision.
type SessionConfig struct {
	// TLSConfig is cloned before use; ServerName and ALPN are filled in
	// when absent. Ignored for plaintext (h2c) origins.
	TLSConfig *tls.Config
	// DialTimeout bounds connection establishment. Zero means the
	// caller's context alone bounds it.
	DialTimeout time.Duration
	// PingInterval enables a background health watch that fails the
	// session when the peer stops answering PING frames. Zero disables it.
	PingInterval time.Duration
	Logger       logger.Logger
}

// SessionHandler owns at most one multiplexed connection to a single
// origin. It is safe for concurrent use; all in-flight requests share the
// one connection once it is ready.
type SessionHandler struct {
	scheme    string
	authority string
	hostname  string
	cfg       SessionConfig
	log       logger.Logger

	group singleflight.Group

	mu      sync.Mutex
	state   State
	conn    *http2.ClientConn
	netConn net.Conn
	failure error
	done    chan struct{}
}

var _ http.RoundTripper = (*SessionHandler)(nil)

// NewSessionHandler prepares a handler for the given origin
// ("scheme://host[:port]", scheme http or https). No connection is made
// until the first stream or an explicit need arises.
func NewSessionHandler(origin string, cfg SessionConfig) (*SessionHandler, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, httpclient.NewValidationError(fmt.Sprintf("invalid origin %q", origin), "origin")
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Hostname() == "" || u.Path != "" {
		return nil, httpclient.NewValidationError(fmt.Sprintf("origin must be scheme://host[:port], got %q", origin), "origin")
	}

	authority := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			authority = net.JoinHostPort(u.Hostname(), "443")
		} else {
			authority = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNoop()
	}

	return &SessionHandler{
		scheme:    u.Scheme,
		authority: authority,
		hostname:  u.Hostname(),
		cfg:       cfg,
		log:       log,
		state:     StateUnconnected,
		done:      make(chan struct{}),
	}, nil
}

// Origin returns the session's "scheme://host:port" target.
func (s *SessionHandler) Origin() string {
	return s.scheme + "://" + s.authority
}

// State reports the current lifecycle position.
func (s *SessionHandler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failed reports whether the session terminated with an error.
func (s *SessionHandler) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure != nil
}

// RoundTrip issues one stream on the session, connecting first if needed.
// Connection-level failures observed here terminate the session for all
// users; stream-level failures are reported to this caller only.
func (s *SessionHandler) RoundTrip(req *http.Request) (*http.Response, error) {
	if !s.matchesOrigin(req.URL) {
		return nil, httpclient.NewValidationError(
			fmt.Sprintf("request host %q does not match session origin %s", req.URL.Host, s.Origin()), "url")
	}

	cc, err := s.ready(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err := cc.RoundTrip(req)
	if err != nil && isSessionFatal(err) {
		s.fail(err)
	}
	return resp, err
}

// matchesOrigin checks that a request targets this session's origin,
// treating an omitted port as the scheme default.
func (s *SessionHandler) matchesOrigin(u *url.URL) bool {
	if u.Hostname() != s.hostname {
		return false
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "http" {
			port = "80"
		} else {
			port = "443"
		}
	}
	_, originPort, err := net.SplitHostPort(s.authority)
	return err == nil && port == originPort
}

// Wait blocks until the session reaches a terminal outcome: nil after a
// clean Close, the retained session error after a failure. It is
// independent of any in-flight streams and may be called by any number of
// waiters.
func (s *SessionHandler) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Close terminates the session. It is idempotent; subsequent streams fail
// fast without attempting a connection.
func (s *SessionHandler) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	cc, netConn := s.conn, s.netConn
	s.mu.Unlock()
	close(s.done)

	s.log.Debug().Str("origin", s.Origin()).Msg("http2 session closed")
	if cc != nil {
		return cc.Close()
	}
	if netConn != nil {
		return netConn.Close()
	}
	return nil
}

// ready returns the live connection, establishing it on demand.
func (s *SessionHandler) ready(ctx context.Context) (*http2.ClientConn, error) {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		cc := s.conn
		s.mu.Unlock()
		return cc, nil
	case StateClosed:
		failure := s.failure
		s.mu.Unlock()
		if failure != nil {
			return nil, failure
		}
		return nil, httpclient.NewSessionError("session is closed", nil)
	}
	s.mu.Unlock()
	return s.connect(ctx)
}

// connect establishes the connection exactly once no matter how many
// streams race for it. The first caller's context bounds the dial; joiners
// share its outcome.
func (s *SessionHandler) connect(ctx context.Context) (*http2.ClientConn, error) {
	v, err, _ := s.group.Do("connect", func() (any, error) {
		s.mu.Lock()
		switch s.state {
		case StateReady:
			cc := s.conn
			s.mu.Unlock()
			return cc, nil
		case StateClosed:
			failure := s.failure
			s.mu.Unlock()
			if failure != nil {
				return nil, failure
			}
			return nil, httpclient.NewSessionError("session is closed", nil)
		}
		s.state = StateConnecting
		s.mu.Unlock()

		cc, netConn, dialErr := s.dial(ctx)
		if dialErr != nil {
			sessErr := httpclient.NewSessionError("failed to establish session", dialErr)
			s.fail(sessErr)
			return nil, sessErr
		}

		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			_ = netConn.Close()
			return nil, httpclient.NewSessionError("session is closed", nil)
		}
		s.conn, s.netConn = cc, netConn
		s.state = StateReady
		s.mu.Unlock()

		s.log.Debug().Str("origin", s.Origin()).Msg("http2 session established")
		if s.cfg.PingInterval > 0 {
			go s.watch(cc)
		}
		return cc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*http2.ClientConn), nil
}

func (s *SessionHandler) dial(ctx context.Context) (*http2.ClientConn, net.Conn, error) {
	if s.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DialTimeout)
		defer cancel()
	}

	var netConn net.Conn
	var err error
	if s.scheme == "https" {
		tlsCfg := s.tlsConfig()
		dialer := &tls.Dialer{Config: tlsCfg}
		netConn, err = dialer.DialContext(ctx, "tcp", s.authority)
		if err != nil {
			return nil, nil, err
		}
		if proto := netConn.(*tls.Conn).ConnectionState().NegotiatedProtocol; proto != http2.NextProtoTLS {
			_ = netConn.Close()
			return nil, nil, fmt.Errorf("server negotiated %q instead of %q", proto, http2.NextProtoTLS)
		}
	} else {
		var dialer net.Dialer
		netConn, err = dialer.DialContext(ctx, "tcp", s.authority)
		if err != nil {
			return nil, nil, err
		}
	}

	transport := &http2.Transport{AllowHTTP: s.scheme == "http"}
	cc, err := transport.NewClientConn(netConn)
	if err != nil {
		_ = netConn.Close()
		return nil, nil, err
	}
	return cc, netConn, nil
}

func (s *SessionHandler) tlsConfig() *tls.Config {
	cfg := s.cfg.TLSConfig.Clone()
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = s.hostname
	}
	if !slices.Contains(cfg.NextProtos, http2.NextProtoTLS) {
		cfg.NextProtos = append([]string{http2.NextProtoTLS}, cfg.NextProtos...)
	}
	return cfg
}

// watch probes the connection with PING frames so an asynchronously dead
// peer is noticed even with no streams in flight.
func (s *SessionHandler) watch(cc *http2.ClientConn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PingInterval)
			err := cc.Ping(ctx)
			cancel()
			if err != nil {
				s.fail(fmt.Errorf("session health check failed: %w", err))
				return
			}
		}
	}
}

// fail records the first terminal error, unblocks all waiters, and tears
// the connection down. Later failures are ignored.
func (s *SessionHandler) fail(err error) {
	var retained error
	if !httpclient.IsErrorType(err, httpclient.SessionError) {
		retained = httpclient.NewSessionError("session terminated", err)
	} else {
		retained = err
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.failure = retained
	netConn := s.netConn
	s.mu.Unlock()
	close(s.done)

	if netConn != nil {
		_ = netConn.Close()
	}
	s.log.Warn().Err(retained).Str("origin", s.Origin()).Msg("http2 session failed")
}

// isSessionFatal distinguishes connection-level failures, which terminate
// the session for everyone, from stream-level ones that concern only a
// single caller.
func isSessionFatal(err error) bool {
	var goAway http2.GoAwayError
	if errors.As(err, &goAway) {
		return true
	}
	var streamErr http2.StreamError
	if errors.As(err, &streamErr) {
		return false
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
