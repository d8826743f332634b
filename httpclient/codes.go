package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"golang.org/x/net/http2"

	"github.com/gaborage/go-conduit/retry"
)

// ClassifyErrorCode maps a raw transport failure to the I/O error code
// vocabulary the retry policy matches against. Timeouts are checked
// first: a deadline blown mid-connect often also looks like a refused or
// reset connection underneath.
func ClassifyErrorCode(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retry.CodeTimedOut
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.CodeTimedOut
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return retry.CodeAddrNotFound
	}

	var streamErr http2.StreamError
	if errors.As(err, &streamErr) {
		return retry.CodeStreamReset
	}
	var goAwayErr http2.GoAwayError
	if errors.As(err, &goAwayErr) {
		return retry.CodeSessionClosed
	}
	var sessErr *sessionError
	if errors.As(err, &sessErr) {
		return retry.CodeSessionClosed
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return retry.CodeConnectionReset
	case errors.Is(err, syscall.ECONNREFUSED):
		return retry.CodeConnectionRefused
	case errors.Is(err, syscall.ECONNABORTED):
		return retry.CodeConnectionAborted
	case errors.Is(err, syscall.EPIPE):
		return retry.CodeBrokenPipe
	default:
		return retry.CodeUnknown
	}
}
