package httpclient

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gaborage/go-conduit/response"
)

// ErrorType classifies client failures so callers can branch without
// string matching.
type ErrorType int

const (
	// ValidationError marks a request or configuration rejected before
	// any I/O happened.
	ValidationError ErrorType = iota
	// NetworkError marks an I/O-layer failure (connection reset, DNS,
	// broken pipe, stream error) or exhausted retries over one.
	NetworkError
	// TimeoutError marks an attempt that exceeded its time budget.
	TimeoutError
	// HTTPError marks a completed, non-retryable non-2xx response.
	HTTPError
	// SessionError marks an HTTP/2 connection-level failure, independent
	// of any particular stream.
	SessionError
)

func (t ErrorType) String() string {
	switch t {
	case ValidationError:
		return "validation error"
	case NetworkError:
		return "network error"
	case TimeoutError:
		return "timeout error"
	case HTTPError:
		return "HTTP error"
	case SessionError:
		return "session error"
	default:
		return "unknown error"
	}
}

// ClientError is the error contract for every failure surfaced by the
// transport clients.
type ClientError interface {
	error
	Type() ErrorType
}

type validationError struct {
	message string
	field   string
}

// NewValidationError creates a validation failure, optionally naming the
// offending field.
func NewValidationError(message, field string) ClientError {
	return &validationError{message: message, field: field}
}

func (e *validationError) Error() string {
	if e.field != "" {
		return fmt.Sprintf("validation error: %s (field: %s)", e.message, e.field)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

func (e *validationError) Type() ErrorType { return ValidationError }

type networkError struct {
	message string
	code    string
	cause   error
}

// NewNetworkError creates an I/O-layer failure carrying the transport
// error code it was classified into.
func NewNetworkError(message, code string, cause error) ClientError {
	return &networkError{message: message, code: code, cause: cause}
}

func (e *networkError) Error() string {
	msg := fmt.Sprintf("network error [%s]: %s", e.code, e.message)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *networkError) Type() ErrorType { return NetworkError }
func (e *networkError) Unwrap() error   { return e.cause }

// Code returns the transport error code, e.g. ECONNRESET.
func (e *networkError) Code() string { return e.code }

type timeoutError struct {
	message string
	timeout time.Duration
	cause   error
}

// NewTimeoutError creates a failure for an attempt that exceeded its
// per-attempt budget.
func NewTimeoutError(message string, timeout time.Duration, cause error) ClientError {
	return &timeoutError{message: message, timeout: timeout, cause: cause}
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (after %s)", e.message, e.timeout)
}

func (e *timeoutError) Type() ErrorType { return TimeoutError }
func (e *timeoutError) Unwrap() error   { return e.cause }

type httpError struct {
	message string
	resp    *response.Response
}

// NewHTTPError creates a failure for a final non-2xx response. The full
// response model travels with the error so callers can inspect status,
// headers and body.
func NewHTTPError(message string, resp *response.Response) ClientError {
	return &httpError{message: message, resp: resp}
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.resp.StatusCode, e.message)
}

func (e *httpError) Type() ErrorType { return HTTPError }

// StatusCode returns the status of the failing response.
func (e *httpError) StatusCode() int { return e.resp.StatusCode }

// Response returns the full response model of the failing attempt.
func (e *httpError) Response() *response.Response { return e.resp }

// Body returns the raw body of the failing response.
func (e *httpError) Body() []byte { return e.resp.Body }

type sessionError struct {
	message string
	cause   error
}

// NewSessionError creates an HTTP/2 connection-level failure. Aggregate
// causes (errors joined together) are flattened into one composite
// message listing each nested cause in original order.
func NewSessionError(message string, cause error) ClientError {
	return &sessionError{message: message, cause: cause}
}

func (e *sessionError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("session error: %s", e.message)
	}
	return fmt.Sprintf("session error: %s: %s", e.message, flattenMessages(e.cause))
}

func (e *sessionError) Type() ErrorType { return SessionError }
func (e *sessionError) Unwrap() error   { return e.cause }

// flattenMessages walks joined error trees and lists every leaf message
// in original order.
func flattenMessages(err error) string {
	leaves := collectLeaves(err, nil)
	msgs := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		msgs = append(msgs, leaf.Error())
	}
	return strings.Join(msgs, "; ")
}

func collectLeaves(err error, acc []error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, nested := range joined.Unwrap() {
			acc = collectLeaves(nested, acc)
		}
		return acc
	}
	return append(acc, err)
}

// IsErrorType reports whether err (or anything it wraps) is a ClientError
// of the given type.
func IsErrorType(err error, errorType ErrorType) bool {
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type() == errorType
	}
	return false
}

// IsHTTPStatusError reports whether err is an HTTP-classified error with
// the given status code.
func IsHTTPStatusError(err error, statusCode int) bool {
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode() == statusCode
	}
	return false
}

// ResponseFromError extracts the response model from an HTTP-classified
// error, nil when err carries none.
func ResponseFromError(err error) *response.Response {
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr.Response()
	}
	return nil
}

// ErrorCode extracts the transport error code from a network-classified
// error, empty when err carries none.
func ErrorCode(err error) string {
	var netErr *networkError
	if errors.As(err, &netErr) {
		return netErr.Code()
	}
	return ""
}

// IsSuccessStatus reports whether status lies in the 2xx range.
func IsSuccessStatus(status int) bool { return status >= 200 && status < 300 }
