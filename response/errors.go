package response

import "fmt"

// DecodeError reports that a requested view (text, JSON, multipart) does
// not apply to the response body, or that the body is malformed for it.
// It is raised lazily, only when the view is accessed.
type DecodeError struct {
	message string
	cause   error
}

func newDecodeError(message string, cause error) *DecodeError {
	return &DecodeError{message: message, cause: cause}
}

func (e *DecodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("decoding error: %s: %v", e.message, e.cause)
	}
	return fmt.Sprintf("decoding error: %s", e.message)
}

func (e *DecodeError) Unwrap() error { return e.cause }
