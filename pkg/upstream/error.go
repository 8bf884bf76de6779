package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoBody is returned when a successful response carries no body.
	ErrNoBody = errors.New("upstream: response has no body")

	// ErrIdleTimeout is returned when the upstream stays silent for longer
	// than the configured idle timeout.
	ErrIdleTimeout = errors.New("upstream: idle timeout")
)

// Error is a non-success HTTP response from the upstream service.
type Error struct {
	// HTTPStatus is the HTTP status code.
	HTTPStatus int `json:"-"`

	// Message is the provider error message, or the raw body.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("upstream: %s (status=%d)", e.Message, e.HTTPStatus)
}

// IsRateLimit returns true if the upstream throttled the request.
func (e *Error) IsRateLimit() bool {
	return e.HTTPStatus == http.StatusTooManyRequests
}

// IsAuth returns true if the upstream rejected the credentials.
func (e *Error) IsAuth() bool {
	return e.HTTPStatus == http.StatusUnauthorized || e.HTTPStatus == http.StatusForbidden
}

// Retryable returns true if the request can be retried.
func (e *Error) Retryable() bool {
	return e.IsRateLimit() || e.HTTPStatus >= 500
}

// TransportError is a failure to obtain or read the upstream stream:
// connection errors, a missing body, or an idle timeout. It is always fatal
// for the request and distinct from an error the provider reports in-band.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SignaledError is an error the provider reported inside the stream.
type SignaledError struct {
	Message string
}

func (e *SignaledError) Error() string {
	return "upstream: provider error: " + e.Message
}

// AsError extracts *Error from an error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// AsTransportError extracts *TransportError from an error.
func AsTransportError(err error) (*TransportError, bool) {
	var e *TransportError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// AsSignaledError extracts *SignaledError from an error.
func AsSignaledError(err error) (*SignaledError, bool) {
	var e *SignaledError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
