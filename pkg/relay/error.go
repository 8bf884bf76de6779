package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is returned by an Authenticator that rejects a credential.
var ErrUnauthorized = errors.New("relay: unauthorized")

// Error is a JSON error response returned by the relay before streaming
// started.
type Error struct {
	// HTTPStatus is the HTTP status code.
	HTTPStatus int `json:"-"`

	// Message is the error message.
	Message string `json:"error"`

	// RequestID echoes the X-Request-Id header.
	RequestID string `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("relay: %s (status=%d, request_id=%s)", e.Message, e.HTTPStatus, e.RequestID)
	}
	return fmt.Sprintf("relay: %s (status=%d)", e.Message, e.HTTPStatus)
}

// IsAuth returns true if the relay rejected the credential.
func (e *Error) IsAuth() bool {
	return e.HTTPStatus == http.StatusUnauthorized
}

// IsUpstream returns true if the upstream generation could not be started.
func (e *Error) IsUpstream() bool {
	return e.HTTPStatus == http.StatusBadGateway
}

// AsError extracts *Error from an error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
