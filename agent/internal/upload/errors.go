package upload

import (
	"errors"
	"fmt"
)

// ErrSuperseded marks an attempt cancelled by a newer one. It is not a
// delivery failure and is never retried on its own.
var ErrSuperseded = errors.New("upload: superseded by a newer attempt")

// TransportError wraps a failure to get any HTTP response: DNS, connect,
// TLS handshake, timeout.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "upload: transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError reports a response whose status was not 201 Created.
type RejectedError struct {
	StatusCode int
	// Body holds the start of the response body for diagnostics.
	Body string
}

func (e *RejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload: server rejected batch: status %d", e.StatusCode)
	}
	return fmt.Sprintf("upload: server rejected batch: status %d: %s", e.StatusCode, e.Body)
}
