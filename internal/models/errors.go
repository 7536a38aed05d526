package models

import (
	"errors"
)

// Error taxonomy for the gateway. Every failure a component raises belongs to
// one of these classes so callers can branch with errors.Is without string
// matching:
//
//   - not-found:  a required collaborator is missing (no viewer attached)
//   - timeout:    an expected asynchronous response never arrived in bound
//   - transport:  the backend host cannot be reached at all
//   - protocol:   the collaborator answered with an error or malformed payload
//   - validation: the caller passed empty or invalid input (ValidationError)
var (
	// ErrSessionNotFound is returned when the referenced session does not
	// exist or has been reaped.
	ErrSessionNotFound = errors.New("session not found")

	// ErrViewerNotAttached is returned when a session has no connected
	// viewer to talk to.
	ErrViewerNotAttached = errors.New("viewer is not attached")

	// ErrExtractionTimeout is returned when the viewer never answered a
	// full-text extraction request within the deadline.
	ErrExtractionTimeout = errors.New("text extraction timed out")

	// ErrExtractionPending is returned when an extraction is requested
	// while a previous one is still outstanding. The viewer protocol has no
	// correlation identifiers, so overlapping requests cannot be told apart
	// on response and are refused instead.
	ErrExtractionPending = errors.New("a text extraction is already in progress")

	// ErrNoTextFound is returned when extraction succeeded on the wire but
	// the document yielded only whitespace.
	ErrNoTextFound = errors.New("no text found in document")

	// ErrBackendUnreachable is returned when the assistant backend host
	// cannot be reached at all (connection refused, DNS failure). Callers
	// render it as a "cannot connect, is the backend running?" hint.
	ErrBackendUnreachable = errors.New("assistant backend is unreachable")

	// ErrEndpointNotFound is returned when the backend answered 404 for a
	// documented endpoint, which usually means the wrong service is
	// listening on the configured port.
	ErrEndpointNotFound = errors.New("backend endpoint not found")

	// ErrStreamProtocol is returned when a streamed response carried an
	// error payload or broke off in a malformed way.
	ErrStreamProtocol = errors.New("assistant stream protocol error")
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
