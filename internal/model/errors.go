package model

import "fmt"

// Guard denial reasons, surfaced verbatim to the client.
const (
	ReasonNotStarted     = "Test not started yet"
	ReasonTimeOver       = "Test time is over"
	ReasonFinalSubmitted = "Test already final submitted"
)

// NotFoundError means an unknown candidate id or access code.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return e.What + " not found"
}

// DeniedError is a window or lock guard failure. The same action is not
// retryable, though a different valid action (waiting for the window to
// open) may succeed later.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return e.Reason
}

// RejectedError is a logical conflict: the modality was already
// submitted or the candidate already finalized. Distinct from
// DeniedError so clients can render "already done" rather than
// "forbidden".
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return e.Reason
}

// ScorerUnavailableError wraps a transient external scorer failure.
// No state was mutated; the caller may retry.
type ScorerUnavailableError struct {
	Err error
}

func (e *ScorerUnavailableError) Error() string {
	return fmt.Sprintf("scorer unavailable: %v", e.Err)
}

func (e *ScorerUnavailableError) Unwrap() error {
	return e.Err
}

// ValidationError is a malformed request: missing field, missing file,
// unparseable value. No state was mutated.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}
