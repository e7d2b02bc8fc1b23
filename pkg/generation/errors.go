package generation

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when Generate is called while another call on the
	// same orchestrator is running.
	ErrBusy = errors.New("generation: already running")

	// ErrStopped is the cancellation cause of a stopped call.
	ErrStopped = errors.New("generation: stopped")

	// ErrSkipped is the cancellation cause of a skipped attempt.
	ErrSkipped = errors.New("generation: attempt skipped")

	// ErrNoMatch means no candidate block appeared in the output.
	ErrNoMatch = errors.New("generation: no structured content found")

	// ErrNoValidMatch means candidates appeared but none was well-formed.
	ErrNoValidMatch = errors.New("generation: no valid structured content found")
)

// Cause tags why a generation failed.
type Cause string

const (
	CauseNoMatch        Cause = "no-match"
	CauseNoValidMatch   Cause = "no-valid-match"
	CauseTransport      Cause = "transport"
	CauseInitialization Cause = "initialization"
	CauseUserSkip       Cause = "user-skip"
)

// Failure is returned by Generate when the call ends in the fatal state.
type Failure struct {
	Cause    Cause
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	if f.Cause == CauseInitialization {
		return fmt.Sprintf("generation: initialization failed: %v", f.Err)
	}
	return fmt.Sprintf("generation: failed after %d attempts (%s): %v", f.Attempts, f.Cause, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// IsFailure reports whether err is a *Failure and returns it.
func IsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
