package generation

import (
	"time"

	"github.com/sharo-jef/webllm-svg/pkg/svgx"
)

// State is the orchestrator's position in a generation call.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateStreaming
	StateValidating
	StateRetrying
	StateSucceeded
	StateStopped
	StateFatalFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateValidating:
		return "validating"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateStopped:
		return "stopped"
	case StateFatalFailed:
		return "fatal-failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a call.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateStopped || s == StateFatalFailed
}

// Outcome is how a single attempt ended.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeNoMatch
	OutcomeNoValidMatch
	OutcomeAbortedByUser
	OutcomeTransport
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeNoMatch:
		return "no-match"
	case OutcomeNoValidMatch:
		return "no-valid-match"
	case OutcomeAbortedByUser:
		return "aborted-by-user"
	case OutcomeTransport:
		return "aborted-transport-retryable"
	default:
		return "unknown"
	}
}

// Attempt records one streaming call.
type Attempt struct {
	Ordinal int
	Buffer  string
	Outcome Outcome
	Intent  Intent
	Err     error
	Started time.Time
	Ended   time.Time

	// Dropped lists candidates rejected by validation.
	Dropped []svgx.Dropped
}

// Result is the final report of a generation call.
type Result struct {
	RunID   string
	Request Request
	State   State

	// Artifacts holds the valid blocks of the successful attempt in
	// document order.
	Artifacts []svgx.Artifact

	// Selected indexes Artifacts; -1 when there is none.
	Selected int

	Attempts []Attempt
	Warnings []string
}

// SelectedArtifact returns the chosen artifact.
func (r *Result) SelectedArtifact() (svgx.Artifact, bool) {
	if r == nil || r.Selected < 0 || r.Selected >= len(r.Artifacts) {
		return svgx.Artifact{}, false
	}
	return r.Artifacts[r.Selected], true
}

// SelectedSVG returns the chosen SVG text, or "".
func (r *Result) SelectedSVG() string {
	a, ok := r.SelectedArtifact()
	if !ok {
		return ""
	}
	return a.SVG
}

// SkipPolicy decides whether a skipped attempt counts against the budget.
type SkipPolicy int

const (
	SkipConsumesAttempt SkipPolicy = iota
	SkipFree
)

func (p SkipPolicy) String() string {
	if p == SkipFree {
		return "free"
	}
	return "consumes-attempt"
}

// Residency is told which models finished a generation so cache views can
// show them as ready.
type Residency interface {
	MarkResident(model string)
}
