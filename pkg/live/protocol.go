package live

import (
	"github.com/sharo-jef/webllm-svg/pkg/generation"
	"github.com/sharo-jef/webllm-svg/pkg/svgx"
)

// Command types sent by clients.
const (
	CmdGenerate = "generate"
	CmdStop     = "stop"
	CmdSkip     = "skip"
)

// Command is an inbound message.
type Command struct {
	Type    string              `json:"type"`
	Request *generation.Request `json:"request,omitempty"`
}

// Event types sent to clients.
const (
	EvSession      = "session"
	EvProgress     = "progress"
	EvChunk        = "chunk"
	EvPreview      = "preview"
	EvAttemptStart = "attempt_start"
	EvAttemptEnd   = "attempt_end"
	EvLog          = "log"
	EvResult       = "result"
	EvError        = "error"
)

// Event is an outbound message. Only the fields of its type are set.
type Event struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
	Attempt int    `json:"attempt,omitempty"`

	Fraction  float64         `json:"fraction,omitzero"`
	Text      string          `json:"text,omitempty"`
	Artifacts []svgx.Artifact `json:"artifacts,omitempty"`
	Outcome   string          `json:"outcome,omitempty"`
	Level     string          `json:"level,omitempty"`

	RunID    string   `json:"run_id,omitempty"`
	State    string   `json:"state,omitempty"`
	Selected *int     `json:"selected,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Cause    string   `json:"cause,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func resultEvent(res *generation.Result, err error) Event {
	ev := Event{Type: EvResult}
	if res != nil {
		sel := res.Selected
		ev.RunID = res.RunID
		ev.State = res.State.String()
		ev.Artifacts = res.Artifacts
		ev.Selected = &sel
		ev.Warnings = res.Warnings
		ev.Attempt = len(res.Attempts)
	}
	if err != nil {
		ev.Error = err.Error()
		if f, ok := generation.IsFailure(err); ok {
			ev.Cause = string(f.Cause)
		}
	}
	return ev
}
