package generation

import (
	"time"

	"github.com/sharo-jef/webllm-svg/pkg/svgx"
)

// LogLevel classifies user-facing log events.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSuccess
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// LogEvent is a message for the user, as opposed to the developer log.
type LogEvent struct {
	Level   LogLevel
	Message string
	Attempt int
	Time    time.Time
}

// Observer receives generation events. All methods are called from the
// goroutine running Generate and must not block for long.
type Observer interface {
	// OnProgress reports model loading progress in [0, 1].
	OnProgress(fraction float64, text string)
	// OnChunk reports each streamed fragment.
	OnChunk(ordinal int, fragment string)
	// OnPreview reports the valid blocks in the buffer after each fragment.
	OnPreview(ordinal int, artifacts []svgx.Artifact)
	OnAttemptStart(ordinal int)
	OnAttemptEnd(ordinal int, outcome Outcome)
	OnLog(ev LogEvent)
}

// ObserverFuncs adapts optional funcs to Observer.
type ObserverFuncs struct {
	Progress     func(fraction float64, text string)
	Chunk        func(ordinal int, fragment string)
	Preview      func(ordinal int, artifacts []svgx.Artifact)
	AttemptStart func(ordinal int)
	AttemptEnd   func(ordinal int, outcome Outcome)
	Log          func(ev LogEvent)
}

func (f ObserverFuncs) OnProgress(fraction float64, text string) {
	if f.Progress != nil {
		f.Progress(fraction, text)
	}
}

func (f ObserverFuncs) OnChunk(ordinal int, fragment string) {
	if f.Chunk != nil {
		f.Chunk(ordinal, fragment)
	}
}

func (f ObserverFuncs) OnPreview(ordinal int, artifacts []svgx.Artifact) {
	if f.Preview != nil {
		f.Preview(ordinal, artifacts)
	}
}

func (f ObserverFuncs) OnAttemptStart(ordinal int) {
	if f.AttemptStart != nil {
		f.AttemptStart(ordinal)
	}
}

func (f ObserverFuncs) OnAttemptEnd(ordinal int, outcome Outcome) {
	if f.AttemptEnd != nil {
		f.AttemptEnd(ordinal, outcome)
	}
}

func (f ObserverFuncs) OnLog(ev LogEvent) {
	if f.Log != nil {
		f.Log(ev)
	}
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnProgress(float64, string)     {}
func (NopObserver) OnChunk(int, string)            {}
func (NopObserver) OnPreview(int, []svgx.Artifact) {}
func (NopObserver) OnAttemptStart(int)             {}
func (NopObserver) OnAttemptEnd(int, Outcome)      {}
func (NopObserver) OnLog(LogEvent)                 {}

// Observers fans events out to each non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return NopObserver{}
	case 1:
		return m[0]
	}
	return m
}

type multiObserver []Observer

func (m multiObserver) OnProgress(fraction float64, text string) {
	for _, o := range m {
		o.OnProgress(fraction, text)
	}
}

func (m multiObserver) OnChunk(ordinal int, fragment string) {
	for _, o := range m {
		o.OnChunk(ordinal, fragment)
	}
}

func (m multiObserver) OnPreview(ordinal int, artifacts []svgx.Artifact) {
	for _, o := range m {
		o.OnPreview(ordinal, artifacts)
	}
}

func (m multiObserver) OnAttemptStart(ordinal int) {
	for _, o := range m {
		o.OnAttemptStart(ordinal)
	}
}

func (m multiObserver) OnAttemptEnd(ordinal int, outcome Outcome) {
	for _, o := range m {
		o.OnAttemptEnd(ordinal, outcome)
	}
}

func (m multiObserver) OnLog(ev LogEvent) {
	for _, o := range m {
		o.OnLog(ev)
	}
}
