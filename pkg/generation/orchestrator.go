// Package generation drives a local model through bounded attempts until it
// produces well-formed SVG, honoring stop and skip requests from any
// goroutine.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sharo-jef/webllm-svg/pkg/inference"
	"github.com/sharo-jef/webllm-svg/pkg/svgx"
)

const DefaultMaxAttempts = 10

// skipCeiling bounds the attempt ordinals under SkipFree as a multiple of
// MaxAttempts.
const skipCeiling = 4

// Selection picks one artifact out of the valid blocks of an attempt.
type Selection int

const (
	SelectLast Selection = iota
	SelectFirst
)

func (s Selection) pick(n int) int {
	if n == 0 {
		return -1
	}
	if s == SelectFirst {
		return 0
	}
	return n - 1
}

// Options configures an Orchestrator.
type Options struct {
	// MaxAttempts bounds the attempts of one call. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int

	SkipPolicy SkipPolicy
	Selection  Selection

	// Residency, if set, is told about models that finished a generation.
	Residency Residency

	Logger *slog.Logger

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Orchestrator runs generation calls against one adapter. It keeps the last
// initialized engine and reuses it while the requested model is unchanged.
// One call runs at a time; Stop and Skip are safe from any goroutine.
type Orchestrator struct {
	adapter inference.Adapter
	opts    Options
	coord   *Coordinator
	running atomic.Bool
	state   atomic.Int32

	mu     sync.Mutex
	engine inference.Engine
}

// New returns an orchestrator over adapter.
func New(adapter inference.Adapter, opts Options) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		adapter: adapter,
		opts:    opts,
		coord:   NewCoordinator(),
	}
}

// Stop ends the running call at its next suspension point. The call returns
// a Result in StateStopped and a nil error. Called while idle, it stops the
// next call before its first attempt.
func (o *Orchestrator) Stop() {
	o.coord.Stop()
}

// DropStop discards a stop requested while idle. It must not be called
// while a call is running.
func (o *Orchestrator) DropStop() {
	if o.running.Load() {
		return
	}
	o.coord.Disarm()
}

// Skip abandons the current attempt and moves on to the next one. It reports
// whether an attempt was in flight.
func (o *Orchestrator) Skip() bool {
	return o.coord.Skip()
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Running reports whether a call is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Engine returns the retained engine, or nil.
func (o *Orchestrator) Engine() inference.Engine {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.engine
}

// Reset drops the retained engine so the next call initializes again.
// It must not be called while a call is running.
func (o *Orchestrator) Reset() error {
	if o.running.Load() {
		return ErrBusy
	}
	o.mu.Lock()
	o.engine = nil
	o.mu.Unlock()
	o.state.Store(int32(StateIdle))
	return nil
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// run holds the per-call state of Generate.
type run struct {
	o      *Orchestrator
	req    Request
	obs    Observer
	log    *slog.Logger
	res    *Result
	engine inference.Engine
	msgs   []inference.Message
	params inference.Params
	acc    *Accumulator

	// ordinal is the attempt currently streaming.
	ordinal int
}

// preview reports the artifacts found so far in the streaming attempt.
func (r *run) preview(buf string) {
	r.obs.OnPreview(r.ordinal, svgx.Artifacts(buf))
}

func (r *run) emit(level LogLevel, attempt int, format string, args ...any) {
	r.obs.OnLog(LogEvent{
		Level:   level,
		Message: fmt.Sprintf(format, args...),
		Attempt: attempt,
		Time:    r.o.opts.Now(),
	})
}

// Generate runs one call to completion. It returns a Result for every
// terminal state it reaches. The error is nil on success and on stop, and a
// *Failure when the call fails. Invalid requests and concurrent calls fail
// before any state change.
func (o *Orchestrator) Generate(ctx context.Context, req Request, obs Observer) (*Result, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.running.Store(false)
	if obs == nil {
		obs = NopObserver{}
	}

	callCtx := o.coord.Arm(ctx)
	defer o.coord.Disarm()

	r := &run{
		o:   o,
		req: req,
		obs: obs,
		res: &Result{
			RunID:    uuid.NewString(),
			Request:  req,
			Selected: -1,
		},
		msgs: Messages(req),
		params: inference.Params{
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		},
	}
	r.acc = NewAccumulator(r.preview)
	r.log = o.opts.Logger.With("run", r.res.RunID, "model", req.Model)
	r.log.Debug("generation started", "size", req.Size, "max_attempts", o.opts.MaxAttempts)

	if o.coord.IsStopRequested() {
		return r.stopped(), nil
	}

	o.setState(StateInitializing)
	eng, err := o.acquireEngine(callCtx, req.Model, obs, r.log)
	if err != nil {
		if o.coord.IsStopRequested() {
			return r.stopped(), nil
		}
		r.emit(LevelError, 0, "Failed to load model %s: %v", req.Model, err)
		return r.fail(&Failure{Cause: CauseInitialization, Err: err})
	}
	r.engine = eng
	return r.loop()
}

func (o *Orchestrator) acquireEngine(ctx context.Context, model string, obs Observer, lg *slog.Logger) (inference.Engine, error) {
	o.mu.Lock()
	eng := o.engine
	o.mu.Unlock()
	if eng != nil && eng.Model() == model {
		lg.Debug("reusing engine")
		return eng, nil
	}

	o.mu.Lock()
	o.engine = nil
	o.mu.Unlock()

	start := time.Now()
	eng, err := o.adapter.Initialize(ctx, model, func(fraction float64, text string) {
		obs.OnProgress(fraction, text)
	})
	if err != nil {
		return nil, err
	}
	lg.Info("engine initialized", "elapsed", time.Since(start))

	o.mu.Lock()
	o.engine = eng
	o.mu.Unlock()
	return eng, nil
}

func (r *run) loop() (*Result, error) {
	o := r.o
	var (
		used      int
		ordinal   int
		lastCause Cause
		lastErr   error
	)
	ceiling := o.opts.MaxAttempts
	if o.opts.SkipPolicy == SkipFree {
		ceiling *= skipCeiling
	}

	for {
		if o.coord.IsStopRequested() {
			return r.stopped(), nil
		}
		if used >= o.opts.MaxAttempts || ordinal >= ceiling {
			return r.exhausted(used, lastCause, lastErr)
		}
		ordinal++

		att := r.attempt(ordinal)
		r.res.Attempts = append(r.res.Attempts, att)

		switch att.Outcome {
		case OutcomeSucceeded:
			return r.succeeded(ordinal)
		case OutcomeAbortedByUser:
			if att.Intent == IntentStop {
				return r.stopped(), nil
			}
			if o.opts.SkipPolicy == SkipConsumesAttempt {
				used++
			}
			lastCause, lastErr = CauseUserSkip, ErrSkipped
			r.emit(LevelInfo, ordinal, "Attempt %d skipped", ordinal)
		case OutcomeNoMatch:
			used++
			lastCause, lastErr = CauseNoMatch, ErrNoMatch
			r.emit(LevelWarn, ordinal, "Attempt %d produced no SVG", ordinal)
		case OutcomeNoValidMatch:
			used++
			lastCause, lastErr = CauseNoValidMatch, ErrNoValidMatch
			r.emit(LevelWarn, ordinal, "Attempt %d produced only malformed SVG", ordinal)
		case OutcomeTransport:
			used++
			lastCause, lastErr = CauseTransport, att.Err
			r.emit(LevelWarn, ordinal, "Attempt %d failed: %v", ordinal, att.Err)
		}

		if used < o.opts.MaxAttempts && !o.coord.IsStopRequested() {
			o.setState(StateRetrying)
			r.log.Debug("retrying", "attempt", ordinal, "used", used, "outcome", att.Outcome)
		}
	}
}

// attempt performs one streaming call and classifies how it ended.
func (r *run) attempt(ordinal int) (att Attempt) {
	o := r.o
	tok := o.coord.FreshToken()
	att = Attempt{Ordinal: ordinal, Started: o.opts.Now()}
	defer func() {
		att.Ended = o.opts.Now()
		r.obs.OnAttemptEnd(ordinal, att.Outcome)
		r.log.Debug("attempt finished", "attempt", ordinal, "outcome", att.Outcome, "bytes", len(att.Buffer))
	}()

	r.acc.Reset()
	r.ordinal = ordinal
	o.setState(StateStreaming)
	r.obs.OnAttemptStart(ordinal)
	r.emit(LevelInfo, ordinal, "Attempt %d/%d", ordinal, o.opts.MaxAttempts)

	if intent := tok.Intent(); intent != IntentNone {
		att.Outcome, att.Intent = OutcomeAbortedByUser, intent
		return att
	}

	eng := r.engine
	unbind := o.coord.Bind(func() { o.adapter.Interrupt(eng) })
	defer unbind()

	stream, err := o.adapter.StreamChat(tok.Context(), eng, r.msgs, r.params)
	if err != nil {
		r.abort(&att, tok, err)
		return att
	}
	defer stream.Close()

	for {
		if tok.Intent() != IntentNone {
			att.Buffer = r.acc.String()
			r.abort(&att, tok, context.Cause(tok.Context()))
			return att
		}
		frag, err := stream.Next()
		if err != nil {
			att.Buffer = r.acc.String()
			if inference.IsEnd(err) {
				if errors.Is(err, inference.ErrTruncated) {
					r.log.Debug("stream truncated", "attempt", ordinal)
				}
				break
			}
			r.abort(&att, tok, err)
			return att
		}
		r.obs.OnChunk(ordinal, frag)
		r.acc.Append(frag)
	}

	if tok.Intent() == IntentStop {
		att.Outcome, att.Intent = OutcomeAbortedByUser, IntentStop
		return att
	}

	o.setState(StateValidating)
	ex := svgx.Parse(att.Buffer)
	att.Dropped = ex.Dropped
	for _, d := range ex.Dropped {
		r.log.Debug("candidate dropped", "attempt", ordinal, "reason", d.Reason)
	}
	switch {
	case len(ex.Candidates) == 0:
		att.Outcome = OutcomeNoMatch
	case len(ex.Valid) == 0:
		att.Outcome = OutcomeNoValidMatch
	default:
		att.Outcome = OutcomeSucceeded
		r.res.Artifacts = ex.Valid
	}
	return att
}

// abort classifies an interrupted or failed stream.
func (r *run) abort(att *Attempt, tok *Token, err error) {
	switch {
	case r.o.coord.IsStopRequested() || tok.Intent() == IntentStop:
		att.Outcome, att.Intent = OutcomeAbortedByUser, IntentStop
	case tok.Intent() == IntentSkip:
		att.Outcome, att.Intent = OutcomeAbortedByUser, IntentSkip
	default:
		att.Outcome, att.Err = OutcomeTransport, err
		r.log.Warn("stream failed", "attempt", att.Ordinal, "error", err)
	}
}

func (r *run) succeeded(ordinal int) (*Result, error) {
	o := r.o
	res := r.res
	res.State = StateSucceeded
	res.Selected = o.opts.Selection.pick(len(res.Artifacts))
	for _, a := range res.Artifacts {
		if a.SizeMismatch(r.req.Size) {
			msg := fmt.Sprintf("SVG #%d declares %s, requested %dx%d", a.Index+1, a.Size, r.req.Size, r.req.Size)
			res.Warnings = append(res.Warnings, msg)
			r.emit(LevelWarn, ordinal, "%s", msg)
		}
	}
	if o.opts.Residency != nil {
		o.opts.Residency.MarkResident(r.req.Model)
	}
	o.setState(StateSucceeded)
	r.emit(LevelSuccess, ordinal, "Generated %d SVG(s) on attempt %d", len(res.Artifacts), ordinal)
	r.log.Info("generation succeeded", "attempts", ordinal, "artifacts", len(res.Artifacts))
	return res, nil
}

func (r *run) stopped() *Result {
	r.res.State = StateStopped
	r.res.Artifacts = nil
	r.res.Selected = -1
	r.o.setState(StateStopped)
	r.emit(LevelWarn, len(r.res.Attempts), "Generation stopped")
	r.log.Info("generation stopped", "attempts", len(r.res.Attempts))
	return r.res
}

func (r *run) exhausted(used int, cause Cause, err error) (*Result, error) {
	r.emit(LevelError, len(r.res.Attempts), "Giving up after %d attempts", used)
	return r.fail(&Failure{Cause: cause, Attempts: used, Err: err})
}

func (r *run) fail(f *Failure) (*Result, error) {
	r.res.State = StateFatalFailed
	r.o.setState(StateFatalFailed)
	r.log.Error("generation failed", "cause", f.Cause, "attempts", f.Attempts, "error", f.Err)
	return r.res, f
}
