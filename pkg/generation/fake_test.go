package generation_test

import (
	"context"
	"sync"

	"github.com/sharo-jef/webllm-svg/pkg/generation"
	"github.com/sharo-jef/webllm-svg/pkg/inference"
	"github.com/sharo-jef/webllm-svg/pkg/svgx"
)

const circleSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 64"><circle cx="32" cy="32" r="30" fill="red"/></svg>`

// script is the behavior of one StreamChat call.
type script struct {
	frags    []string
	end      error // nil means inference.ErrDone
	startErr error
	block    bool // wait for cancellation after frags
}

func text(frags ...string) script { return script{frags: frags} }

type fakeEngine struct{ model string }

func (e *fakeEngine) Model() string { return e.model }

type fakeAdapter struct {
	mu         sync.Mutex
	scripts    []script
	initErr    error
	inits      []string
	streams    int
	interrupts int
	closed     int
	lastMsgs   []inference.Message
	lastParams inference.Params
}

func newFakeAdapter(scripts ...script) *fakeAdapter {
	return &fakeAdapter{scripts: scripts}
}

func (a *fakeAdapter) Initialize(ctx context.Context, model string, onProgress inference.ProgressFunc) (inference.Engine, error) {
	a.mu.Lock()
	a.inits = append(a.inits, model)
	initErr := a.initErr
	a.mu.Unlock()
	if onProgress != nil {
		onProgress(0, "loading "+model)
	}
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	if initErr != nil {
		return nil, initErr
	}
	if onProgress != nil {
		onProgress(1, "ready")
	}
	return &fakeEngine{model: model}, nil
}

func (a *fakeAdapter) StreamChat(ctx context.Context, eng inference.Engine, msgs []inference.Message, params inference.Params) (inference.Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.streams
	a.streams++
	a.lastMsgs = msgs
	a.lastParams = params
	sc := script{frags: []string{"no svg here"}}
	if len(a.scripts) > 0 {
		sc = a.scripts[min(n, len(a.scripts)-1)]
	}
	if sc.startErr != nil {
		return nil, sc.startErr
	}
	return &fakeStream{a: a, ctx: ctx, sc: sc}, nil
}

func (a *fakeAdapter) Interrupt(inference.Engine) {
	a.mu.Lock()
	a.interrupts++
	a.mu.Unlock()
}

func (a *fakeAdapter) HasCached(context.Context, string) (bool, error) { return false, nil }

func (a *fakeAdapter) DeleteCached(context.Context, string) error { return nil }

func (a *fakeAdapter) counts() (inits, streams, interrupts, closed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inits), a.streams, a.interrupts, a.closed
}

type fakeStream struct {
	a   *fakeAdapter
	ctx context.Context
	sc  script
	i   int
}

func (s *fakeStream) Next() (string, error) {
	if s.i < len(s.sc.frags) {
		s.i++
		return s.sc.frags[s.i-1], nil
	}
	if s.sc.block {
		<-s.ctx.Done()
		return "", context.Cause(s.ctx)
	}
	if s.sc.end != nil {
		return "", s.sc.end
	}
	return "", inference.ErrDone
}

func (s *fakeStream) Close() error {
	s.a.mu.Lock()
	s.a.closed++
	s.a.mu.Unlock()
	return nil
}

// recorder is an Observer that keeps every event.
type recorder struct {
	mu       sync.Mutex
	progress []float64
	chunks   map[int][]string
	previews map[int][]int
	starts   []int
	ends     []generation.Outcome
	logs     []generation.LogEvent

	// onChunk runs after a chunk is recorded.
	onChunk func(ordinal int, fragment string)
}

func newRecorder() *recorder {
	return &recorder{chunks: map[int][]string{}, previews: map[int][]int{}}
}

func (r *recorder) OnProgress(fraction float64, _ string) {
	r.mu.Lock()
	r.progress = append(r.progress, fraction)
	r.mu.Unlock()
}

func (r *recorder) OnChunk(ordinal int, fragment string) {
	r.mu.Lock()
	r.chunks[ordinal] = append(r.chunks[ordinal], fragment)
	fn := r.onChunk
	r.mu.Unlock()
	if fn != nil {
		fn(ordinal, fragment)
	}
}

func (r *recorder) OnPreview(ordinal int, artifacts []svgx.Artifact) {
	r.mu.Lock()
	r.previews[ordinal] = append(r.previews[ordinal], len(artifacts))
	r.mu.Unlock()
}

func (r *recorder) OnAttemptStart(ordinal int) {
	r.mu.Lock()
	r.starts = append(r.starts, ordinal)
	r.mu.Unlock()
}

func (r *recorder) OnAttemptEnd(_ int, outcome generation.Outcome) {
	r.mu.Lock()
	r.ends = append(r.ends, outcome)
	r.mu.Unlock()
}

func (r *recorder) OnLog(ev generation.LogEvent) {
	r.mu.Lock()
	r.logs = append(r.logs, ev)
	r.mu.Unlock()
}

func (r *recorder) levels(level generation.LogLevel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.logs {
		if ev.Level == level {
			n++
		}
	}
	return n
}

type residency struct {
	mu     sync.Mutex
	models []string
}

func (r *residency) MarkResident(model string) {
	r.mu.Lock()
	r.models = append(r.models, model)
	r.mu.Unlock()
}
