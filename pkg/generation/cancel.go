package generation

import (
	"context"
	"sync"
	"sync/atomic"
)

// Intent is the user's cancellation request for an attempt.
type Intent int32

const (
	IntentNone Intent = iota
	IntentSkip
	IntentStop
)

func (i Intent) String() string {
	switch i {
	case IntentNone:
		return "none"
	case IntentSkip:
		return "skip"
	case IntentStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Token carries the cancellation state of a single attempt. Its intent only
// moves forward: none to skip, none to stop, or skip to stop.
type Token struct {
	intent atomic.Int32
	ctx    context.Context
	cancel context.CancelCauseFunc
}

func newToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancelCause(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Intent returns the current intent.
func (t *Token) Intent() Intent {
	return Intent(t.intent.Load())
}

// Context is cancelled when the attempt is skipped or stopped.
func (t *Token) Context() context.Context {
	return t.ctx
}

func (t *Token) raise(to Intent) bool {
	for {
		cur := Intent(t.intent.Load())
		if cur >= to {
			return false
		}
		if t.intent.CompareAndSwap(int32(cur), int32(to)) {
			cause := ErrSkipped
			if to == IntentStop {
				cause = ErrStopped
			}
			t.cancel(cause)
			return true
		}
	}
}

func (t *Token) release() {
	t.cancel(context.Canceled)
}

// Coordinator turns Stop and Skip calls from any goroutine into token
// state the generation loop observes at its suspension points. Stop holds
// for the rest of the armed call; Skip affects only the current attempt.
type Coordinator struct {
	mu        sync.Mutex
	callCtx   context.Context
	callStop  context.CancelCauseFunc
	stopped   bool
	token     *Token
	interrupt func()
}

// NewCoordinator returns an idle coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Arm starts a new generation call under parent and returns the call
// context, which Stop cancels. A stop requested while idle applies to this
// call.
func (c *Coordinator) Arm(parent context.Context) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callStop != nil {
		c.callStop(context.Canceled)
	}
	c.callCtx, c.callStop = context.WithCancelCause(parent)
	if c.stopped {
		c.callStop(ErrStopped)
	}
	c.token = nil
	c.interrupt = nil
	return c.callCtx
}

// Disarm ends the current call and clears its stop.
func (c *Coordinator) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil {
		c.token.release()
		c.token = nil
	}
	if c.callStop != nil {
		c.callStop(context.Canceled)
		c.callStop = nil
	}
	c.stopped = false
	c.interrupt = nil
}

// FreshToken replaces the current token with a new one for the next
// attempt. A pending stop carries over.
func (c *Coordinator) FreshToken() *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil {
		c.token.release()
	}
	parent := c.callCtx
	if parent == nil {
		parent = context.Background()
	}
	t := newToken(parent)
	if c.stopped {
		t.raise(IntentStop)
	}
	c.token = t
	return t
}

// Token returns the current attempt token, or nil between attempts.
func (c *Coordinator) Token() *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Bind registers fn to be called when the current attempt is interrupted.
// The returned func unregisters it.
func (c *Coordinator) Bind(fn func()) (unbind func()) {
	c.mu.Lock()
	c.interrupt = fn
	tok := c.token
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		if c.token == tok {
			c.interrupt = nil
		}
		c.mu.Unlock()
	}
}

// Stop requests termination of the whole call. While idle it is held for
// the next call, which then ends before its first attempt.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	if c.token != nil {
		c.token.raise(IntentStop)
	}
	if c.callStop != nil {
		c.callStop(ErrStopped)
	}
	fn := c.interrupt
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Skip requests termination of the current attempt only. It reports whether
// an attempt was in flight to receive it.
func (c *Coordinator) Skip() bool {
	c.mu.Lock()
	if c.stopped || c.token == nil || !c.token.raise(IntentSkip) {
		c.mu.Unlock()
		return false
	}
	fn := c.interrupt
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	return true
}

// IsStopRequested reports whether Stop was called or the caller's context
// ended during the armed call.
func (c *Coordinator) IsStopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return true
	}
	return c.callCtx != nil && c.callStop != nil && c.callCtx.Err() != nil
}

// IsSkipRequested reports whether the current attempt was skipped.
func (c *Coordinator) IsSkipRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != nil && c.token.Intent() == IntentSkip
}
