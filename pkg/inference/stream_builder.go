package inference

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Stream.Next after Close.
var ErrClosed = errors.New("inference: stream closed")

// StreamBuilder is the producer side of a Stream. A backend goroutine calls
// Add for each fragment and finishes with Done, Truncated or Abort; the
// consumer reads through Stream.
type StreamBuilder struct {
	ch     chan string
	closed chan struct{}

	mu        sync.Mutex
	err       error
	finished  bool
	closeOnce sync.Once
	onClose   func()
}

// NewStreamBuilder creates a builder buffering up to size fragments.
func NewStreamBuilder(size int) *StreamBuilder {
	return &StreamBuilder{
		ch:     make(chan string, size),
		closed: make(chan struct{}),
	}
}

// OnClose registers fn to run once when the consumer closes the stream.
func (sb *StreamBuilder) OnClose(fn func()) {
	sb.mu.Lock()
	sb.onClose = fn
	sb.mu.Unlock()
}

// Add queues a fragment, blocking while the buffer is full. It fails once
// the consumer has closed the stream.
func (sb *StreamBuilder) Add(text string) error {
	if text == "" {
		return nil
	}
	select {
	case <-sb.closed:
		return ErrClosed
	default:
	}
	select {
	case sb.ch <- text:
		return nil
	case <-sb.closed:
		return ErrClosed
	}
}

// Done ends the stream normally.
func (sb *StreamBuilder) Done() error {
	return sb.finish(ErrDone)
}

// Truncated ends the stream because the token budget ran out.
func (sb *StreamBuilder) Truncated() error {
	return sb.finish(ErrTruncated)
}

// Abort ends the stream with err. A nil err is treated as ErrInterrupted.
func (sb *StreamBuilder) Abort(err error) error {
	if err == nil {
		err = ErrInterrupted
	}
	return sb.finish(err)
}

func (sb *StreamBuilder) finish(err error) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.finished {
		return nil
	}
	sb.finished = true
	sb.err = err
	close(sb.ch)
	return nil
}

// Stream returns the consumer side.
func (sb *StreamBuilder) Stream() Stream {
	return (*builtStream)(sb)
}

type builtStream StreamBuilder

func (s *builtStream) Next() (string, error) {
	select {
	case <-s.closed:
		return "", ErrClosed
	default:
	}
	select {
	case text, ok := <-s.ch:
		if ok {
			return text, nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return "", s.err
	case <-s.closed:
		return "", ErrClosed
	}
}

func (s *builtStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		fn := s.onClose
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
	return nil
}
