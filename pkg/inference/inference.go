// Package inference defines the contract between the generation engine and a
// locally hosted language model, and implements it for OpenAI-compatible
// servers such as Ollama, llama.cpp's server and LM Studio.
package inference

import (
	"context"
	"errors"
)

var (
	// ErrDone is returned by Stream.Next after the last fragment.
	ErrDone = errors.New("inference: done")

	// ErrTruncated ends a stream that hit the token budget. The text received
	// so far is complete as far as the model is concerned.
	ErrTruncated = errors.New("inference: truncated")

	// ErrInterrupted is returned by Stream.Next after Adapter.Interrupt.
	ErrInterrupted = errors.New("inference: interrupted")

	// ErrModelNotFound is returned by Initialize for unknown models.
	ErrModelNotFound = errors.New("inference: model not found")
)

// IsEnd reports whether err marks a normal end of stream.
func IsEnd(err error) bool {
	return errors.Is(err, ErrDone) || errors.Is(err, ErrTruncated)
}

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleModel  Role = "model"
)

type Message struct {
	Role    Role
	Content string
}

// Params are the sampling parameters for one streaming call.
type Params struct {
	Temperature float32
	MaxTokens   int
}

// ProgressFunc receives initialization progress in [0, 1].
type ProgressFunc func(fraction float64, text string)

// Engine is a loaded model handle returned by Initialize.
type Engine interface {
	Model() string
}

// Adapter is the inference backend consumed by the generation engine.
type Adapter interface {
	// Initialize loads model and returns a handle for it. Progress is
	// reported through onProgress, which may be nil. Cancelling ctx aborts
	// the load.
	Initialize(ctx context.Context, model string, onProgress ProgressFunc) (Engine, error)

	// StreamChat starts a chat completion. The returned Stream is finite and
	// cannot be restarted.
	StreamChat(ctx context.Context, eng Engine, msgs []Message, params Params) (Stream, error)

	// Interrupt stops the engine's in-flight stream, if any. Best effort.
	Interrupt(eng Engine)

	// HasCached reports whether model is fully available locally.
	HasCached(ctx context.Context, model string) (bool, error)

	// DeleteCached removes model's local copy.
	DeleteCached(ctx context.Context, model string) error
}

// Lister is implemented by adapters that can enumerate cached models.
type Lister interface {
	ListCached(ctx context.Context) ([]string, error)
}

// Stream yields text fragments in generation order.
type Stream interface {
	// Next returns the next fragment. At the end it returns ErrDone or
	// ErrTruncated; any other error is a transport failure.
	Next() (string, error)

	// Close releases the stream and stops the producer.
	Close() error
}
