package generation

import (
	"errors"
	"strings"
)

const (
	DefaultSize        = 64
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.7
)

// Request describes one generation call. It is copied when Generate starts;
// changing parameters requires a new call.
type Request struct {
	Model  string `json:"model" yaml:"model"`
	Prompt string `json:"prompt" yaml:"prompt"`

	// Size is the target edge length of the square canvas in user units.
	Size int `json:"size,omitzero" yaml:"size,omitempty"`

	MaxTokens   int     `json:"max_tokens,omitzero" yaml:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitzero" yaml:"temperature,omitempty"`

	// CurrentColor asks for the theme-relative "currentColor" keyword instead
	// of literal colors.
	CurrentColor bool `json:"current_color,omitzero" yaml:"current_color,omitempty"`
}

// Normalize returns a copy of r with defaults filled in and text trimmed.
func (r Request) Normalize() Request {
	r.Model = strings.TrimSpace(r.Model)
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Size == 0 {
		r.Size = DefaultSize
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Temperature == 0 {
		r.Temperature = DefaultTemperature
	}
	return r
}

// Validate checks a normalized request.
func (r Request) Validate() error {
	var errs []error
	if r.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if r.Prompt == "" {
		errs = append(errs, errors.New("prompt is required"))
	}
	if r.Size <= 0 {
		errs = append(errs, errors.New("size must be positive"))
	}
	if r.MaxTokens < 0 {
		errs = append(errs, errors.New("max tokens must not be negative"))
	}
	if r.Temperature < 0 {
		errs = append(errs, errors.New("temperature must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return &RequestError{Err: err}
	}
	return nil
}

// RequestError reports an invalid Request.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return "generation: invalid request: " + strings.ReplaceAll(e.Err.Error(), "\n", "; ")
}

func (e *RequestError) Unwrap() error { return e.Err }
