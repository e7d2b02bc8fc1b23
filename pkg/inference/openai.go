package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
)

var (
	_ Adapter = (*OpenAI)(nil)
	_ Lister  = (*OpenAI)(nil)
)

const (
	oaiFinishReasonStop          = "stop"
	oaiFinishReasonLength        = "length"
	oaiFinishReasonContentFilter = "content_filter"

	// DefaultBaseURL is Ollama's OpenAI-compatible endpoint.
	DefaultBaseURL = "http://localhost:11434/v1"
)

// OpenAI is an Adapter for OpenAI-compatible inference servers. The model
// list endpoint stands in for the local model cache: a model the server can
// describe is cached, and deleting it removes the local weights.
type OpenAI struct {
	Client *openai.Client

	// WarmUp sends a one-token completion during Initialize so the server
	// loads the weights before the first real request.
	WarmUp bool

	// BufferSize is the fragment buffer per stream. Zero means 32.
	BufferSize int

	Logger *slog.Logger
}

// NewOpenAI builds an adapter talking to baseURL. An empty baseURL uses
// DefaultBaseURL; local servers usually accept any apiKey.
func NewOpenAI(baseURL, apiKey string, opts ...option.RequestOption) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if apiKey == "" {
		apiKey = "local"
	}
	all := append([]option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	c := openai.NewClient(all...)
	return &OpenAI{Client: &c}
}

func (a *OpenAI) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// oaiEngine is the handle returned by OpenAI.Initialize. It remembers the
// cancel function of the active stream so Interrupt can reach it.
type oaiEngine struct {
	model string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (e *oaiEngine) Model() string { return e.model }

func (e *oaiEngine) setCancel(cancel context.CancelFunc) {
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
}

func (e *oaiEngine) interrupt() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *OpenAI) Initialize(ctx context.Context, model string, onProgress ProgressFunc) (Engine, error) {
	report := func(f float64, text string) {
		if onProgress != nil {
			onProgress(f, text)
		}
	}
	report(0, fmt.Sprintf("Resolving %s", model))
	if _, err := a.Client.Models.Get(ctx, model); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, model)
		}
		return nil, fmt.Errorf("inference: resolve %s: %w", model, err)
	}
	if a.WarmUp {
		report(0.5, fmt.Sprintf("Loading %s", model))
		_, err := a.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:     model,
			Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage("ping")},
			MaxTokens: param.NewOpt[int64](1),
		})
		if err != nil {
			return nil, fmt.Errorf("inference: warm up %s: %w", model, err)
		}
	}
	report(1, fmt.Sprintf("%s ready", model))
	a.logger().Debug("inference: engine initialized", "model", model)
	return &oaiEngine{model: model}, nil
}

func (a *OpenAI) StreamChat(ctx context.Context, eng Engine, msgs []Message, params Params) (Stream, error) {
	e, ok := eng.(*oaiEngine)
	if !ok || e == nil {
		return nil, fmt.Errorf("inference: engine %T was not created by this adapter", eng)
	}
	req := openai.ChatCompletionNewParams{
		Model:    e.model,
		Messages: oaiConvMessages(msgs),
	}
	if params.Temperature > 0 {
		req.Temperature = param.NewOpt(float64(params.Temperature))
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = param.NewOpt(int64(params.MaxTokens))
	}

	size := a.BufferSize
	if size <= 0 {
		size = 32
	}
	streamCtx, cancel := context.WithCancel(ctx)
	e.setCancel(cancel)

	sb := NewStreamBuilder(size)
	sb.OnClose(cancel)
	go func() {
		defer cancel()
		err := oaiPull(sb, a.Client.Chat.Completions.NewStreaming(streamCtx, req))
		if err != nil {
			if streamCtx.Err() != nil && ctx.Err() == nil {
				err = fmt.Errorf("%w: %v", ErrInterrupted, err)
			}
			sb.Abort(err)
		}
	}()
	return sb.Stream(), nil
}

func (a *OpenAI) Interrupt(eng Engine) {
	if e, ok := eng.(*oaiEngine); ok && e != nil {
		e.interrupt()
	}
}

func (a *OpenAI) HasCached(ctx context.Context, model string) (bool, error) {
	_, err := a.Client.Models.Get(ctx, model)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("inference: lookup %s: %w", model, err)
	}
}

func (a *OpenAI) DeleteCached(ctx context.Context, model string) error {
	_, err := a.Client.Models.Delete(ctx, model)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("inference: delete %s: %w", model, err)
	}
	return nil
}

func (a *OpenAI) ListCached(ctx context.Context) ([]string, error) {
	var ids []string
	pager := a.Client.Models.ListAutoPaging(ctx)
	for pager.Next() {
		ids = append(ids, pager.Current().ID)
	}
	if err := pager.Err(); err != nil {
		return nil, fmt.Errorf("inference: list models: %w", err)
	}
	return ids, nil
}

func oaiPull(sb *StreamBuilder, stream *ssestream.Stream[openai.ChatCompletionChunk]) error {
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if s := choice.Delta.Content; s != "" {
			if err := sb.Add(s); err != nil {
				return err
			}
		}
		switch choice.FinishReason {
		case oaiFinishReasonStop:
			return sb.Done()
		case oaiFinishReasonLength:
			return sb.Truncated()
		case oaiFinishReasonContentFilter:
			return fmt.Errorf("inference: generation blocked: %s", choice.Delta.Refusal)
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	return sb.Done()
}

func oaiConvMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleModel:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func isNotFound(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
