package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeServer speaks enough of the OpenAI API for the adapter.
type fakeServer struct {
	models   map[string]bool
	chunks   []string
	finish   string
	hold     chan struct{}
	deleted  atomic.Value
	lastBody atomic.Value
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /models/{id...}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !f.models[id] {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"error":{"message":"model %q not found","type":"not_found"}}`, id)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%q,"object":"model","created":0,"owned_by":"local"}`, id)
	})
	mux.HandleFunc("DELETE /models/{id...}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.deleted.Store(id)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%q,"object":"model","deleted":true}`, id)
	})
	mux.HandleFunc("GET /models", func(w http.ResponseWriter, r *http.Request) {
		var data []string
		for id := range f.models {
			data = append(data, fmt.Sprintf(`{"id":%q,"object":"model","created":0,"owned_by":"local"}`, id))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"object":"list","data":[%s]}`, strings.Join(data, ","))
	})
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		f.lastBody.Store(body)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, c := range f.chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunkJSON(c, ""))
			flusher.Flush()
		}
		if f.hold != nil {
			select {
			case <-f.hold:
			case <-r.Context().Done():
				return
			}
		}
		fmt.Fprintf(w, "data: %s\n\n", chunkJSON("", f.finish))
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	})
	return mux
}

func chunkJSON(content, finish string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 0,
		"model":   "m1",
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{"role": "assistant", "content": content},
			"finish_reason": finish,
		}},
	})
	return string(b)
}

func newTestAdapter(t *testing.T, f *fakeServer) *OpenAI {
	t.Helper()
	ts := httptest.NewServer(f.handler(t))
	t.Cleanup(ts.Close)
	return NewOpenAI(ts.URL, "")
}

func TestOpenAI_InitializeAndStream(t *testing.T) {
	f := &fakeServer{
		models: map[string]bool{"m1": true},
		chunks: []string{"<svg viewBox='0 0 64 64'>", "<circle r='10'/>", "</svg>"},
		finish: "stop",
	}
	a := newTestAdapter(t, f)
	ctx := context.Background()

	var fractions []float64
	eng, err := a.Initialize(ctx, "m1", func(f float64, _ string) { fractions = append(fractions, f) })
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if eng.Model() != "m1" {
		t.Fatalf("Model() = %q", eng.Model())
	}
	if len(fractions) == 0 || fractions[len(fractions)-1] != 1 {
		t.Fatalf("progress = %v, want to end at 1", fractions)
	}

	s, err := a.StreamChat(ctx, eng, []Message{
		{Role: RoleSystem, Content: "draw"},
		{Role: RoleUser, Content: "a circle"},
	}, Params{Temperature: 0.7, MaxTokens: 512})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	defer s.Close()
	got, err := drain(t, s)
	if !errors.Is(err, ErrDone) {
		t.Fatalf("stream err = %v", err)
	}
	if strings.Join(got, "") != "<svg viewBox='0 0 64 64'><circle r='10'/></svg>" {
		t.Fatalf("text = %q", strings.Join(got, ""))
	}
	body := f.lastBody.Load().(map[string]any)
	if body["model"] != "m1" || body["max_tokens"] != float64(512) || body["stream"] != true {
		t.Fatalf("request body = %v", body)
	}
}

func TestOpenAI_Truncated(t *testing.T) {
	f := &fakeServer{models: map[string]bool{"m1": true}, chunks: []string{"<svg>"}, finish: "length"}
	a := newTestAdapter(t, f)
	eng, err := a.Initialize(context.Background(), "m1", nil)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s, err := a.StreamChat(context.Background(), eng, nil, Params{})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if _, err := drain(t, s); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}

func TestOpenAI_InitializeUnknownModel(t *testing.T) {
	a := newTestAdapter(t, &fakeServer{models: map[string]bool{}})
	_, err := a.Initialize(context.Background(), "ghost", nil)
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("err = %v, want ErrModelNotFound", err)
	}
}

func TestOpenAI_Interrupt(t *testing.T) {
	f := &fakeServer{
		models: map[string]bool{"m1": true},
		chunks: []string{"<svg>"},
		finish: "stop",
		hold:   make(chan struct{}),
	}
	defer close(f.hold)
	a := newTestAdapter(t, f)
	eng, err := a.Initialize(context.Background(), "m1", nil)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s, err := a.StreamChat(context.Background(), eng, nil, Params{})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	defer s.Close()
	if text, err := s.Next(); err != nil || text != "<svg>" {
		t.Fatalf("first Next = %q, %v", text, err)
	}

	a.Interrupt(eng)
	done := make(chan error, 1)
	go func() {
		_, err := drain(t, s)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrInterrupted) {
			t.Fatalf("err = %v, want ErrInterrupted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream not interrupted")
	}
}

func TestOpenAI_CacheOperations(t *testing.T) {
	f := &fakeServer{models: map[string]bool{"llama3.2:3b": true}}
	a := newTestAdapter(t, f)
	ctx := context.Background()

	ok, err := a.HasCached(ctx, "llama3.2:3b")
	if err != nil || !ok {
		t.Fatalf("HasCached = %v, %v", ok, err)
	}
	ok, err = a.HasCached(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("HasCached(missing) = %v, %v", ok, err)
	}
	if err := a.DeleteCached(ctx, "llama3.2:3b"); err != nil {
		t.Fatalf("DeleteCached: %v", err)
	}
	if got := f.deleted.Load(); got != "llama3.2:3b" {
		t.Fatalf("deleted = %v", got)
	}
	ids, err := a.ListCached(ctx)
	if err != nil {
		t.Fatalf("ListCached: %v", err)
	}
	if len(ids) != 1 || ids[0] != "llama3.2:3b" {
		t.Fatalf("ListCached = %v", ids)
	}
}
