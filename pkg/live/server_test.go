package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sharo-jef/webllm-svg/pkg/cache"
	"github.com/sharo-jef/webllm-svg/pkg/generation"
	"github.com/sharo-jef/webllm-svg/pkg/inference"
)

const circle = `<svg viewBox="0 0 64 64"><circle cx="32" cy="32" r="20"/></svg>`

type stubEngine string

func (e stubEngine) Model() string { return string(e) }

// stubAdapter streams frags, then either ends or blocks until cancelled.
type stubAdapter struct {
	frags []string
	block bool
}

func (a *stubAdapter) Initialize(_ context.Context, model string, onProgress inference.ProgressFunc) (inference.Engine, error) {
	onProgress(1, "ready")
	return stubEngine(model), nil
}

func (a *stubAdapter) StreamChat(ctx context.Context, _ inference.Engine, _ []inference.Message, _ inference.Params) (inference.Stream, error) {
	sb := inference.NewStreamBuilder(len(a.frags))
	for _, f := range a.frags {
		sb.Add(f)
	}
	if !a.block {
		sb.Done()
	} else {
		go func() {
			<-ctx.Done()
			sb.Abort(context.Cause(ctx))
		}()
	}
	return sb.Stream(), nil
}

func (a *stubAdapter) Interrupt(inference.Engine) {}

func (a *stubAdapter) HasCached(context.Context, string) (bool, error) { return true, nil }

func (a *stubAdapter) DeleteCached(context.Context, string) error { return nil }

type testServer struct {
	*Server
	http *httptest.Server

	mu      sync.Mutex
	results []*generation.Result
}

func newTestServer(t *testing.T, a inference.Adapter) *testServer {
	return newTestServerWithCache(t, a, nil)
}

func newTestServerWithCache(t *testing.T, a inference.Adapter, c *cache.Manager) *testServer {
	t.Helper()
	ts := &testServer{}
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	var opts generation.Options
	if c != nil {
		opts.Residency = c
	}
	ts.Server = NewServer(a, Config{
		Options:  opts,
		Defaults: generation.Request{Model: "llama3.2:3b"},
		Logger:   lg,
		Cache:    c,
		OnResult: func(_ context.Context, res *generation.Result) {
			ts.mu.Lock()
			ts.results = append(ts.results, res)
			ts.mu.Unlock()
		},
	})
	ts.http = httptest.NewServer(ts.Handler())
	t.Cleanup(func() {
		ts.Close()
		ts.http.Close()
	})
	return ts
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil || ev.Type != EvSession || ev.Session == "" {
		t.Fatalf("first event = %+v, %v", ev, err)
	}
	return conn
}

// readUntil reads events until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) (Event, []Event) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var seen []Event
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %s: %v (seen %d events)", typ, err, len(seen))
		}
		if ev.Type == typ {
			return ev, seen
		}
		seen = append(seen, ev)
	}
}

func hasType(events []Event, typ string) bool {
	for _, ev := range events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

func TestLiveGenerate(t *testing.T) {
	ts := newTestServer(t, &stubAdapter{frags: []string{"Sure: ", circle}})
	conn := ts.dial(t)

	if err := conn.WriteJSON(Command{Type: CmdGenerate, Request: &generation.Request{Prompt: "a circle"}}); err != nil {
		t.Fatal(err)
	}
	res, seen := readUntil(t, conn, EvResult)
	if res.State != "succeeded" || len(res.Artifacts) != 1 || res.Selected == nil || *res.Selected != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.RunID == "" || res.Error != "" {
		t.Errorf("result = %+v", res)
	}
	for _, typ := range []string{EvProgress, EvAttemptStart, EvChunk, EvPreview, EvAttemptEnd, EvLog} {
		if !hasType(seen, typ) {
			t.Errorf("no %s event", typ)
		}
	}

	ts.mu.Lock()
	n := len(ts.results)
	ts.mu.Unlock()
	if n != 1 {
		t.Errorf("OnResult calls = %d", n)
	}

	resp, err := http.Get(ts.http.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		`svgen_generation_attempts_total{outcome="succeeded"} 1`,
		`svgen_generation_total{model="llama3.2:3b",state="succeeded"} 1`,
		`svgen_live_active_sessions 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics lack %q", want)
		}
	}
}

func TestLiveStopAndBusy(t *testing.T) {
	ts := newTestServer(t, &stubAdapter{frags: []string{"<svg>"}, block: true})
	conn := ts.dial(t)

	conn.WriteJSON(Command{Type: CmdGenerate, Request: &generation.Request{Prompt: "slow"}})
	readUntil(t, conn, EvChunk)

	conn.WriteJSON(Command{Type: CmdGenerate, Request: &generation.Request{Prompt: "again"}})
	busy, _ := readUntil(t, conn, EvError)
	if !strings.Contains(busy.Error, "already running") {
		t.Errorf("busy error = %q", busy.Error)
	}

	conn.WriteJSON(Command{Type: CmdStop})
	res, _ := readUntil(t, conn, EvResult)
	if res.State != "stopped" || len(res.Artifacts) != 0 || res.Error != "" {
		t.Fatalf("result = %+v", res)
	}

	// The session accepts a new generation after a stop.
	conn.WriteJSON(Command{Type: CmdGenerate, Request: &generation.Request{Prompt: "again"}})
	readUntil(t, conn, EvAttemptStart)
	conn.WriteJSON(Command{Type: CmdStop})
	readUntil(t, conn, EvResult)
}

func TestLiveStopRightAfterGenerate(t *testing.T) {
	ts := newTestServer(t, &stubAdapter{frags: []string{"<svg>"}, block: true})
	conn := ts.dial(t)

	conn.WriteJSON(Command{Type: CmdGenerate, Request: &generation.Request{Prompt: "slow"}})
	conn.WriteJSON(Command{Type: CmdStop})
	res, _ := readUntil(t, conn, EvResult)
	if res.State != "stopped" || res.Error != "" {
		t.Fatalf("result = %+v", res)
	}
}

func TestLiveIdleStopIgnored(t *testing.T) {
	ts := newTestServer(t, &stubAdapter{frags: []string{circle}})
	conn := ts.dial(t)

	conn.WriteJSON(Command{Type: CmdStop})
	conn.WriteJSON(Command{Type: CmdGenerate, Request: &generation.Request{Prompt: "a circle"}})
	res, _ := readUntil(t, conn, EvResult)
	if res.State != "succeeded" {
		t.Fatalf("result = %+v", res)
	}
}

func TestLiveBadCommands(t *testing.T) {
	ts := newTestServer(t, &stubAdapter{frags: []string{circle}})
	conn := ts.dial(t)

	tests := []struct {
		cmd  Command
		want string
	}{
		{Command{Type: "dance"}, "unknown command"},
		{Command{Type: CmdGenerate}, "missing request"},
		{Command{Type: CmdSkip}, "no attempt"},
	}
	for _, tt := range tests {
		conn.WriteJSON(tt.cmd)
		ev, _ := readUntil(t, conn, EvError)
		if !strings.Contains(ev.Error, tt.want) {
			t.Errorf("%s: error = %q, want %q", tt.cmd.Type, ev.Error, tt.want)
		}
	}

	conn.WriteJSON(Command{Type: CmdGenerate, Request: &generation.Request{Model: " ", Prompt: ""}})
	ev, _ := readUntil(t, conn, EvError)
	if !strings.Contains(ev.Error, "invalid request") {
		t.Errorf("error = %q", ev.Error)
	}
}

func TestLiveClose(t *testing.T) {
	ts := newTestServer(t, &stubAdapter{frags: []string{"<svg>"}, block: true})
	conn := ts.dial(t)
	conn.WriteJSON(Command{Type: CmdGenerate, Request: &generation.Request{Prompt: "slow"}})
	readUntil(t, conn, EvChunk)

	if got := ts.Sessions(); len(got) != 1 {
		t.Fatalf("Sessions = %v", got)
	}
	if err := ts.Server.Close(); err != nil {
		t.Fatal(err)
	}
	if got := ts.Sessions(); len(got) != 0 {
		t.Errorf("Sessions after Close = %v", got)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
	}

	resp, err := http.Get(ts.http.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status after Close = %d", resp.StatusCode)
	}
}

func TestLiveCacheEndpoints(t *testing.T) {
	a := &stubAdapter{frags: []string{circle}}
	c := cache.New(a, cache.Options{})
	ts := newTestServerWithCache(t, a, c)
	c.Register(&cache.FuncCategory{Label: "live-sessions", Fn: func(context.Context) error {
		ts.CloseSessions()
		return nil
	}})
	conn := ts.dial(t)

	conn.WriteJSON(Command{Type: CmdGenerate, Request: &generation.Request{Prompt: "a circle"}})
	res, seen := readUntil(t, conn, EvResult)
	if res.State != "succeeded" {
		t.Fatalf("result = %+v", res)
	}
	if !hasLog(seen, "Loading llama3.2:3b") {
		t.Error("no loading notice before the first generation")
	}

	conn.WriteJSON(Command{Type: CmdGenerate, Request: &generation.Request{Prompt: "a circle"}})
	_, seen = readUntil(t, conn, EvResult)
	if hasLog(seen, "Loading") {
		t.Error("loading notice for a resident model")
	}

	resp, err := http.Get(ts.http.URL + "/models")
	if err != nil {
		t.Fatal(err)
	}
	var models modelsReply
	json.NewDecoder(resp.Body).Decode(&models)
	resp.Body.Close()
	if len(models.Models) != 1 || models.Models[0] != "llama3.2:3b" {
		t.Errorf("models = %v", models.Models)
	}

	resp, err = http.Post(ts.http.URL+"/purge", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var purged purgeReply
	json.NewDecoder(resp.Body).Decode(&purged)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(purged.Categories) != 1 || purged.Error != "" {
		t.Errorf("purge = %d %+v", resp.StatusCode, purged)
	}
	if len(c.IDs()) != 0 {
		t.Errorf("IDs after purge = %v", c.IDs())
	}

	// The purge closed the session; the server still accepts new ones.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
	}
	ts.dial(t)
}

func hasLog(events []Event, prefix string) bool {
	for _, ev := range events {
		if ev.Type == EvLog && strings.HasPrefix(ev.Text, prefix) {
			return true
		}
	}
	return false
}
