package commands

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sharo-jef/webllm-svg/pkg/cli"
	"github.com/sharo-jef/webllm-svg/pkg/generation"
	"github.com/sharo-jef/webllm-svg/pkg/kv"
	"github.com/sharo-jef/webllm-svg/pkg/prefs"
)

func testApp(t *testing.T, s cli.Settings) *app {
	t.Helper()
	m := kv.NewMemory(nil)
	t.Cleanup(func() { m.Close() })
	return &app{settings: s, prefs: prefs.New(m)}
}

func resetGenerateFlags(t *testing.T) {
	t.Helper()
	saved := generateFlags
	t.Cleanup(func() { generateFlags = saved })
	generateFlags = generateOptions{}
}

func TestBuildRequestPriority(t *testing.T) {
	resetGenerateFlags(t)
	ctx := context.Background()
	a := testApp(t, cli.Settings{Model: "ctx-model", Size: 48, MaxTokens: 1024})

	dir := t.TempDir()
	file := filepath.Join(dir, "req.yaml")
	os.WriteFile(file, []byte("prompt: from file\nsize: 32\ncurrent_color: true\n"), 0o644)
	generateFlags.file = file
	generateFlags.model = "flag-model"

	req, err := buildRequest(ctx, a, []string{"a", "paper", "plane"})
	if err != nil {
		t.Fatal(err)
	}
	want := generation.Request{
		Model:        "flag-model",
		Prompt:       "a paper plane",
		Size:         32,
		MaxTokens:    1024,
		CurrentColor: true,
	}
	if req != want {
		t.Errorf("request = %+v, want %+v", req, want)
	}
}

func TestBuildRequestFallbacks(t *testing.T) {
	resetGenerateFlags(t)
	ctx := context.Background()
	a := testApp(t, cli.Settings{})

	if _, err := buildRequest(ctx, a, nil); err == nil {
		t.Fatal("want error without prompt and draft")
	}

	a.prefs.SetDraft(ctx, "a saved draft")
	if _, err := buildRequest(ctx, a, nil); err == nil {
		t.Fatal("want error without model")
	}

	a.prefs.SetLastModel(ctx, "llama3.2:3b")
	req, err := buildRequest(ctx, a, nil)
	if err != nil {
		t.Fatal(err)
	}
	if req.Prompt != "a saved draft" || req.Model != "llama3.2:3b" {
		t.Errorf("request = %+v", req)
	}
}

func TestOrchestratorOptions(t *testing.T) {
	a := testApp(t, cli.Settings{MaxAttempts: 3, SkipFree: true})
	opts, err := a.orchestratorOptions(0, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if opts.MaxAttempts != 3 || opts.SkipPolicy != generation.SkipFree || opts.Selection != generation.SelectLast {
		t.Errorf("options = %+v", opts)
	}
	opts, err = a.orchestratorOptions(5, false, "first")
	if err != nil || opts.MaxAttempts != 5 || opts.Selection != generation.SelectFirst {
		t.Errorf("options = %+v, %v", opts, err)
	}
	if _, err := a.orchestratorOptions(0, false, "middle"); err == nil {
		t.Error("want error for unknown selection")
	}
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		out, want string
	}{
		{dir, filepath.Join(dir, "abc.svg")},
		{"icons/", filepath.Join("icons", "abc.svg")},
		{filepath.Join(dir, "plane.svg"), filepath.Join(dir, "plane.svg")},
	}
	for _, tt := range tests {
		if got := outputPath(tt.out, "abc"); got != tt.want {
			t.Errorf("outputPath(%q) = %q, want %q", tt.out, got, tt.want)
		}
	}
}

func TestJoinKey(t *testing.T) {
	if got := joinKey("/icons/", "m/x.svg"); got != "icons/m/x.svg" {
		t.Errorf("joinKey = %q", got)
	}
	if got := joinKey("", "m/x.svg"); got != "m/x.svg" {
		t.Errorf("joinKey = %q", got)
	}
}

func TestScanLines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	defer pw.Close()
	lines := scanLines(ctx, pr)

	go pw.Write([]byte(" s \n"))
	if got := <-lines; got != "s" {
		t.Fatalf("line = %q, want s", got)
	}

	// Nobody reads the next line; the scanner must still exit.
	cancel()
	go pw.Write([]byte("q\n"))
	select {
	case line, ok := <-lines:
		if ok {
			t.Fatalf("line %q delivered after cancel", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scanner did not exit after cancel")
	}
}
