package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sharo-jef/webllm-svg/pkg/artifacts"
	"github.com/sharo-jef/webllm-svg/pkg/cli"
	"github.com/sharo-jef/webllm-svg/pkg/generation"
	"github.com/sharo-jef/webllm-svg/pkg/svgx"
)

type generateOptions struct {
	file         string
	model        string
	size         int
	maxTokens    int
	temperature  float32
	currentColor bool
	attempts     int
	skipFree     bool
	selection    string
	out          string
	export       bool
	stream       bool
}

var generateFlags generateOptions

var generateCmd = &cobra.Command{
	Use:     "generate [prompt...]",
	Aliases: []string{"gen"},
	Short:   "Generate an SVG icon",
	Long: `Generate an SVG icon from a text prompt.

The prompt comes from the arguments, a request file (-f, "-" for stdin) or,
when neither is given, the saved draft. Flags override request fields.

While generating, type "s" and Enter to skip the current attempt, or "q"
and Enter (or Ctrl-C) to stop. The selected SVG is written to stdout, or
to --out.

Examples:
  svgen generate "a coffee cup" --size 32
  svgen generate -f request.yaml --out icons/
  svgen generate "a gear" --current-color --export`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&generateFlags.file, "file", "f", "", "request file (yaml or json, - for stdin)")
	f.StringVarP(&generateFlags.model, "model", "m", "", "model id (default: context model, then the last used model)")
	f.IntVar(&generateFlags.size, "size", 0, "icon size in pixels")
	f.IntVar(&generateFlags.maxTokens, "max-tokens", 0, "token budget per attempt")
	f.Float32Var(&generateFlags.temperature, "temperature", 0, "sampling temperature")
	f.BoolVar(&generateFlags.currentColor, "current-color", false, "draw with currentColor")
	f.IntVar(&generateFlags.attempts, "attempts", 0, "attempt budget (default 10)")
	f.BoolVar(&generateFlags.skipFree, "skip-free", false, "skipped attempts do not use the budget")
	f.StringVar(&generateFlags.selection, "select", "last", "block to keep when a reply has several: first, last")
	f.StringVarP(&generateFlags.out, "out", "o", "", "write the SVG to this file or directory")
	f.BoolVar(&generateFlags.export, "export", false, "also upload the SVG to the context's export bucket")
	f.BoolVar(&generateFlags.stream, "stream", false, "echo model output to stderr while generating")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	req, err := buildRequest(ctx, a, args)
	if err != nil {
		return err
	}
	if err := a.prefs.SetDraft(ctx, req.Prompt); err != nil {
		return err
	}

	opts, err := a.orchestratorOptions(generateFlags.attempts, generateFlags.skipFree, generateFlags.selection)
	if err != nil {
		return err
	}
	p := newPrinter()
	o := generation.New(a.adapter, opts)
	if generateFlags.file != "-" {
		go readKeys(ctx, o, p)
	}

	res, err := o.Generate(ctx, req, terminalObserver(p))
	if res == nil {
		return err
	}
	switch res.State {
	case generation.StateStopped:
		p.Warning("Stopped; the prompt is kept as draft")
		return nil
	case generation.StateSucceeded:
	default:
		if f, ok := generation.IsFailure(err); ok && f.Cause == generation.CauseInitialization {
			return fmt.Errorf("model %s could not be loaded from %s: %w", req.Model, a.settings.BaseURL, f.Err)
		}
		return err
	}

	if err := a.prefs.ClearDraft(ctx); err != nil {
		return err
	}
	if err := a.prefs.History().Add(ctx, req.Prompt); err != nil {
		return err
	}
	if err := a.prefs.SetLastModel(ctx, req.Model); err != nil {
		return err
	}

	rec, err := a.artifacts.SaveResult(ctx, res)
	if err != nil {
		return err
	}
	p.Debug("saved artifact %s", rec.ID)

	if generateFlags.export {
		dst, err := a.exportStore()
		if err != nil {
			return err
		}
		path, err := artifacts.Export(ctx, rec, dst)
		if err != nil {
			return err
		}
		p.Success("Exported to s3://%s/%s", a.settings.Export.Bucket, joinKey(a.settings.Export.Prefix, path))
	}

	svg := res.SelectedSVG()
	if generateFlags.out == "" {
		return cli.Output(svg+"\n", cli.OutputOptions{Format: cli.FormatRaw})
	}
	path := outputPath(generateFlags.out, rec.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(svg+"\n"), 0o644); err != nil {
		return err
	}
	p.Success("Wrote %s (%d attempts)", path, len(res.Attempts))
	return nil
}

// buildRequest merges the context defaults, the request file, the prompt
// arguments and the flags, in increasing priority.
func buildRequest(ctx context.Context, a *app, args []string) (generation.Request, error) {
	req := a.defaults()
	if generateFlags.file != "" {
		var fileReq generation.Request
		if err := cli.LoadRequest(generateFlags.file, &fileReq); err != nil {
			return req, err
		}
		req = mergeRequest(req, fileReq)
	}
	if len(args) > 0 {
		req.Prompt = strings.Join(args, " ")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		draft, err := a.prefs.Draft(ctx)
		if err != nil {
			return req, err
		}
		if draft == "" {
			return req, errors.New("no prompt given and no draft saved")
		}
		req.Prompt = draft
	}

	if generateFlags.model != "" {
		req.Model = generateFlags.model
	}
	if req.Model == "" {
		last, err := a.prefs.LastModel(ctx)
		if err != nil {
			return req, err
		}
		req.Model = last
	}
	if req.Model == "" {
		return req, errors.New("no model selected: pass --model or set one with 'svgen config add-context'")
	}
	if generateFlags.size > 0 {
		req.Size = generateFlags.size
	}
	if generateFlags.maxTokens > 0 {
		req.MaxTokens = generateFlags.maxTokens
	}
	if generateFlags.temperature > 0 {
		req.Temperature = generateFlags.temperature
	}
	if generateFlags.currentColor {
		req.CurrentColor = true
	}
	return req, nil
}

func mergeRequest(base, over generation.Request) generation.Request {
	if over.Model != "" {
		base.Model = over.Model
	}
	if over.Prompt != "" {
		base.Prompt = over.Prompt
	}
	if over.Size != 0 {
		base.Size = over.Size
	}
	if over.MaxTokens != 0 {
		base.MaxTokens = over.MaxTokens
	}
	if over.Temperature != 0 {
		base.Temperature = over.Temperature
	}
	base.CurrentColor = base.CurrentColor || over.CurrentColor
	return base
}

// outputPath treats out as a directory when it exists as one or ends with
// a separator.
func outputPath(out, id string) string {
	if strings.HasSuffix(out, "/") || strings.HasSuffix(out, string(filepath.Separator)) {
		return filepath.Join(out, id+".svg")
	}
	if fi, err := os.Stat(out); err == nil && fi.IsDir() {
		return filepath.Join(out, id+".svg")
	}
	return out
}

func joinKey(prefix, p string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return p
	}
	return prefix + "/" + p
}

// readKeys maps "s" to Skip and "q" to Stop until ctx ends or stdin closes.
func readKeys(ctx context.Context, o *generation.Orchestrator, p *cli.Printer) {
	lines := scanLines(ctx, os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch line {
			case "s", "skip":
				if !o.Skip() {
					p.Debug("nothing to skip")
				}
			case "q", "stop":
				o.Stop()
			}
		}
	}
}

// scanLines sends the trimmed lines of r until r ends or ctx is done. The
// channel is closed when the scanner stops.
func scanLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if ctx.Err() != nil {
				return
			}
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// terminalObserver renders progress and events on the terminal.
func terminalObserver(p *cli.Printer) generation.Observer {
	lastValid := 0
	return generation.ObserverFuncs{
		Progress: func(fraction float64, text string) {
			fmt.Fprintf(p.Err, "\r%s %s", p.Styles.ProgressBar(fraction, 30), p.Styles.Help.Render(text))
			if fraction >= 1 {
				fmt.Fprintln(p.Err)
			}
		},
		AttemptStart: func(ordinal int) {
			lastValid = 0
			p.Debug("attempt %d started", ordinal)
		},
		Chunk: func(_ int, fragment string) {
			if generateFlags.stream {
				fmt.Fprint(p.Err, p.Styles.Help.Render(fragment))
			}
		},
		Preview: func(ordinal int, arts []svgx.Artifact) {
			if len(arts) > lastValid {
				lastValid = len(arts)
				p.Debug("attempt %d: %d valid block(s) so far", ordinal, len(arts))
			}
		},
		AttemptEnd: func(ordinal int, outcome generation.Outcome) {
			if generateFlags.stream {
				fmt.Fprintln(p.Err)
			}
			p.Debug("attempt %d: %s", ordinal, outcome)
		},
		Log: p.Event,
	}
}
