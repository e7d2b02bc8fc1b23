package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sharo-jef/webllm-svg/pkg/cache"
	"github.com/sharo-jef/webllm-svg/pkg/generation"
	"github.com/sharo-jef/webllm-svg/pkg/live"
)

var serveFlags struct {
	addr      string
	attempts  int
	skipFree  bool
	selection string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve live SVG previews over WebSocket",
	Long: `Run the live preview server.

Clients connect to /ws and send JSON commands:
  {"type":"generate","request":{"prompt":"a paper plane","size":32}}
  {"type":"skip"}
  {"type":"stop"}

They receive progress, chunk, preview, attempt and result events.
Prometheus metrics are served on /metrics. Successful results are saved
like 'svgen generate' saves them.

GET /models lists the models known to be cached. POST /purge deletes the
saved artifacts and preferences and closes the open sessions.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "localhost:8080", "listen address")
	f.IntVar(&serveFlags.attempts, "attempts", 0, "attempt budget (default 10)")
	f.BoolVar(&serveFlags.skipFree, "skip-free", false, "skipped attempts do not use the budget")
	f.StringVar(&serveFlags.selection, "select", "last", "block to keep when a reply has several: first, last")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, err := a.orchestratorOptions(serveFlags.attempts, serveFlags.skipFree, serveFlags.selection)
	if err != nil {
		return err
	}
	lg := slog.Default()
	if models, err := a.adapter.ListCached(ctx); err != nil {
		lg.Warn("svgen: list cached models", "error", err)
	} else {
		a.cache.Seed(models...)
	}
	srv := live.NewServer(a.adapter, live.Config{
		Options:  opts,
		Defaults: a.defaults(),
		Logger:   lg,
		Cache:    a.cache,
		OnResult: func(ctx context.Context, res *generation.Result) {
			if _, err := a.artifacts.SaveResult(ctx, res); err != nil {
				lg.Warn("svgen: save artifact", "run", res.RunID, "error", err)
			}
			if err := a.prefs.SetLastModel(ctx, res.Request.Model); err != nil {
				lg.Warn("svgen: save last model", "error", err)
			}
		},
	})

	a.cache.Register(&cache.FuncCategory{Label: "live-sessions", Fn: func(context.Context) error {
		srv.CloseSessions()
		return nil
	}})

	httpSrv := &http.Server{
		Addr:              serveFlags.addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		newPrinter().Success("Listening on http://%s (ws: /ws, metrics: /metrics)", serveFlags.addr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("svgen: shutting down")
		// Hijacked websocket connections are not tracked by Shutdown.
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
