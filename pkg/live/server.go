// Package live serves generation over WebSocket so a browser or editor can
// show SVG previews while the model is still streaming.
//
// Clients send JSON commands ({"type":"generate","request":{...}}, "stop",
// "skip") and receive the observer events of their session. Each connection
// is one session with its own orchestrator; generations within a session run
// one at a time.
//
// With a cache manager configured, GET /models lists the resident models and
// POST /purge wipes every registered cache category.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sharo-jef/webllm-svg/pkg/cache"
	"github.com/sharo-jef/webllm-svg/pkg/generation"
	"github.com/sharo-jef/webllm-svg/pkg/inference"
)

// Config configures a Server.
type Config struct {
	// Options is used for every session's orchestrator.
	Options generation.Options

	// Defaults fills the unset fields of incoming requests.
	Defaults generation.Request

	Metrics *Metrics
	Logger  *slog.Logger

	// Cache, if set, serves /models and /purge. Sessions consult it to tell
	// clients when a model has to be loaded first.
	Cache *cache.Manager

	// OnResult runs after each successful generation, e.g. to save the
	// selected artifact.
	OnResult func(ctx context.Context, res *generation.Result)

	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

// Server accepts live preview sessions.
type Server struct {
	adapter  inference.Adapter
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

// NewServer returns a server generating through adapter.
func NewServer(adapter inference.Adapter, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	if cfg.Options.Logger == nil {
		cfg.Options.Logger = cfg.Logger
	}
	check := cfg.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	return &Server{
		adapter:  adapter,
		cfg:      cfg,
		log:      cfg.Logger,
		upgrader: websocket.Upgrader{CheckOrigin: check},
		sessions: make(map[string]*session),
	}
}

// Handler routes /ws, /metrics and /healthz, plus /models and /purge when
// a cache is configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	mux.Handle("/metrics", promhttp.HandlerFor(s.cfg.Metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	if s.cfg.Cache != nil {
		mux.HandleFunc("GET /models", s.serveModels)
		mux.HandleFunc("POST /purge", s.servePurge)
	}
	return mux
}

type modelsReply struct {
	Models []string `json:"models"`
}

type purgeReply struct {
	Categories []string `json:"categories"`
	Error      string   `json:"error,omitempty"`
}

func (s *Server) serveModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modelsReply{Models: s.cfg.Cache.IDs()})
}

// servePurge clears the cache categories. Live sessions are among them when
// the caller registered CloseSessions, so the purging client's own socket
// may be closed too.
func (s *Server) servePurge(w http.ResponseWriter, r *http.Request) {
	reply := purgeReply{Categories: s.cfg.Cache.Categories()}
	status := http.StatusOK
	if err := s.cfg.Cache.DeleteAll(r.Context()); err != nil {
		s.log.Warn("live: purge failed", "error", err)
		reply.Error = err.Error()
		status = http.StatusInternalServerError
	}
	s.log.Info("live: purged", "categories", len(reply.Categories))
	writeJSON(w, status, reply)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ServeWS upgrades the request and runs a session until the client leaves
// or the server closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("live: upgrade failed", "error", err)
		return
	}
	sess := newSession(s, conn)
	if !s.add(sess) {
		conn.Close()
		return
	}
	defer s.remove(sess)

	s.cfg.Metrics.ActiveSessions.Inc()
	defer s.cfg.Metrics.ActiveSessions.Dec()

	s.log.Info("live: session opened", "session", sess.id, "remote", r.RemoteAddr)
	sess.run()
	s.log.Info("live: session closed", "session", sess.id)
}

func (s *Server) add(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.id] = sess
	return true
}

func (s *Server) remove(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}

// Sessions returns the ids of the open sessions.
func (s *Server) Sessions() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// CloseSessions stops every session's generation and closes the
// connections. The server keeps accepting new sessions.
func (s *Server) CloseSessions() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

// Close refuses new sessions, closes the open ones and waits for them to
// finish.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.CloseSessions()
	s.wg.Wait()
	return nil
}

func (s *Server) withDefaults(req generation.Request) generation.Request {
	d := s.cfg.Defaults
	if req.Model == "" {
		req.Model = d.Model
	}
	if req.Size == 0 {
		req.Size = d.Size
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = d.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = d.Temperature
	}
	req.CurrentColor = req.CurrentColor || d.CurrentColor
	return req
}
