package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sharo-jef/webllm-svg/pkg/generation"
	"github.com/sharo-jef/webllm-svg/pkg/svgx"
)

const writeTimeout = 10 * time.Second

type session struct {
	id   string
	srv  *Server
	conn *websocket.Conn
	orch *generation.Orchestrator
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	// stopMu orders stop commands against the end of a generation.
	stopMu    sync.Mutex
	busy      atomic.Bool
	running   sync.WaitGroup
	closeOnce sync.Once
}

func newSession(srv *Server, conn *websocket.Conn) *session {
	id := uuid.NewString()
	lg := srv.log.With("session", id)
	opts := srv.cfg.Options
	opts.Logger = opts.Logger.With("session", id)
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:     id,
		srv:    srv,
		conn:   conn,
		orch:   generation.New(srv.adapter, opts),
		log:    lg,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (ss *session) send(ev Event) error {
	ev.Session = ss.id
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	ss.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ss.conn.WriteJSON(ev)
}

// run reads commands until the connection fails, then stops any running
// generation and waits for it.
func (ss *session) run() {
	defer func() {
		ss.orch.Stop()
		ss.running.Wait()
		ss.close()
	}()

	if err := ss.send(Event{Type: EvSession}); err != nil {
		return
	}
	for {
		var cmd Command
		if err := ss.conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, context.Canceled) {
				ss.log.Debug("live: read failed", "error", err)
			}
			return
		}
		ss.handle(cmd)
	}
}

func (ss *session) handle(cmd Command) {
	switch cmd.Type {
	case CmdGenerate:
		if cmd.Request == nil {
			ss.send(Event{Type: EvError, Error: "generate: missing request"})
			return
		}
		if !ss.busy.CompareAndSwap(false, true) {
			ss.send(Event{Type: EvError, Error: generation.ErrBusy.Error()})
			return
		}
		req := ss.srv.withDefaults(*cmd.Request)
		ss.running.Add(1)
		go ss.generate(req)
	case CmdStop:
		// A stop may reach the orchestrator before the generation it
		// follows is armed; the orchestrator holds it for that call.
		ss.stopMu.Lock()
		if ss.busy.Load() {
			ss.orch.Stop()
		}
		ss.stopMu.Unlock()
	case CmdSkip:
		if !ss.orch.Skip() {
			ss.send(Event{Type: EvError, Error: "skip: no attempt in progress"})
		}
	default:
		ss.send(Event{Type: EvError, Error: "unknown command " + cmd.Type})
	}
}

func (ss *session) generate(req generation.Request) {
	defer ss.running.Done()

	if c := ss.srv.cfg.Cache; c != nil && !c.Resident(req.Model) {
		ss.send(Event{Type: EvLog, Level: generation.LevelInfo.String(), Text: "Loading " + req.Model + " for the first time"})
	}
	m := ss.srv.cfg.Metrics
	obs := generation.Observers(ss.observer(), m.Observer())
	start := time.Now()
	res, err := ss.orch.Generate(ss.ctx, req, obs)
	if res == nil {
		ss.finish()
		ss.send(Event{Type: EvError, Error: err.Error()})
		return
	}
	m.ObserveResult(res, time.Since(start))
	if res.State == generation.StateSucceeded && ss.srv.cfg.OnResult != nil {
		ss.srv.cfg.OnResult(ss.ctx, res)
	}
	// The session accepts the next generate as soon as the client can see
	// this one's result.
	ss.finish()
	ss.send(resultEvent(res, err))
}

// finish marks the session idle. A stop that arrived after the generation
// ended is dropped so it cannot end the next one.
func (ss *session) finish() {
	ss.stopMu.Lock()
	ss.orch.DropStop()
	ss.busy.Store(false)
	ss.stopMu.Unlock()
}

func (ss *session) observer() generation.Observer {
	return generation.ObserverFuncs{
		Progress: func(fraction float64, text string) {
			ss.send(Event{Type: EvProgress, Fraction: fraction, Text: text})
		},
		Chunk: func(ordinal int, fragment string) {
			ss.send(Event{Type: EvChunk, Attempt: ordinal, Text: fragment})
		},
		Preview: func(ordinal int, artifacts []svgx.Artifact) {
			if len(artifacts) > 0 {
				ss.send(Event{Type: EvPreview, Attempt: ordinal, Artifacts: artifacts})
			}
		},
		AttemptStart: func(ordinal int) {
			ss.send(Event{Type: EvAttemptStart, Attempt: ordinal})
		},
		AttemptEnd: func(ordinal int, outcome generation.Outcome) {
			ss.send(Event{Type: EvAttemptEnd, Attempt: ordinal, Outcome: outcome.String()})
		},
		Log: func(ev generation.LogEvent) {
			ss.send(Event{Type: EvLog, Attempt: ev.Attempt, Level: ev.Level.String(), Text: ev.Message})
		},
	}
}

func (ss *session) close() {
	ss.closeOnce.Do(func() {
		ss.orch.Stop()
		ss.cancel()
		ss.writeMu.Lock()
		ss.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
			time.Now().Add(time.Second))
		ss.writeMu.Unlock()
		ss.conn.Close()
	})
}
