// Package live maintains the client's event stream from the server: a
// dial loop with exponential backoff, a read loop that applies pushed
// entries through the data layer, and a reconciliation trigger on every
// transition into the connected state.
package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/wethinkt/go-tailt/internal/data"
	"github.com/wethinkt/go-tailt/internal/reconcile"
	"github.com/wethinkt/go-tailt/internal/tailt"
	"github.com/wethinkt/go-tailt/internal/tuilog"
)

const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
	dialTimeout           = 10 * time.Second
	controlWriteTimeout   = 5 * time.Second
)

// State is the connection state of the stream.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// wireEvent mirrors the server's stream event.
type wireEvent struct {
	Type      string        `json:"type"`
	ProjectID string        `json:"project_id,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	LastSeq   int64         `json:"last_seq,omitempty"`
	Entries   []tailt.Entry `json:"entries,omitempty"`
}

// controlMessage mirrors the server's client message.
type controlMessage struct {
	Type      string `json:"type"` // "watch" or "unwatch"
	SessionID string `json:"session_id"`
}

const (
	eventChanged = "changed"
	eventEntries = "entries"
)

// Config tunes a Manager. Zero values fall back to defaults.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Manager owns one live stream. It reconnects until stopped, rewatches
// the open session after every reconnect, and runs a reconciliation on
// every transition into connected since data may have moved while the
// stream was down.
type Manager struct {
	client  *data.Client
	engine  *reconcile.Engine
	viewFn  func() reconcile.View
	initial time.Duration
	max     time.Duration

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	watched string
	onState func(State)
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager returns a Manager streaming into client's store. viewFn
// reports the project and session the user has open; it may be nil.
func NewManager(client *data.Client, engine *reconcile.Engine, viewFn func() reconcile.View, cfg Config) *Manager {
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	max := cfg.MaxBackoff
	if max < initial {
		max = defaultMaxBackoff
	}
	return &Manager{
		client:  client,
		engine:  engine,
		viewFn:  viewFn,
		initial: initial,
		max:     max,
	}
}

// OnStateChange registers fn to run on every state transition. The
// callback must not block.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start launches the dial loop. Calling Start on a running Manager is
// a no-op.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()
	go m.run(ctx, done)
}

// Stop tears the stream down and waits for the loop to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Watch switches the watched session. The server pushes full entries
// for the watched session and lightweight change notes for the rest.
// An empty ID stops watching.
func (m *Manager) Watch(sessionID string) {
	m.mu.Lock()
	prev := m.watched
	m.watched = sessionID
	conn := m.conn
	m.mu.Unlock()
	if conn == nil || prev == sessionID {
		return
	}
	go func() {
		if prev != "" {
			m.writeControl(conn, "unwatch", prev)
		}
		if sessionID != "" {
			m.writeControl(conn, "watch", sessionID)
		}
	}()
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	backoff := m.initial
	for {
		m.setState(StateConnecting)
		conn, err := m.dial(ctx)
		if err != nil {
			m.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			tuilog.Log.Warn("live connect failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > m.max {
				backoff = m.max
			}
			continue
		}
		backoff = m.initial

		m.setConn(conn)
		m.setState(StateConnected)
		if sid := m.watchedSession(); sid != "" {
			m.writeControl(conn, "watch", sid)
		}
		go m.reconcile(ctx)

		err = m.readLoop(ctx, conn)
		m.setConn(nil)
		conn.CloseNow()
		m.setState(StateDisconnected)
		if ctx.Err() != nil {
			return
		}
		tuilog.Log.Warn("live stream closed", "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// dial redeems a fresh single-use ticket and opens the stream with it.
func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	ticket, err := m.client.IssueTicket(dctx)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(dctx, m.client.WebSocketURL(ticket), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var ev wireEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			tuilog.Log.Warn("bad live event", "error", err)
			continue
		}
		m.handleEvent(ctx, ev)
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev wireEvent) {
	store := m.client.Store()
	switch ev.Type {
	case eventEntries:
		// A batch carries consecutive seqs ending at LastSeq, so the
		// cursor it continues from is LastSeq minus the batch length.
		afterSeq := ev.LastSeq - int64(len(ev.Entries))
		if store.ApplyEntries(ev.SessionID, afterSeq, ev.Entries) {
			return
		}
		// The batch does not connect to local state: a push was missed
		// while watching, or the session was opened mid-stream. Either
		// way a catch-up fetch repairs it.
		go func() {
			if err := m.client.FetchEntryDelta(ctx, ev.ProjectID, ev.SessionID); err != nil {
				tuilog.Log.Warn("catch-up fetch failed",
					"session", ev.SessionID, "error", err)
			}
		}()
	case eventChanged:
		// Unwatched activity: stale the project's session list so the
		// next view refetches, and keep previously loaded transcripts
		// warm with an incremental catch-up.
		store.MarkSessionsStale(ev.ProjectID)
		if store.EntriesLoaded(ev.SessionID) {
			go func() {
				if err := m.client.FetchEntryDelta(ctx, ev.ProjectID, ev.SessionID); err != nil {
					tuilog.Log.Warn("catch-up fetch failed",
						"session", ev.SessionID, "error", err)
				}
			}()
		}
	default:
		tuilog.Log.Debug("unknown live event", "type", ev.Type)
	}
}

// reconcile brings local state up to date with the server. It runs once
// per transition into connected; the engine coalesces overlapping
// triggers itself.
func (m *Manager) reconcile(ctx context.Context) {
	if m.engine == nil {
		return
	}
	var view reconcile.View
	if m.viewFn != nil {
		view = m.viewFn()
	}
	res, ran := m.engine.Run(ctx, view)
	if !ran {
		return
	}
	if res.HasErrors {
		tuilog.Log.Warn("reconcile finished with failures",
			"projects", len(res.FailedProjects), "sessions", len(res.FailedSessions))
	}
}

func (m *Manager) writeControl(conn *websocket.Conn, typ, sessionID string) {
	msg, err := json.Marshal(controlMessage{Type: typ, SessionID: sessionID})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlWriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		tuilog.Log.Debug("control write failed", "type", typ, "error", err)
	}
}

func (m *Manager) setConn(conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

func (m *Manager) watchedSession() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watched
}

func (m *Manager) setState(st State) {
	m.mu.Lock()
	if m.state == st {
		m.mu.Unlock()
		return
	}
	m.state = st
	fn := m.onState
	m.mu.Unlock()
	tuilog.Log.Info("live state", "state", st.String())
	if fn != nil {
		fn(st)
	}
}
