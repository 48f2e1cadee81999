package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/wethinkt/go-tailt/internal/data"
	"github.com/wethinkt/go-tailt/internal/reconcile"
	"github.com/wethinkt/go-tailt/internal/tailt"
)

// fakeServer is a minimal stand-in for the real server: it issues
// tickets, accepts one stream at a time, records control messages, and
// serves the entries endpoint for catch-up fetches.
type fakeServer struct {
	mu       sync.Mutex
	dials    int
	received []controlMessage
	entries  map[string][]tailt.Entry

	events chan wireEvent
	kick   chan struct{}
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		entries: make(map[string][]tailt.Entry),
		events:  make(chan wireEvent, 8),
		kick:    make(chan struct{}, 1),
	}
}

func (f *fakeServer) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/ws/ticket", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"ticket": "tkt"})
	})
	r.Get("/api/v1/sessions/{sessionID}/entries", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		sid := chi.URLParam(req, "sessionID")
		after, _ := strconv.ParseInt(req.URL.Query().Get("after_seq"), 10, 64)
		var page []tailt.Entry
		for _, e := range f.entries[sid] {
			if e.Seq > after {
				page = append(page, e)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": sid,
			"after_seq":  after,
			"has_more":   false,
			"entries":    page,
		})
	})
	r.Get("/api/v1/ws", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("ticket") == "" {
			http.Error(w, "missing ticket", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, req, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		f.mu.Lock()
		f.dials++
		f.mu.Unlock()

		ctx, cancel := context.WithCancel(req.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				_, msg, err := conn.Read(ctx)
				if err != nil {
					return
				}
				var cm controlMessage
				if json.Unmarshal(msg, &cm) != nil {
					continue
				}
				f.mu.Lock()
				f.received = append(f.received, cm)
				f.mu.Unlock()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-f.kick:
				return
			case ev := <-f.events:
				msg, _ := json.Marshal(ev)
				if conn.Write(ctx, websocket.MessageText, msg) != nil {
					return
				}
			}
		}
	})
	return r
}

func (f *fakeServer) push(ev wireEvent) {
	f.events <- ev
}

func (f *fakeServer) dropConn() {
	f.kick <- struct{}{}
}

func (f *fakeServer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeServer) controls() []controlMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]controlMessage, len(f.received))
	copy(out, f.received)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func seedEntries(from, to int64) []tailt.Entry {
	var out []tailt.Entry
	for seq := from; seq <= to; seq++ {
		out = append(out, tailt.Entry{Seq: seq, UUID: "u", Role: tailt.RoleUser, Text: "x"})
	}
	return out
}

// startManager wires a manager with fast backoff against the fake. The
// returned store is pre-seeded with one project and one loaded session
// holding seqs 1..3.
func startManager(t *testing.T, f *fakeServer, engine *reconcile.Engine) (*Manager, *data.Store) {
	t.Helper()
	ts := httptest.NewServer(f.router())
	t.Cleanup(ts.Close)

	store := data.NewStore()
	store.SetProjects([]tailt.Project{{ID: "p1", Name: "p1"}})
	store.SetSessions("p1", []tailt.SessionMeta{{ID: "s1", ProjectID: "p1", LastSeq: 3}})
	store.ApplyEntries("s1", 0, seedEntries(1, 3))

	client := data.NewClient(ts.URL, "", store, nil)
	m := NewManager(client, engine, nil, Config{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})
	m.Start(context.Background())
	t.Cleanup(m.Stop)
	waitFor(t, "connected", func() bool { return m.State() == StateConnected })
	return m, store
}

func TestManagerStreamsEntriesIntoStore(t *testing.T) {
	f := newFakeServer()
	_, store := startManager(t, f, nil)

	// Seqs 4..5 continue directly from the local mark of 3.
	f.push(wireEvent{
		Type: eventEntries, ProjectID: "p1", SessionID: "s1",
		LastSeq: 5, Entries: seedEntries(4, 5),
	})
	waitFor(t, "entries applied", func() bool { return store.LastSeq("s1") == 5 })
	if got := len(store.Entries("s1")); got != 5 {
		t.Errorf("store holds %d entries, want 5", got)
	}
}

func TestManagerGapTriggersCatchup(t *testing.T) {
	f := newFakeServer()
	f.entries["s1"] = seedEntries(1, 10)
	_, store := startManager(t, f, nil)

	// A batch ending at 10 with two entries follows seq 8; local state
	// ends at 3, so the push cannot apply and a fetch repairs the gap.
	f.push(wireEvent{
		Type: eventEntries, ProjectID: "p1", SessionID: "s1",
		LastSeq: 10, Entries: seedEntries(9, 10),
	})
	waitFor(t, "catch-up fetch", func() bool { return store.LastSeq("s1") == 10 })
	if got := len(store.Entries("s1")); got != 10 {
		t.Errorf("store holds %d entries, want 10", got)
	}
}

func TestManagerChangedStalesListAndCatchesUp(t *testing.T) {
	f := newFakeServer()
	f.entries["s1"] = seedEntries(1, 5)
	_, store := startManager(t, f, nil)

	f.push(wireEvent{Type: eventChanged, ProjectID: "p1", SessionID: "s1", LastSeq: 5})
	waitFor(t, "session list staled", func() bool { return !store.SessionsLoaded("p1") })
	waitFor(t, "loaded session caught up", func() bool { return store.LastSeq("s1") == 5 })
}

func TestManagerWatchSendsControls(t *testing.T) {
	f := newFakeServer()
	m, _ := startManager(t, f, nil)

	m.Watch("s1")
	waitFor(t, "watch control", func() bool { return len(f.controls()) == 1 })
	m.Watch("s2")
	waitFor(t, "switch controls", func() bool { return len(f.controls()) == 3 })

	got := f.controls()
	want := []controlMessage{
		{Type: "watch", SessionID: "s1"},
		{Type: "unwatch", SessionID: "s1"},
		{Type: "watch", SessionID: "s2"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("control[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	// A reconnect rewatches the current session on the new stream.
	f.dropConn()
	waitFor(t, "rewatch after reconnect", func() bool {
		cs := f.controls()
		return len(cs) == 4 && cs[3] == controlMessage{Type: "watch", SessionID: "s2"}
	})
}

type countingFetcher struct {
	projectFetches atomic.Int32
}

func (f *countingFetcher) FetchProjectList(ctx context.Context) ([]string, error) {
	f.projectFetches.Add(1)
	return nil, nil
}
func (f *countingFetcher) FetchSessionList(ctx context.Context, projectID string) ([]string, error) {
	return nil, nil
}
func (f *countingFetcher) FetchEntryDelta(ctx context.Context, projectID, sessionID string) error {
	return nil
}
func (f *countingFetcher) DropProject(projectID string)            {}
func (f *countingFetcher) DropSession(projectID, sessionID string) {}

func TestManagerReconcilesOnEveryConnect(t *testing.T) {
	f := newFakeServer()
	fetcher := &countingFetcher{}
	engine := reconcile.New(fetcher, reconcile.Config{})
	m, _ := startManager(t, f, engine)

	waitFor(t, "first reconcile", func() bool { return fetcher.projectFetches.Load() >= 1 })

	f.dropConn()
	waitFor(t, "reconnect", func() bool { return f.dialCount() >= 2 && m.State() == StateConnected })
	waitFor(t, "second reconcile", func() bool { return fetcher.projectFetches.Load() >= 2 })
}

func TestManagerStop(t *testing.T) {
	f := newFakeServer()
	m, _ := startManager(t, f, nil)

	m.Stop()
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State after Stop = %v, want StateDisconnected", got)
	}
	// Stop is idempotent.
	m.Stop()
}
