package tui

import (
	"errors"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"

	"github.com/wethinkt/go-tailt/internal/data"
	"github.com/wethinkt/go-tailt/internal/live"
	"github.com/wethinkt/go-tailt/internal/reconcile"
	"github.com/wethinkt/go-tailt/internal/tailt"
)

// newTestModel wires a model against a real store. The client points at
// an unreachable address; tests never execute the fetch commands.
func newTestModel(t *testing.T, setView func(reconcile.View)) (Model, *data.Store) {
	t.Helper()
	store := data.NewStore()
	client := data.NewClient("http://127.0.0.1:0", "", store, nil)
	engine := reconcile.New(client, reconcile.Config{})
	mgr := live.NewManager(client, engine, func() reconcile.View { return reconcile.View{} }, live.Config{})
	return NewModel(client, mgr, testListConfig(), setView), store
}

func seedStore(store *data.Store) {
	store.SetProjects([]tailt.Project{
		{ID: "p1", Name: "alpha", Path: "/work/alpha", SessionCount: 2},
	})
	store.SetSessions("p1", []tailt.SessionMeta{
		{ID: "s1", ProjectID: "p1", FirstPrompt: "first question", EntryCount: 3, LastSeq: 3},
		{ID: "s2", ProjectID: "p1", FirstPrompt: "second question", EntryCount: 1, LastSeq: 1},
	})
	store.ApplyEntries("s1", 0, makeTranscriptEntries(3))
}

// asModel unwraps the tea.Model interface returned by Update.
func asModel(t *testing.T, tm tea.Model) Model {
	t.Helper()
	m, ok := tm.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", tm)
	}
	return m
}

func TestModelAutoSelectsFirstProject(t *testing.T) {
	m, store := newTestModel(t, nil)
	seedStore(store)

	tm, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	tm, _ = asModel(t, tm).Update(storeChangedMsg{})
	m = asModel(t, tm)

	if m.selectedProjectID != "p1" {
		t.Fatalf("expected p1 auto-selected, got %q", m.selectedProjectID)
	}
	if got := len(m.sessions.visible); got != 2 {
		t.Fatalf("expected 2 session rows, got %d", got)
	}
}

func TestModelEnterOpensSession(t *testing.T) {
	var published []reconcile.View
	m, store := newTestModel(t, func(v reconcile.View) { published = append(published, v) })
	seedStore(store)

	tm, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	tm, _ = asModel(t, tm).Update(storeChangedMsg{})

	// Enter on the project moves focus to the sessions column.
	tm, _ = asModel(t, tm).Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	m = asModel(t, tm)
	if m.activeColumn != colSessions {
		t.Fatalf("expected the sessions column active, got %d", m.activeColumn)
	}

	// Enter on the session opens the transcript.
	tm, _ = m.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	m = asModel(t, tm)
	if m.activeColumn != colTranscript {
		t.Fatalf("expected the transcript column active, got %d", m.activeColumn)
	}
	if m.openSessionID != "s1" {
		t.Fatalf("expected s1 open, got %q", m.openSessionID)
	}
	if !m.transcript.following() {
		t.Fatal("expected a fresh transcript to follow the tail")
	}

	last := published[len(published)-1]
	if last.ProjectID != "p1" || last.SessionID != "s1" {
		t.Fatalf("expected the view publication to track the open session, got %+v", last)
	}
}

func TestModelEscWalksBack(t *testing.T) {
	m, store := newTestModel(t, nil)
	seedStore(store)

	tm, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	tm, _ = asModel(t, tm).Update(storeChangedMsg{})
	tm, _ = asModel(t, tm).Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	tm, _ = asModel(t, tm).Update(tea.KeyPressMsg{Code: tea.KeyEnter})

	tm, _ = asModel(t, tm).Update(tea.KeyPressMsg{Code: tea.KeyEscape})
	m = asModel(t, tm)
	if m.activeColumn != colSessions {
		t.Fatalf("expected esc to return to sessions, got %d", m.activeColumn)
	}

	tm, _ = m.Update(tea.KeyPressMsg{Code: tea.KeyEscape})
	m = asModel(t, tm)
	if m.activeColumn != colProjects {
		t.Fatalf("expected esc to return to projects, got %d", m.activeColumn)
	}
}

func TestModelTabCyclesColumns(t *testing.T) {
	m, store := newTestModel(t, nil)
	seedStore(store)

	tm, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	tm, _ = asModel(t, tm).Update(storeChangedMsg{})

	want := []column{colSessions, colTranscript, colProjects}
	for _, expected := range want {
		tm, _ = asModel(t, tm).Update(tea.KeyPressMsg{Code: tea.KeyTab})
		if got := asModel(t, tm).activeColumn; got != expected {
			t.Fatalf("expected column %d after tab, got %d", expected, got)
		}
	}
}

func TestModelEvictedSessionClosesTranscript(t *testing.T) {
	m, store := newTestModel(t, nil)
	seedStore(store)

	tm, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	tm, _ = asModel(t, tm).Update(storeChangedMsg{})
	tm, _ = asModel(t, tm).Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	tm, _ = asModel(t, tm).Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	if asModel(t, tm).openSessionID != "s1" {
		t.Fatal("expected s1 open before eviction")
	}

	store.DropSession("s1")
	tm, _ = asModel(t, tm).Update(storeChangedMsg{})
	m = asModel(t, tm)

	if m.openSessionID != "" {
		t.Fatalf("expected the open session cleared, got %q", m.openSessionID)
	}
	if m.transcript.sessionID != "" {
		t.Fatal("expected the transcript pane unbound")
	}
	if m.activeColumn != colSessions {
		t.Fatalf("expected focus back on sessions, got %d", m.activeColumn)
	}
}

func TestModelEvictedProjectFallsBack(t *testing.T) {
	m, store := newTestModel(t, nil)
	store.SetProjects([]tailt.Project{
		{ID: "p1", Name: "alpha"},
		{ID: "p2", Name: "beta"},
	})
	store.SetSessions("p1", []tailt.SessionMeta{{ID: "s1", ProjectID: "p1"}})
	store.SetSessions("p2", []tailt.SessionMeta{{ID: "s9", ProjectID: "p2"}})

	tm, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	tm, _ = asModel(t, tm).Update(storeChangedMsg{})
	if asModel(t, tm).selectedProjectID != "p1" {
		t.Fatal("expected p1 selected first")
	}

	store.SetProjects([]tailt.Project{{ID: "p2", Name: "beta"}})
	tm, _ = asModel(t, tm).Update(storeChangedMsg{})
	m = asModel(t, tm)

	if m.selectedProjectID != "p2" {
		t.Fatalf("expected fallback to p2, got %q", m.selectedProjectID)
	}
	if got := len(m.sessions.visible); got != 1 {
		t.Fatalf("expected p2 sessions listed, got %d rows", got)
	}
}

func TestModelRefreshTracksPendingFetch(t *testing.T) {
	m, store := newTestModel(t, nil)
	seedStore(store)

	tm, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	tm, cmd := asModel(t, tm).Update(keyPress('r'))
	if cmd == nil {
		t.Fatal("expected refresh to produce a fetch command")
	}
	if got := asModel(t, tm).pendingFetches; got != 1 {
		t.Fatalf("expected one pending fetch, got %d", got)
	}

	tm, _ = asModel(t, tm).Update(fetchDoneMsg{})
	if got := asModel(t, tm).pendingFetches; got != 0 {
		t.Fatalf("expected pending fetches drained, got %d", got)
	}
}

func TestModelRefreshRetriesFailedEntries(t *testing.T) {
	m, store := newTestModel(t, nil)
	seedStore(store)

	tm, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	tm, _ = asModel(t, tm).Update(storeChangedMsg{})
	tm, _ = asModel(t, tm).Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	tm, _ = asModel(t, tm).Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	if asModel(t, tm).openSessionID != "s1" {
		t.Fatal("expected s1 open before the failure")
	}

	store.SetEntriesError("s1", errors.New("fetch entries: connection refused"))
	tm, cmd := asModel(t, tm).Update(keyPress('r'))
	if cmd == nil {
		t.Fatal("expected refresh to produce fetch commands")
	}
	// One fetch for the project list plus one retry for the open session.
	if got := asModel(t, tm).pendingFetches; got != 2 {
		t.Fatalf("expected two pending fetches, got %d", got)
	}
}

func TestStatusLineStates(t *testing.T) {
	m, store := newTestModel(t, nil)
	seedStore(store)

	m.connState = live.StateConnected
	if got := m.statusLine(); !strings.Contains(got, "live") {
		t.Fatalf("expected the live marker, got %q", got)
	}

	m.connState = live.StateDisconnected
	if got := m.statusLine(); !strings.Contains(got, "offline") {
		t.Fatalf("expected the offline marker, got %q", got)
	}

	m.pendingFetches = 1
	if got := m.statusLine(); !strings.Contains(got, "syncing") {
		t.Fatalf("expected the syncing marker, got %q", got)
	}
	m.pendingFetches = 0

	store.SetEntriesError("s2", errors.New("fetch entries: connection refused"))
	if got := m.statusLine(); !strings.Contains(got, "failed to sync") {
		t.Fatalf("expected the sync warning, got %q", got)
	}
}
