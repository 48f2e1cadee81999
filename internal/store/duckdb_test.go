//go:build cgo

package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/wethinkt/go-tailt/internal/tailt"
)

// newTestStore creates a Store in a temp directory with a short flush
// interval so tests observe commits quickly.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.duckdb")
	s, err := New(dbPath, 100, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEntry(uuid string, role tailt.Role, text string) tailt.Entry {
	return tailt.Entry{
		UUID:      uuid,
		Role:      role,
		Timestamp: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Text:      text,
	}
}

// waitForEntryCount polls until the session reports count entries.
func waitForEntryCount(t *testing.T, s *Store, sessionID string, count int) tailt.SessionMeta {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		meta, err := s.GetSession(context.Background(), sessionID)
		if err == nil && meta.EntryCount == count {
			return meta
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetSession: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s never reached %d entries", sessionID, count)
	return tailt.SessionMeta{}
}

func TestAppendAssignsSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := AppendRequest{
		ProjectID:   "-home-ada-src-app",
		ProjectPath: "/home/ada/src/app",
		SessionID:   "sess-1",
		Path:        "/tmp/sess-1.jsonl",
		FirstPrompt: "fix the tests",
		Entries: []tailt.Entry{
			testEntry("u1", tailt.RoleUser, "fix the tests"),
			testEntry("a1", tailt.RoleAssistant, "on it"),
			testEntry("u2", tailt.RoleUser, "thanks"),
		},
	}
	if err := s.Append(ctx, req); err != nil {
		t.Fatalf("Append: %v", err)
	}

	meta := waitForEntryCount(t, s, "sess-1", 3)
	if meta.LastSeq != 3 {
		t.Errorf("LastSeq = %d, want 3", meta.LastSeq)
	}
	if meta.FirstPrompt != "fix the tests" {
		t.Errorf("FirstPrompt = %q", meta.FirstPrompt)
	}

	entries, err := s.EntriesAfter(ctx, "sess-1", 0, 0)
	if err != nil {
		t.Fatalf("EntriesAfter: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d has seq %d, want %d", i, e.Seq, i+1)
		}
	}

	tail, err := s.EntriesAfter(ctx, "sess-1", 2, 0)
	if err != nil {
		t.Fatalf("EntriesAfter(2): %v", err)
	}
	if len(tail) != 1 || tail[0].UUID != "u2" {
		t.Errorf("EntriesAfter(2) = %+v, want just u2", tail)
	}
}

func TestAppendContinuesSequenceAcrossBatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := AppendRequest{
		ProjectID: "p1",
		SessionID: "sess-2",
		Entries: []tailt.Entry{
			testEntry("e1", tailt.RoleUser, "one"),
			testEntry("e2", tailt.RoleAssistant, "two"),
		},
	}
	if err := s.Append(ctx, first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	waitForEntryCount(t, s, "sess-2", 2)

	second := AppendRequest{
		ProjectID: "p1",
		SessionID: "sess-2",
		Entries: []tailt.Entry{
			testEntry("e3", tailt.RoleUser, "three"),
		},
	}
	if err := s.Append(ctx, second); err != nil {
		t.Fatalf("Append: %v", err)
	}
	meta := waitForEntryCount(t, s, "sess-2", 3)
	if meta.LastSeq != 3 {
		t.Errorf("LastSeq = %d, want 3", meta.LastSeq)
	}

	entries, err := s.EntriesAfter(ctx, "sess-2", 2, 0)
	if err != nil {
		t.Fatalf("EntriesAfter: %v", err)
	}
	if len(entries) != 1 || entries[0].Seq != 3 {
		t.Errorf("delta after 2 = %+v, want one entry with seq 3", entries)
	}
}

func TestListProjectsGroupsSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, proj := range []string{"-home-ada-alpha", "-home-ada-alpha", "-home-ada-beta"} {
		req := AppendRequest{
			ProjectID:   proj,
			ProjectPath: DecodeProjectDir(proj),
			SessionID:   fmt.Sprintf("sess-%d", i),
			Entries:     []tailt.Entry{testEntry(fmt.Sprintf("u%d", i), tailt.RoleUser, "hello")},
		}
		if err := s.Append(ctx, req); err != nil {
			t.Fatalf("Append: %v", err)
		}
		waitForEntryCount(t, s, req.SessionID, 1)
	}

	projects, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(projects))
	}

	byID := make(map[string]tailt.Project)
	for _, p := range projects {
		byID[p.ID] = p
	}
	if p := byID["-home-ada-alpha"]; p.SessionCount != 2 || p.Name != "alpha" {
		t.Errorf("alpha project = %+v", p)
	}
	if p := byID["-home-ada-beta"]; p.SessionCount != 1 || p.Name != "beta" {
		t.Errorf("beta project = %+v", p)
	}

	sessions, err := s.ListSessions(ctx, "-home-ada-alpha")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("got %d sessions in alpha, want 2", len(sessions))
	}
}

func TestResetNeverReusesSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, AppendRequest{
		ProjectID: "p1",
		SessionID: "sess-3",
		Entries: []tailt.Entry{
			testEntry("old1", tailt.RoleUser, "old"),
			testEntry("old2", tailt.RoleAssistant, "old"),
			testEntry("old3", tailt.RoleUser, "old"),
		},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	waitForEntryCount(t, s, "sess-3", 3)

	if err := s.Append(ctx, AppendRequest{
		ProjectID: "p1",
		SessionID: "sess-3",
		Reset:     true,
		Entries: []tailt.Entry{
			testEntry("new1", tailt.RoleUser, "new"),
			testEntry("new2", tailt.RoleAssistant, "new"),
		},
	}); err != nil {
		t.Fatalf("Append reset: %v", err)
	}
	meta := waitForEntryCount(t, s, "sess-3", 2)

	// The cursor is monotone for the session's lifetime, so clients
	// holding seq 3 still receive the rewritten entries as a delta.
	if meta.LastSeq != 5 {
		t.Errorf("LastSeq after reset = %d, want 5", meta.LastSeq)
	}
	entries, err := s.EntriesAfter(ctx, "sess-3", 3, 0)
	if err != nil {
		t.Fatalf("EntriesAfter: %v", err)
	}
	if len(entries) != 2 || entries[0].Seq != 4 || entries[1].Seq != 5 {
		t.Errorf("entries after reset = %+v, want seqs 4,5", entries)
	}
}

func TestNotifierReceivesCommittedAppend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	notes := make(chan Notification, 4)
	s.SetNotifier(func(n Notification) { notes <- n })

	if err := s.Append(ctx, AppendRequest{
		ProjectID: "p1",
		SessionID: "sess-4",
		Entries: []tailt.Entry{
			testEntry("n1", tailt.RoleUser, "ping"),
			testEntry("n2", tailt.RoleAssistant, "pong"),
		},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	select {
	case n := <-notes:
		if n.SessionID != "sess-4" || n.LastSeq != 2 {
			t.Errorf("notification = %+v", n)
		}
		if len(n.Entries) != 2 || n.Entries[0].Seq != 1 || n.Entries[1].Seq != 2 {
			t.Errorf("notification entries = %+v, want assigned seqs 1,2", n.Entries)
		}
		// Committed before notified: the delta endpoint must already
		// see these rows.
		entries, err := s.EntriesAfter(ctx, "sess-4", 0, 0)
		if err != nil || len(entries) != 2 {
			t.Errorf("EntriesAfter post-notify = %v entries, err=%v", len(entries), err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestBlocksRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := tailt.Entry{
		UUID:      "b1",
		Role:      tailt.RoleAssistant,
		Timestamp: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		ContentBlocks: []tailt.ContentBlock{
			{Type: "thinking", Thinking: "considering options"},
			{Type: "text", Text: "here is the fix"},
			{Type: "tool_use", ToolName: "edit_file", ToolUseID: "t1"},
		},
		Usage: &tailt.TokenUsage{InputTokens: 12, OutputTokens: 34},
	}
	if err := s.Append(ctx, AppendRequest{ProjectID: "p1", SessionID: "sess-5", Entries: []tailt.Entry{entry}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	waitForEntryCount(t, s, "sess-5", 1)

	entries, err := s.EntriesAfter(ctx, "sess-5", 0, 0)
	if err != nil {
		t.Fatalf("EntriesAfter: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	got := entries[0]
	if len(got.ContentBlocks) != 3 {
		t.Fatalf("blocks = %+v", got.ContentBlocks)
	}
	if got.ContentBlocks[0].Thinking != "considering options" {
		t.Errorf("thinking block lost: %+v", got.ContentBlocks[0])
	}
	if got.ContentBlocks[2].ToolName != "edit_file" {
		t.Errorf("tool block lost: %+v", got.ContentBlocks[2])
	}
	if got.Usage == nil || got.Usage.InputTokens != 12 || got.Usage.OutputTokens != 34 {
		t.Errorf("usage = %+v", got.Usage)
	}
}

func TestIngestOffsetsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.duckdb")
	s, err := New(dbPath, 100, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := s.Append(ctx, AppendRequest{
		ProjectID: "p1",
		SessionID: "sess-6",
		Path:      "/transcripts/p1/sess-6.jsonl",
		Offset:    4096,
		Entries:   []tailt.Entry{testEntry("o1", tailt.RoleUser, "hello")},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	waitForEntryCount(t, s, "sess-6", 1)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(dbPath, 100, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	offsets, err := reopened.IngestOffsets(ctx)
	if err != nil {
		t.Fatalf("IngestOffsets: %v", err)
	}
	pos, ok := offsets["/transcripts/p1/sess-6.jsonl"]
	if !ok || pos.Offset != 4096 || pos.SessionID != "sess-6" {
		t.Errorf("offsets = %+v", offsets)
	}

	// Sequence assignment resumes past the persisted high-water mark.
	if err := reopened.Append(ctx, AppendRequest{
		ProjectID: "p1",
		SessionID: "sess-6",
		Entries:   []tailt.Entry{testEntry("o2", tailt.RoleAssistant, "hi")},
	}); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	meta := waitForEntryCount(t, reopened, "sess-6", 2)
	if meta.LastSeq != 2 {
		t.Errorf("LastSeq after reopen = %d, want 2", meta.LastSeq)
	}
}

func TestSearchSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, AppendRequest{
		ProjectID:   "p1",
		FirstPrompt: "refactor the scheduler",
		SessionID:   "sess-7",
		Entries:     []tailt.Entry{testEntry("s1", tailt.RoleUser, "refactor the scheduler")},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, AppendRequest{
		ProjectID: "p1",
		SessionID: "sess-8",
		Entries:   []tailt.Entry{testEntry("s2", tailt.RoleUser, "write release notes")},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	waitForEntryCount(t, s, "sess-7", 1)
	waitForEntryCount(t, s, "sess-8", 1)

	found, err := s.SearchSessions(ctx, "scheduler", 10)
	if err != nil {
		t.Fatalf("SearchSessions: %v", err)
	}
	if len(found) != 1 || found[0].ID != "sess-7" {
		t.Errorf("search = %+v, want sess-7 only", found)
	}
}
