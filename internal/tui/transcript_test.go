package tui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/wethinkt/go-tailt/internal/config"
	"github.com/wethinkt/go-tailt/internal/tailt"
)

func testListConfig() config.ListConfig {
	return config.ListConfig{
		EstimatedRowHeight: 2,
		LoadBuffer:         10,
		UnloadBuffer:       20,
		NearBottomRows:     2,
		StabilityWindow:    "30ms",
	}
}

func makeTranscriptEntries(n int) []tailt.Entry {
	entries := make([]tailt.Entry, n)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := range entries {
		role := tailt.RoleUser
		if i%2 == 1 {
			role = tailt.RoleAssistant
		}
		entries[i] = tailt.Entry{
			Seq:       int64(i + 1),
			UUID:      fmt.Sprintf("u-%d", i+1),
			Role:      role,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Text:      fmt.Sprintf("msg %d", i+1),
		}
	}
	return entries
}

func keyPress(code rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Text: string(code), Code: code}
}

func TestTranscriptOpensFollowingTail(t *testing.T) {
	m := newTranscriptModel(testListConfig(), defaultBrowseKeyMap())
	m.setSize(60, 12)
	m.open("s1", makeTranscriptEntries(50))

	if !m.following() {
		t.Fatal("expected a freshly opened transcript to follow the tail")
	}

	view := m.view()
	lines := strings.Split(view, "\n")
	if len(lines) != 12 {
		t.Fatalf("expected the view to fill the 12-row viewport, got %d rows", len(lines))
	}
	if !strings.Contains(view, "msg 50") {
		t.Fatalf("expected the newest entry at the bottom, view:\n%s", view)
	}
}

func TestTranscriptViewPadsShortContent(t *testing.T) {
	m := newTranscriptModel(testListConfig(), defaultBrowseKeyMap())
	m.setSize(60, 12)
	m.open("s1", makeTranscriptEntries(2))

	lines := strings.Split(m.view(), "\n")
	if len(lines) != 12 {
		t.Fatalf("expected 12 rows even for short content, got %d", len(lines))
	}
}

func TestTranscriptScrollUpReleasesFollow(t *testing.T) {
	m := newTranscriptModel(testListConfig(), defaultBrowseKeyMap())
	m.setSize(60, 12)
	m.open("s1", makeTranscriptEntries(50))

	m.scrollBy(-5)
	if m.following() {
		t.Fatal("expected scrolling up to release the tail pin")
	}

	m, _ = m.handleKey(tea.KeyPressMsg{Text: "G", Code: 'G'})
	if !m.following() {
		t.Fatal("expected the bottom key to restore following")
	}
	if !strings.Contains(m.view(), "msg 50") {
		t.Fatal("expected the view back at the tail")
	}
}

func TestTranscriptScrollToBottomEdgeRepins(t *testing.T) {
	m := newTranscriptModel(testListConfig(), defaultBrowseKeyMap())
	m.setSize(60, 12)
	m.open("s1", makeTranscriptEntries(30))

	m.scrollBy(-4)
	if m.following() {
		t.Fatal("expected follow released after scrolling up")
	}
	// Scrolling back past the end lands on the bottom edge.
	m.scrollBy(50)
	if !m.following() {
		t.Fatal("expected reaching the bottom to re-enable following")
	}
}

func TestTranscriptAppendStaysPinned(t *testing.T) {
	m := newTranscriptModel(testListConfig(), defaultBrowseKeyMap())
	m.setSize(60, 12)
	m.open("s1", makeTranscriptEntries(30))

	m.setEntries(makeTranscriptEntries(35))
	if !m.following() {
		t.Fatal("expected follow to survive appends")
	}
	if !strings.Contains(m.view(), "msg 35") {
		t.Fatal("expected the appended tail to be visible")
	}
}

func TestTranscriptAppendWhileScrolledBack(t *testing.T) {
	m := newTranscriptModel(testListConfig(), defaultBrowseKeyMap())
	m.setSize(60, 12)
	m.open("s1", makeTranscriptEntries(40))

	m.scrollBy(-30)
	before := m.view()
	m.setEntries(makeTranscriptEntries(45))
	after := m.view()

	if strings.Contains(after, "msg 45") {
		t.Fatal("expected appends below the viewport to stay out of view")
	}
	if before != after {
		t.Fatalf("expected on-screen rows to hold still across an append\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func TestTranscriptStabilitySignal(t *testing.T) {
	m := newTranscriptModel(testListConfig(), defaultBrowseKeyMap())
	m.setSize(60, 12)
	cmd := m.open("s1", makeTranscriptEntries(10))

	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()

	select {
	case msg := <-ch:
		stable, ok := msg.(transcriptStableMsg)
		if !ok {
			t.Fatalf("expected transcriptStableMsg, got %T", msg)
		}
		if stable.SessionID != "s1" {
			t.Fatalf("expected session s1, got %q", stable.SessionID)
		}
		m.markSettled(stable.SessionID)
		if !m.settled {
			t.Fatal("expected the pane to record the settle")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for layout to settle")
	}
}

func TestTranscriptStaleStableMsgIgnored(t *testing.T) {
	m := newTranscriptModel(testListConfig(), defaultBrowseKeyMap())
	m.setSize(60, 12)
	m.open("s1", makeTranscriptEntries(5))
	m.open("s2", makeTranscriptEntries(5))

	m.markSettled("s1")
	if m.settled {
		t.Fatal("expected a settle for a previous session to be ignored")
	}
}

func TestTranscriptCloseForgetsSession(t *testing.T) {
	m := newTranscriptModel(testListConfig(), defaultBrowseKeyMap())
	m.setSize(60, 12)
	m.open("s1", makeTranscriptEntries(5))

	m.closeSession()
	if m.sessionID != "" {
		t.Fatal("expected no bound session after close")
	}
	if got := m.view(); !strings.Contains(got, "No entries yet") {
		t.Fatalf("expected the empty state, got %q", got)
	}
}

func TestEntryKeyIdentity(t *testing.T) {
	withUUID := tailt.Entry{Seq: 7, UUID: "abc"}
	if got := entryKey(&withUUID); got != "abc" {
		t.Fatalf("expected the UUID as key, got %q", got)
	}
	withoutUUID := tailt.Entry{Seq: 7}
	if got := entryKey(&withoutUUID); got != "seq:7" {
		t.Fatalf("expected the seq fallback, got %q", got)
	}
}
