package data

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/wethinkt/go-tailt/internal/tailt"
)

var testBase = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func makeProjects(ids ...string) []tailt.Project {
	out := make([]tailt.Project, len(ids))
	for i, id := range ids {
		out[i] = tailt.Project{
			ID:        id,
			Name:      id,
			Path:      "/work/" + id,
			UpdatedAt: testBase,
		}
	}
	return out
}

func makeSessions(projectID string, ids ...string) []tailt.SessionMeta {
	out := make([]tailt.SessionMeta, len(ids))
	for i, id := range ids {
		out[i] = tailt.SessionMeta{
			ID:          id,
			ProjectID:   projectID,
			FirstPrompt: "prompt for " + id,
			UpdatedAt:   testBase,
		}
	}
	return out
}

func makeEntries(from, to int64) []tailt.Entry {
	var out []tailt.Entry
	for seq := from; seq <= to; seq++ {
		out = append(out, tailt.Entry{
			Seq:       seq,
			UUID:      fmt.Sprintf("uuid-%d", seq),
			Role:      tailt.RoleUser,
			Text:      fmt.Sprintf("entry %d", seq),
			Timestamp: testBase.Add(time.Duration(seq) * time.Second),
		})
	}
	return out
}

func TestStoreApplyEntriesAppends(t *testing.T) {
	s := NewStore()
	s.SetProjects(makeProjects("p1"))
	s.SetSessions("p1", makeSessions("p1", "s1"))

	if ok := s.ApplyEntries("s1", 0, makeEntries(1, 3)); !ok {
		t.Fatal("ApplyEntries(after 0) = false, want true")
	}
	if got := s.LastSeq("s1"); got != 3 {
		t.Errorf("LastSeq = %d, want 3", got)
	}
	if !s.EntriesLoaded("s1") {
		t.Error("EntriesLoaded = false after initial apply")
	}

	// Overlapping batch: seqs 2..5, only 4 and 5 are new.
	if ok := s.ApplyEntries("s1", 1, makeEntries(2, 5)); !ok {
		t.Fatal("ApplyEntries(overlap) = false, want true")
	}
	entries := s.Entries("s1")
	if len(entries) != 5 {
		t.Fatalf("len(entries) = %d, want 5", len(entries))
	}
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entries[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}

	meta, ok := s.Session("s1")
	if !ok {
		t.Fatal("Session(s1) not found")
	}
	if meta.LastSeq != 5 {
		t.Errorf("meta.LastSeq = %d, want 5", meta.LastSeq)
	}
	if meta.EntryCount != 5 {
		t.Errorf("meta.EntryCount = %d, want 5", meta.EntryCount)
	}
}

func TestStoreApplyEntriesRejectsGap(t *testing.T) {
	s := NewStore()
	s.ApplyEntries("s1", 0, makeEntries(1, 3))

	// A batch claiming to follow seq 7 skips 4..7; it must not apply.
	if ok := s.ApplyEntries("s1", 7, makeEntries(8, 9)); ok {
		t.Fatal("ApplyEntries(gap) = true, want false")
	}
	if got := s.LastSeq("s1"); got != 3 {
		t.Errorf("LastSeq = %d after rejected batch, want 3", got)
	}
	if got := len(s.Entries("s1")); got != 3 {
		t.Errorf("len(entries) = %d after rejected batch, want 3", got)
	}
}

func TestStoreApplyEntriesAllDuplicates(t *testing.T) {
	s := NewStore()
	s.ApplyEntries("s1", 0, makeEntries(1, 4))

	if ok := s.ApplyEntries("s1", 0, makeEntries(1, 4)); !ok {
		t.Fatal("ApplyEntries(duplicates) = false, want true")
	}
	if got := len(s.Entries("s1")); got != 4 {
		t.Errorf("len(entries) = %d, want 4", got)
	}
}

func TestStoreSetProjectsEvictsRemoved(t *testing.T) {
	s := NewStore()
	s.SetProjects(makeProjects("p1", "p2"))
	s.SetSessions("p1", makeSessions("p1", "s1"))
	s.SetSessions("p2", makeSessions("p2", "s2"))
	s.ApplyEntries("s2", 0, makeEntries(1, 2))

	droppedP, droppedS := s.SetProjects(makeProjects("p1"))
	if len(droppedP) != 1 || droppedP[0] != "p2" {
		t.Errorf("droppedProjects = %v, want [p2]", droppedP)
	}
	if len(droppedS) != 1 || droppedS[0] != "s2" {
		t.Errorf("droppedSessions = %v, want [s2]", droppedS)
	}
	if got := len(s.Sessions("p2")); got != 0 {
		t.Errorf("Sessions(p2) has %d rows after eviction", got)
	}
	if got := len(s.Entries("s2")); got != 0 {
		t.Errorf("Entries(s2) has %d rows after eviction", got)
	}
	if s.SessionsLoaded("p2") {
		t.Error("SessionsLoaded(p2) = true after eviction")
	}
	if got := len(s.Sessions("p1")); got != 1 {
		t.Errorf("Sessions(p1) = %d rows, want 1 kept", got)
	}
}

func TestStoreSetSessionsEvictsRemoved(t *testing.T) {
	s := NewStore()
	s.SetSessions("p1", makeSessions("p1", "s1", "s2"))
	s.ApplyEntries("s1", 0, makeEntries(1, 2))
	s.ApplyEntries("s2", 0, makeEntries(1, 2))

	dropped := s.SetSessions("p1", makeSessions("p1", "s2"))
	if len(dropped) != 1 || dropped[0] != "s1" {
		t.Fatalf("dropped = %v, want [s1]", dropped)
	}
	if got := len(s.Entries("s1")); got != 0 {
		t.Errorf("Entries(s1) has %d rows after eviction", got)
	}
	if got := len(s.Entries("s2")); got != 2 {
		t.Errorf("Entries(s2) = %d rows, want 2 kept", got)
	}
	if s.EntriesLoaded("s1") {
		t.Error("EntriesLoaded(s1) = true after eviction")
	}
}

func TestStoreDropSessionKeepsMeta(t *testing.T) {
	s := NewStore()
	s.SetSessions("p1", makeSessions("p1", "s1"))
	s.ApplyEntries("s1", 0, makeEntries(1, 3))

	s.DropSession("s1")
	if got := len(s.Entries("s1")); got != 0 {
		t.Errorf("Entries(s1) has %d rows after drop", got)
	}
	if s.EntriesLoaded("s1") {
		t.Error("EntriesLoaded(s1) = true after drop")
	}
	if got := len(s.Sessions("p1")); got != 1 {
		t.Errorf("Sessions(p1) = %d rows after drop, want meta kept", got)
	}
}

func TestStoreDropProjectRemovesRow(t *testing.T) {
	s := NewStore()
	s.SetProjects(makeProjects("p1", "p2"))
	s.SetSessions("p1", makeSessions("p1", "s1"))
	s.ApplyEntries("s1", 0, makeEntries(1, 2))

	dropped := s.DropProject("p1")
	if len(dropped) != 1 || dropped[0] != "s1" {
		t.Errorf("dropped = %v, want [s1]", dropped)
	}
	if _, ok := s.Project("p1"); ok {
		t.Error("Project(p1) still present after drop")
	}
	if got := len(s.Projects()); got != 1 {
		t.Errorf("len(Projects) = %d, want 1", got)
	}
	if got := len(s.Entries("s1")); got != 0 {
		t.Errorf("Entries(s1) has %d rows after drop", got)
	}
}

func TestStoreLoadErrors(t *testing.T) {
	s := NewStore()
	if s.HasLoadErrors() {
		t.Fatal("HasLoadErrors = true on empty store")
	}

	s.SetSessionsError("p1", errors.New("connection refused"))
	msg, ok := s.SessionsError("p1")
	if !ok || msg != "connection refused" {
		t.Errorf("SessionsError = %q, %v", msg, ok)
	}
	if !s.HasLoadErrors() {
		t.Error("HasLoadErrors = false with an error recorded")
	}

	s.SetSessionsError("p1", nil)
	if _, ok := s.SessionsError("p1"); ok {
		t.Error("SessionsError still set after clear")
	}
	if s.HasLoadErrors() {
		t.Error("HasLoadErrors = true after clear")
	}
}

func TestStoreOnChangeRunsOutsideLock(t *testing.T) {
	s := NewStore()
	calls := 0
	s.OnChange(func() {
		calls++
		// Reading the store from a callback must not deadlock.
		_ = s.Projects()
	})

	s.SetProjects(makeProjects("p1"))
	s.ApplyEntries("s1", 0, makeEntries(1, 1))
	if calls < 2 {
		t.Errorf("calls = %d, want at least 2", calls)
	}
}
