package data

import (
	"testing"
)

func TestCacheRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)
	c.SaveProjects(makeProjects("p1", "p2"))
	c.SaveSessions("p1", makeSessions("p1", "s1"))
	c.SaveEntries("s1", makeEntries(1, 4))

	// A fresh Cache over the same directory sees the blobs.
	s := NewStore()
	NewCache(dir).Restore(s)

	if got := len(s.Projects()); got != 2 {
		t.Errorf("restored %d projects, want 2", got)
	}
	if got := len(s.Sessions("p1")); got != 1 {
		t.Errorf("restored %d sessions, want 1", got)
	}
	if got := len(s.Entries("s1")); got != 4 {
		t.Errorf("restored %d entries, want 4", got)
	}
	if got := s.LastSeq("s1"); got != 4 {
		t.Errorf("LastSeq = %d, want 4", got)
	}
	// Restored content counts as loaded so reconciliation repairs it
	// incrementally instead of refetching.
	if !s.EntriesLoaded("s1") {
		t.Error("EntriesLoaded = false for restored session")
	}
	if !s.SessionsLoaded("p1") {
		t.Error("SessionsLoaded = false for restored project")
	}
}

func TestCacheDeleteEntries(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)
	c.SaveEntries("s1", makeEntries(1, 2))
	c.DeleteEntries("s1")

	s := NewStore()
	c.Restore(s)
	if got := len(s.Entries("s1")); got != 0 {
		t.Errorf("restored %d entries after delete, want 0", got)
	}
}

func TestCacheCorruptBlobDropped(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)
	c.SaveEntries("s1", makeEntries(1, 2))
	if err := c.d.Write(cachePrefixEnt+cacheID("s2"), []byte("{not json")); err != nil {
		t.Fatalf("write corrupt blob: %v", err)
	}

	s := NewStore()
	c.Restore(s)
	if got := len(s.Entries("s1")); got != 2 {
		t.Errorf("good blob lost next to corrupt one: %d entries", got)
	}
	if got := len(s.Entries("s2")); got != 0 {
		t.Errorf("corrupt blob produced %d entries", got)
	}
	if c.d.Has(cachePrefixEnt + cacheID("s2")) {
		t.Error("corrupt blob still present after restore")
	}
}

func TestCacheNilSafe(t *testing.T) {
	var c *Cache
	c.SaveProjects(makeProjects("p1"))
	c.SaveSessions("p1", nil)
	c.SaveEntries("s1", nil)
	c.DeleteSessions("p1")
	c.DeleteEntries("s1")
	c.Restore(NewStore())
}
