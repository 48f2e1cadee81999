package server

import (
	"testing"
	"time"
)

func TestTicketStoreIssueAndRedeem(t *testing.T) {
	ts := NewTicketStore()

	ticket := ts.Issue()
	if ticket == "" {
		t.Fatal("expected non-empty ticket")
	}

	// Redeem should succeed
	if !ts.Redeem(ticket) {
		t.Error("expected redeem to succeed")
	}

	// Second redeem should fail (burned)
	if ts.Redeem(ticket) {
		t.Error("expected second redeem to fail")
	}
}

func TestTicketStoreUnknown(t *testing.T) {
	ts := NewTicketStore()

	if ts.Redeem("not-a-ticket") {
		t.Error("expected unknown ticket to fail")
	}
}

func TestTicketStoreExpired(t *testing.T) {
	ts := NewTicketStore()
	ts.ttl = 1 * time.Millisecond // override for test

	ticket := ts.Issue()
	time.Sleep(5 * time.Millisecond)

	if ts.Redeem(ticket) {
		t.Error("expected expired ticket to fail")
	}
}

func TestTicketStoreCleanup(t *testing.T) {
	ts := NewTicketStore()
	ts.ttl = 1 * time.Millisecond

	ts.Issue()
	ts.Issue()
	time.Sleep(5 * time.Millisecond)

	ts.Cleanup()

	ts.mu.Lock()
	count := len(ts.tickets)
	ts.mu.Unlock()

	if count != 0 {
		t.Errorf("expected 0 tickets after cleanup, got %d", count)
	}
}
