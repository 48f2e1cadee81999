package server

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const defaultTicketTTL = 30 * time.Second

// TicketStore manages short-lived, single-use tickets for WebSocket auth.
// Clients that cannot set an Authorization header on the ws dial exchange
// their bearer token for a ticket, then connect with the ticket as a
// query parameter.
type TicketStore struct {
	mu      sync.Mutex
	tickets map[string]time.Time
	ttl     time.Duration
}

// NewTicketStore creates a new ticket store.
func NewTicketStore() *TicketStore {
	return &TicketStore{
		tickets: make(map[string]time.Time),
		ttl:     defaultTicketTTL,
	}
}

// Issue creates a new single-use ticket.
func (ts *TicketStore) Issue() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	ticket := hex.EncodeToString(b)

	ts.mu.Lock()
	ts.tickets[ticket] = time.Now().Add(ts.ttl)
	ts.mu.Unlock()

	return ticket
}

// Redeem validates and burns a ticket. Returns true if valid.
func (ts *TicketStore) Redeem(ticket string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	expiresAt, ok := ts.tickets[ticket]
	if !ok {
		return false
	}
	delete(ts.tickets, ticket)

	return !time.Now().After(expiresAt)
}

// Cleanup removes expired tickets.
func (ts *TicketStore) Cleanup() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for k, v := range ts.tickets {
		if now.After(v) {
			delete(ts.tickets, k)
		}
	}
}
