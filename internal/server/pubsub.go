package server

import (
	"sync"

	"github.com/wethinkt/go-tailt/internal/store"
	"github.com/wethinkt/go-tailt/internal/tailt"
	"github.com/wethinkt/go-tailt/internal/tuilog"
)

// Event types pushed over the WebSocket stream.
const (
	// EventChanged is a lightweight signal that a session has new
	// entries. Every connected client receives it.
	EventChanged = "changed"
	// EventEntries carries the appended entries themselves. Only clients
	// watching the session receive it, in place of the changed signal.
	EventEntries = "entries"
)

// Event is a server-to-client WebSocket message.
type Event struct {
	Type      string        `json:"type"`
	ProjectID string        `json:"project_id,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	LastSeq   int64         `json:"last_seq,omitempty"`
	Entries   []tailt.Entry `json:"entries,omitempty"`
}

// PubSub fans committed appends out to WebSocket subscribers. Each
// subscriber always hears that a session changed; sessions it watches
// arrive as full entry batches instead.
type PubSub struct {
	mu   sync.RWMutex
	subs []*Subscriber
}

// Subscriber is one connected client's event stream plus the set of
// sessions it is watching.
type Subscriber struct {
	ch     chan Event
	closed bool

	mu      sync.Mutex
	watched map[string]bool
}

// NewPubSub creates a new pub/sub instance.
func NewPubSub() *PubSub {
	return &PubSub{}
}

// Subscribe registers a new subscriber. Call the returned function to
// unsubscribe and close the event channel.
func (ps *PubSub) Subscribe() (*Subscriber, func()) {
	sub := &Subscriber{
		ch:      make(chan Event, 64),
		watched: make(map[string]bool),
	}

	ps.mu.Lock()
	ps.subs = append(ps.subs, sub)
	ps.mu.Unlock()

	unsub := func() {
		ps.mu.Lock()
		defer ps.mu.Unlock()

		for i, s := range ps.subs {
			if s == sub {
				ps.subs = append(ps.subs[:i], ps.subs[i+1:]...)
				if !s.closed {
					s.closed = true
					close(s.ch)
				}
				break
			}
		}
	}

	return sub, unsub
}

// Events returns the subscriber's event channel. It is closed on
// unsubscribe.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Watch adds a session to the subscriber's watch set.
func (s *Subscriber) Watch(sessionID string) {
	s.mu.Lock()
	s.watched[sessionID] = true
	s.mu.Unlock()
}

// Unwatch removes a session from the subscriber's watch set.
func (s *Subscriber) Unwatch(sessionID string) {
	s.mu.Lock()
	delete(s.watched, sessionID)
	s.mu.Unlock()
}

func (s *Subscriber) watching(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watched[sessionID]
}

// Publish delivers a committed append to every subscriber. Slow
// consumers whose buffers are full have the event dropped; the client
// recovers on its next pull.
func (ps *PubSub) Publish(note store.Notification) {
	changed := Event{
		Type:      EventChanged,
		ProjectID: note.ProjectID,
		SessionID: note.SessionID,
		LastSeq:   note.LastSeq,
	}

	// Holding the read lock through the sends keeps unsubscribe from
	// closing a channel mid-publish.
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, sub := range ps.subs {
		ev := changed
		if sub.watching(note.SessionID) {
			ev.Type = EventEntries
			ev.Entries = note.Entries
		}
		select {
		case sub.ch <- ev:
		default:
			wsDroppedTotal.Inc()
			tuilog.Log.Warn("Dropping event for slow WebSocket subscriber",
				"session_id", note.SessionID, "type", ev.Type)
		}
	}
}
