package tui

import "github.com/wethinkt/go-tailt/internal/live"

// storeChangedMsg is pumped into the program whenever the local data
// store mutates, from any goroutine. The model re-reads the store.
type storeChangedMsg struct{}

// connStateMsg reports a live channel state transition.
type connStateMsg struct {
	State live.State
}

// fetchDoneMsg is returned by fetch commands. The store already holds
// both the data and any load error; the message only wakes the loop.
type fetchDoneMsg struct {
	Err error
}

// transcriptStableMsg fires once the open transcript's layout has been
// quiet for the stability window.
type transcriptStableMsg struct {
	SessionID string
}
