// Package reconcile repairs client transcript state after the live
// update channel connects or reconnects. A run diffs locally cached
// projects and sessions against the server, refetches what changed with
// the user's current view first, retries failing branches a fixed
// number of times, and finally evicts whatever could not be repaired,
// sparing the view the user is looking at.
package reconcile

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wethinkt/go-tailt/internal/tuilog"
)

// DefaultMaxAttempts is how many passes run over a still-failing branch
// before it is evicted.
const DefaultMaxAttempts = 5

// maxConcurrentFetches bounds the background fan-out so a reconnect
// burst does not flood the server.
const maxConcurrentFetches = 4

// View identifies the project and session the user currently has open.
// Either field may be empty.
type View struct {
	ProjectID string
	SessionID string
}

// SessionRef names one session within a project.
type SessionRef struct {
	ProjectID string
	SessionID string
}

// Fetcher is the data-layer contract the engine drives. Fetch methods
// apply their results into shared client state by identity and report
// which identities now hold content newer than local state. Drop
// methods evict state that could not be repaired.
type Fetcher interface {
	// FetchProjectList refreshes the project list and returns the IDs
	// of projects with content newer than local state.
	FetchProjectList(ctx context.Context) ([]string, error)
	// FetchSessionList refreshes one project's session list and returns
	// the IDs of sessions with content newer than local state.
	FetchSessionList(ctx context.Context, projectID string) ([]string, error)
	// FetchEntryDelta catches one session's entries up to the server.
	FetchEntryDelta(ctx context.Context, projectID, sessionID string) error
	// DropProject evicts a project and its sessions from local state.
	DropProject(projectID string)
	// DropSession evicts one session's entries from local state.
	DropSession(projectID, sessionID string)
}

// Result reports what a run could not repair.
type Result struct {
	HasErrors      bool
	FailedProjects map[string]bool
	FailedSessions map[SessionRef]bool
}

// Config tunes an Engine.
type Config struct {
	// MaxAttempts is the total number of passes over a failing branch,
	// the first included. Values below 1 fall back to the default.
	MaxAttempts int
}

// Engine runs at most one reconciliation at a time. Triggers that
// arrive while a run is active are coalesced into a single follow-up
// run with the latest requested view.
type Engine struct {
	fetcher     Fetcher
	maxAttempts int

	mu      sync.Mutex
	running bool
	rerun   bool
	next    View
}

// New returns an Engine over the given data layer.
func New(fetcher Fetcher, cfg Config) *Engine {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = DefaultMaxAttempts
	}
	return &Engine{fetcher: fetcher, maxAttempts: attempts}
}

// Run reconciles local state against the server. Call it once per
// transition into the connected state, the very first included, since
// data may have loaded through the initial fetch path before the live
// channel came up.
//
// If a run is already active, Run returns immediately with ok=false and
// the active run repeats once more with the latest requested view.
func (e *Engine) Run(ctx context.Context, view View) (Result, bool) {
	e.mu.Lock()
	if e.running {
		e.rerun = true
		e.next = view
		e.mu.Unlock()
		tuilog.Log.Debug("reconcile trigger coalesced", "project", view.ProjectID, "session", view.SessionID)
		return Result{}, false
	}
	e.running = true
	e.mu.Unlock()

	var res Result
	for {
		res = e.pass(ctx, view)

		e.mu.Lock()
		if e.rerun {
			e.rerun = false
			view = e.next
			e.mu.Unlock()
			continue
		}
		e.running = false
		e.mu.Unlock()
		return res, true
	}
}

// pass performs one reconciliation: the diff wave, the retry waves over
// whatever is still failing, and the final eviction.
func (e *Engine) pass(ctx context.Context, view View) Result {
	defer tuilog.Log.Timed("reconcile pass")()

	// Pending work, shrunk as branches succeed. Only the still-failing
	// subset is retried; successful branches have already advanced their
	// freshness markers and fetch empty deltas if touched again.
	pendingProjectList := true
	pendingLists := make(map[string]bool)
	pendingDeltas := make(map[SessionRef]bool)

	// The current view is always refreshed, changed or not.
	if view.ProjectID != "" {
		pendingLists[view.ProjectID] = true
		if view.SessionID != "" {
			pendingDeltas[SessionRef{ProjectID: view.ProjectID, SessionID: view.SessionID}] = true
		}
	}
	current := SessionRef{ProjectID: view.ProjectID, SessionID: view.SessionID}

	var mu sync.Mutex
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if pendingProjectList {
			changed, err := e.fetcher.FetchProjectList(ctx)
			if err != nil {
				tuilog.Log.Warn("project list fetch failed", "attempt", attempt, "error", err)
			} else {
				pendingProjectList = false
				for _, id := range changed {
					pendingLists[id] = true
				}
			}
		}

		// The visible view recovers first: its session list and entry
		// delta are awaited before anything else is dispatched.
		if view.ProjectID != "" && pendingLists[view.ProjectID] {
			changed, err := e.fetcher.FetchSessionList(ctx, view.ProjectID)
			if err != nil {
				tuilog.Log.Warn("session list fetch failed", "project", view.ProjectID, "attempt", attempt, "error", err)
			} else {
				delete(pendingLists, view.ProjectID)
				for _, sid := range changed {
					pendingDeltas[SessionRef{ProjectID: view.ProjectID, SessionID: sid}] = true
				}
			}
		}
		if view.SessionID != "" && pendingDeltas[current] {
			if err := e.fetcher.FetchEntryDelta(ctx, current.ProjectID, current.SessionID); err != nil {
				tuilog.Log.Warn("entry delta fetch failed", "project", current.ProjectID, "session", current.SessionID, "attempt", attempt, "error", err)
			} else {
				delete(pendingDeltas, current)
			}
		}

		// Remaining session lists fan out concurrently; each failure is
		// isolated to its branch and stays pending.
		var lists []string
		for pid := range pendingLists {
			if pid != view.ProjectID {
				lists = append(lists, pid)
			}
		}
		var lg errgroup.Group
		lg.SetLimit(maxConcurrentFetches)
		for _, pid := range lists {
			lg.Go(func() error {
				changed, err := e.fetcher.FetchSessionList(ctx, pid)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					tuilog.Log.Warn("session list fetch failed", "project", pid, "attempt", attempt, "error", err)
					return nil
				}
				delete(pendingLists, pid)
				for _, sid := range changed {
					pendingDeltas[SessionRef{ProjectID: pid, SessionID: sid}] = true
				}
				return nil
			})
		}
		lg.Wait()

		// Entry deltas after the lists so sessions discovered this
		// attempt join the same wave.
		var refs []SessionRef
		mu.Lock()
		for ref := range pendingDeltas {
			if ref != current {
				refs = append(refs, ref)
			}
		}
		mu.Unlock()
		var dg errgroup.Group
		dg.SetLimit(maxConcurrentFetches)
		for _, ref := range refs {
			dg.Go(func() error {
				if err := e.fetcher.FetchEntryDelta(ctx, ref.ProjectID, ref.SessionID); err != nil {
					tuilog.Log.Warn("entry delta fetch failed", "project", ref.ProjectID, "session", ref.SessionID, "attempt", attempt, "error", err)
					return nil
				}
				mu.Lock()
				delete(pendingDeltas, ref)
				mu.Unlock()
				return nil
			})
		}
		dg.Wait()

		if !pendingProjectList && len(pendingLists) == 0 && len(pendingDeltas) == 0 {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	res := Result{
		FailedProjects: make(map[string]bool),
		FailedSessions: make(map[SessionRef]bool),
	}
	res.HasErrors = pendingProjectList
	for pid := range pendingLists {
		res.HasErrors = true
		res.FailedProjects[pid] = true
	}
	for ref := range pendingDeltas {
		res.HasErrors = true
		res.FailedSessions[ref] = true
	}

	if ctx.Err() != nil {
		// Shutdown or reconnect churn: keep local state, the next
		// connected transition runs again anyway.
		return res
	}

	// Branches that stayed broken through every attempt are evicted so
	// navigation refetches them from scratch. The current view is left
	// in place; yanking it would empty the screen under the user.
	for pid := range res.FailedProjects {
		if pid != view.ProjectID {
			e.fetcher.DropProject(pid)
		}
	}
	for ref := range res.FailedSessions {
		if ref != current {
			e.fetcher.DropSession(ref.ProjectID, ref.SessionID)
		}
	}
	if res.HasErrors {
		tuilog.Log.Error("reconcile finished with unrepaired branches",
			"failed_projects", len(res.FailedProjects), "failed_sessions", len(res.FailedSessions))
	}
	return res
}
