// Package data holds the browse client's local copy of server state:
// an in-memory store applied to by identity, the HTTP client that
// fills it, and a disk cache that seeds it across restarts.
package data

import (
	"sync"

	"github.com/wethinkt/go-tailt/internal/tailt"
)

// Store is the client-side mirror of the server's transcript state.
// Mutations apply by identity: list setters replace rows and evict
// state belonging to identities that disappeared, entry batches append
// past the local high-water mark. All methods are safe for concurrent
// use; change callbacks run after the store's lock is released.
type Store struct {
	mu        sync.RWMutex
	projects  []tailt.Project
	sessions  map[string][]tailt.SessionMeta // keyed by project ID
	entries   map[string][]tailt.Entry       // keyed by session ID, seq ascending
	projectOf map[string]string              // session ID to owning project ID

	projectsLoaded bool
	sessionsLoaded map[string]bool // project ID
	entriesLoaded  map[string]bool // session ID

	loadErrs map[string]string

	cbMu     sync.Mutex
	onChange []func()
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sessions:       make(map[string][]tailt.SessionMeta),
		entries:        make(map[string][]tailt.Entry),
		projectOf:      make(map[string]string),
		sessionsLoaded: make(map[string]bool),
		entriesLoaded:  make(map[string]bool),
		loadErrs:       make(map[string]string),
	}
}

// OnChange registers fn to run after every mutation. Callbacks must not
// block; they typically wake the UI to re-read the store.
func (s *Store) OnChange(fn func()) {
	s.cbMu.Lock()
	s.onChange = append(s.onChange, fn)
	s.cbMu.Unlock()
}

func (s *Store) notify() {
	s.cbMu.Lock()
	cbs := make([]func(), len(s.onChange))
	copy(cbs, s.onChange)
	s.cbMu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}

// Projects returns the project list in server order.
func (s *Store) Projects() []tailt.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tailt.Project, len(s.projects))
	copy(out, s.projects)
	return out
}

// Project looks up one project row by ID.
func (s *Store) Project(id string) (tailt.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.ID == id {
			return p, true
		}
	}
	return tailt.Project{}, false
}

// ProjectsLoaded reports whether the project list has been set at least
// once, from a fetch or from the cache.
func (s *Store) ProjectsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectsLoaded
}

// SetProjects replaces the project list. Sessions and entries belonging
// to projects no longer present are evicted. It returns the IDs of the
// removed projects and of every session dropped with them.
func (s *Store) SetProjects(list []tailt.Project) (droppedProjects, droppedSessions []string) {
	s.mu.Lock()
	keep := make(map[string]bool, len(list))
	for _, p := range list {
		keep[p.ID] = true
	}
	for _, p := range s.projects {
		if !keep[p.ID] {
			droppedProjects = append(droppedProjects, p.ID)
			droppedSessions = append(droppedSessions, s.dropProjectLocked(p.ID)...)
		}
	}
	s.projects = make([]tailt.Project, len(list))
	copy(s.projects, list)
	s.projectsLoaded = true
	s.mu.Unlock()
	s.notify()
	return droppedProjects, droppedSessions
}

// Sessions returns one project's session list in server order.
func (s *Store) Sessions(projectID string) []tailt.SessionMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metas := s.sessions[projectID]
	out := make([]tailt.SessionMeta, len(metas))
	copy(out, metas)
	return out
}

// Session looks up one session's metadata by ID.
func (s *Store) Session(sessionID string) (tailt.SessionMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid, ok := s.projectOf[sessionID]
	if !ok {
		return tailt.SessionMeta{}, false
	}
	for _, m := range s.sessions[pid] {
		if m.ID == sessionID {
			return m, true
		}
	}
	return tailt.SessionMeta{}, false
}

// SessionsLoaded reports whether projectID's session list has been set.
func (s *Store) SessionsLoaded(projectID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionsLoaded[projectID]
}

// MarkSessionsStale clears projectID's session list freshness so the
// next view of it refetches. The rows stay; only the loaded flag drops.
func (s *Store) MarkSessionsStale(projectID string) {
	s.mu.Lock()
	delete(s.sessionsLoaded, projectID)
	s.mu.Unlock()
	s.notify()
}

// SetSessions replaces one project's session list. Entries of sessions
// no longer present are evicted; it returns the removed session IDs.
func (s *Store) SetSessions(projectID string, metas []tailt.SessionMeta) (droppedSessions []string) {
	s.mu.Lock()
	keep := make(map[string]bool, len(metas))
	for _, m := range metas {
		keep[m.ID] = true
	}
	for _, m := range s.sessions[projectID] {
		if !keep[m.ID] {
			droppedSessions = append(droppedSessions, m.ID)
			s.dropSessionLocked(m.ID)
		}
	}
	s.sessions[projectID] = make([]tailt.SessionMeta, len(metas))
	copy(s.sessions[projectID], metas)
	for _, m := range metas {
		s.projectOf[m.ID] = projectID
	}
	s.sessionsLoaded[projectID] = true
	s.mu.Unlock()
	s.notify()
	return droppedSessions
}

// Entries returns one session's locally held entries, seq ascending.
func (s *Store) Entries(sessionID string) []tailt.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[sessionID]
	out := make([]tailt.Entry, len(list))
	copy(out, list)
	return out
}

// LastSeq returns the highest entry seq held locally for sessionID,
// zero when no entries are held.
func (s *Store) LastSeq(sessionID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeqLocked(sessionID)
}

func (s *Store) lastSeqLocked(sessionID string) int64 {
	list := s.entries[sessionID]
	if len(list) == 0 {
		return 0
	}
	return list[len(list)-1].Seq
}

// EntriesLoaded reports whether sessionID's entries hold the full
// history from the start of local tracking, so an incremental fetch
// after LastSeq is enough to catch up.
func (s *Store) EntriesLoaded(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entriesLoaded[sessionID]
}

// ApplyEntries appends a batch that continues from afterSeq. Entries at
// or below the local high-water mark are duplicates and are skipped.
// It returns false without applying anything when the batch starts past
// local state, meaning entries in between were missed and the session
// needs a catch-up fetch instead.
func (s *Store) ApplyEntries(sessionID string, afterSeq int64, batch []tailt.Entry) bool {
	s.mu.Lock()
	last := s.lastSeqLocked(sessionID)
	if afterSeq > last {
		s.mu.Unlock()
		return false
	}
	appended := 0
	for _, e := range batch {
		if e.Seq <= last {
			continue
		}
		s.entries[sessionID] = append(s.entries[sessionID], e)
		last = e.Seq
		appended++
	}
	s.entriesLoaded[sessionID] = true
	if appended > 0 {
		s.bumpSessionLocked(sessionID, last, appended)
	}
	s.mu.Unlock()
	s.notify()
	return true
}

// bumpSessionLocked reflects freshly applied entries in the session row
// and its project row, when those rows are held.
func (s *Store) bumpSessionLocked(sessionID string, lastSeq int64, appended int) {
	pid, ok := s.projectOf[sessionID]
	if !ok {
		return
	}
	metas := s.sessions[pid]
	for i := range metas {
		if metas[i].ID != sessionID {
			continue
		}
		if lastSeq > metas[i].LastSeq {
			metas[i].LastSeq = lastSeq
		}
		metas[i].EntryCount += appended
		if tail := s.entries[sessionID]; len(tail) > 0 {
			if ts := tail[len(tail)-1].Timestamp; ts.After(metas[i].UpdatedAt) {
				metas[i].UpdatedAt = ts
				for j := range s.projects {
					if s.projects[j].ID == pid && ts.After(s.projects[j].UpdatedAt) {
						s.projects[j].UpdatedAt = ts
					}
				}
			}
		}
		return
	}
}

// DropProject evicts a project row together with its sessions and
// entries. It returns the IDs of the sessions dropped with it.
func (s *Store) DropProject(projectID string) (droppedSessions []string) {
	s.mu.Lock()
	droppedSessions = s.dropProjectLocked(projectID)
	for i, p := range s.projects {
		if p.ID == projectID {
			s.projects = append(s.projects[:i], s.projects[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
	return droppedSessions
}

func (s *Store) dropProjectLocked(projectID string) []string {
	metas := s.sessions[projectID]
	dropped := make([]string, 0, len(metas))
	for _, m := range metas {
		dropped = append(dropped, m.ID)
		s.dropSessionLocked(m.ID)
	}
	delete(s.sessions, projectID)
	delete(s.sessionsLoaded, projectID)
	delete(s.loadErrs, errKeySessions+projectID)
	return dropped
}

// DropSession evicts one session's entries. The session row stays; a
// later open triggers a fresh load.
func (s *Store) DropSession(sessionID string) {
	s.mu.Lock()
	s.dropSessionLocked(sessionID)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) dropSessionLocked(sessionID string) {
	delete(s.entries, sessionID)
	delete(s.entriesLoaded, sessionID)
	delete(s.loadErrs, errKeyEntries+sessionID)
	delete(s.projectOf, sessionID)
}

const (
	errKeyProjects = "projects"
	errKeySessions = "sessions/"
	errKeyEntries  = "entries/"
)

// SetProjectsError records a project list load failure; nil clears it.
func (s *Store) SetProjectsError(err error) {
	s.setErr(errKeyProjects, err)
}

// SetSessionsError records a session list load failure for one project;
// nil clears it.
func (s *Store) SetSessionsError(projectID string, err error) {
	s.setErr(errKeySessions+projectID, err)
}

// SetEntriesError records an entry load failure for one session; nil
// clears it.
func (s *Store) SetEntriesError(sessionID string, err error) {
	s.setErr(errKeyEntries+sessionID, err)
}

func (s *Store) setErr(key string, err error) {
	s.mu.Lock()
	if err == nil {
		delete(s.loadErrs, key)
	} else {
		s.loadErrs[key] = err.Error()
	}
	s.mu.Unlock()
	s.notify()
}

// ProjectsError returns the recorded project list load failure.
func (s *Store) ProjectsError() (string, bool) {
	return s.getErr(errKeyProjects)
}

// SessionsError returns the recorded session list load failure for one
// project.
func (s *Store) SessionsError(projectID string) (string, bool) {
	return s.getErr(errKeySessions + projectID)
}

// EntriesError returns the recorded entry load failure for one session.
func (s *Store) EntriesError(sessionID string) (string, bool) {
	return s.getErr(errKeyEntries + sessionID)
}

func (s *Store) getErr(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.loadErrs[key]
	return msg, ok
}

// HasLoadErrors reports whether any load failure is outstanding.
func (s *Store) HasLoadErrors() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.loadErrs) > 0
}
