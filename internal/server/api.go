package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wethinkt/go-tailt/internal/store"
	"github.com/wethinkt/go-tailt/internal/tailt"
)

// API response types

// ProjectsResponse lists projects known to the store.
type ProjectsResponse struct {
	Projects []tailt.Project `json:"projects"`
}

// SessionsResponse lists sessions of one project.
type SessionsResponse struct {
	Sessions []tailt.SessionMeta `json:"sessions"`
}

// EntriesResponse carries one session's entries after a cursor, plus
// the session's current high-water mark.
type EntriesResponse struct {
	SessionID string        `json:"session_id"`
	AfterSeq  int64         `json:"after_seq"`
	LastSeq   int64         `json:"last_seq"`
	HasMore   bool          `json:"has_more"`
	Entries   []tailt.Entry `json:"entries"`
}

// SearchResponse lists sessions matching a text query.
type SearchResponse struct {
	Results []tailt.SessionMeta `json:"results"`
}

// TicketResponse carries a freshly issued WebSocket auth ticket.
type TicketResponse struct {
	Ticket string `json:"ticket"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ErrorResponse is an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, err string, msg string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: msg})
}

// handleListProjects returns all projects.
// @Summary List projects
// @Description Returns every project that has at least one ingested session
// @Tags projects
// @Produce json
// @Success 200 {object} ProjectsResponse
// @Failure 401 {object} ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 500 {object} ErrorResponse
// @Router /projects [get]
// @Security BearerAuth
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_projects_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ProjectsResponse{Projects: projects})
}

// handleListSessions returns the sessions of one project.
// @Summary List sessions for a project
// @Description Returns all sessions belonging to a project, newest first
// @Tags sessions
// @Produce json
// @Param projectID path string true "Project ID"
// @Success 200 {object} SessionsResponse
// @Failure 400 {object} ErrorResponse "Bad Request - missing project ID"
// @Failure 401 {object} ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 500 {object} ErrorResponse
// @Router /projects/{projectID}/sessions [get]
// @Security BearerAuth
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "missing_project_id", "Project ID is required")
		return
	}
	decoded, err := url.PathUnescape(projectID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_project_id", err.Error())
		return
	}

	sessions, err := s.store.ListSessions(r.Context(), decoded)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_sessions_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions})
}

// handleGetSession returns one session's metadata.
// @Summary Get session metadata
// @Description Returns a session's metadata including its entry high-water mark
// @Tags sessions
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} tailt.SessionMeta
// @Failure 401 {object} ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 404 {object} ErrorResponse "Not Found - unknown session"
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{sessionID} [get]
// @Security BearerAuth
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing_session_id", "Session ID is required")
		return
	}

	meta, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "Unknown session: "+sessionID)
			return
		}
		writeError(w, http.StatusInternalServerError, "get_session_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// handleGetEntries returns a session's entries after a cursor.
// @Summary Get session entries after a cursor
// @Description Returns entries with seq greater than after_seq, in seq order. Clients page forward by passing the last seq they received.
// @Tags sessions
// @Produce json
// @Param sessionID path string true "Session ID"
// @Param after_seq query int false "Return entries with seq greater than this (default 0)"
// @Param limit query int false "Maximum entries to return (default 500)"
// @Success 200 {object} EntriesResponse
// @Failure 400 {object} ErrorResponse "Bad Request - malformed cursor"
// @Failure 401 {object} ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 404 {object} ErrorResponse "Not Found - unknown session"
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{sessionID}/entries [get]
// @Security BearerAuth
func (s *Server) handleGetEntries(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing_session_id", "Session ID is required")
		return
	}

	var afterSeq int64
	if v := r.URL.Query().Get("after_seq"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_after_seq", "after_seq must be a non-negative integer")
			return
		}
		afterSeq = n
	}

	limit := store.DefaultEntryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	ctx := r.Context()
	meta, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "Unknown session: "+sessionID)
			return
		}
		writeError(w, http.StatusInternalServerError, "get_session_failed", err.Error())
		return
	}

	// Fetch one past the limit so has_more needs no second query.
	entries, err := s.store.EntriesAfter(ctx, sessionID, afterSeq, limit+1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get_entries_failed", err.Error())
		return
	}
	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	lastSeq := meta.LastSeq
	if n := len(entries); n > 0 && entries[n-1].Seq > lastSeq {
		lastSeq = entries[n-1].Seq
	}

	writeJSON(w, http.StatusOK, EntriesResponse{
		SessionID: sessionID,
		AfterSeq:  afterSeq,
		LastSeq:   lastSeq,
		HasMore:   hasMore,
		Entries:   entries,
	})
}

// handleSearch searches session text.
// @Summary Search sessions
// @Description Returns sessions whose entries, prompts, or summaries contain the query text
// @Tags search
// @Produce json
// @Param q query string true "Search query text"
// @Param limit query int false "Maximum sessions to return (default 50)"
// @Success 200 {object} SearchResponse
// @Failure 400 {object} ErrorResponse "Bad Request - missing query"
// @Failure 401 {object} ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 500 {object} ErrorResponse
// @Router /search [get]
// @Security BearerAuth
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := s.store.SearchSessions(r.Context(), query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// handleStats returns aggregate store statistics.
// @Summary Get store statistics
// @Description Returns session and entry counts, database size, and server uptime
// @Tags stats
// @Produce json
// @Success 200 {object} store.Stats
// @Failure 401 {object} ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 500 {object} ErrorResponse
// @Router /stats [get]
// @Security BearerAuth
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleHealth returns a health check response.
// @Summary Health check
// @Description Returns ok when the server is up. Never requires authentication.
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	})
}
