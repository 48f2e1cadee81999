// Package store is the server-side transcript store: DuckDB persistence
// with a single-writer batch pipeline, JSONL ingest, and filesystem
// watching for live appends.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/wethinkt/go-tailt/internal/tailt"
	"github.com/wethinkt/go-tailt/internal/tuilog"
)

const (
	// DefaultBatchSize is the entry count that forces a flush.
	DefaultBatchSize = 200
	// DefaultFlushInterval bounds how long an entry waits before commit.
	DefaultFlushInterval = 500 * time.Millisecond
	// DefaultEntryLimit caps EntriesAfter when the caller passes no limit.
	DefaultEntryLimit = 500
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("store: not found")

const transcriptSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    id VARCHAR PRIMARY KEY,
    project_id VARCHAR NOT NULL,
    project_path VARCHAR,
    path VARCHAR,
    first_prompt VARCHAR DEFAULT '',
    summary VARCHAR DEFAULT '',
    git_branch VARCHAR DEFAULT '',
    model VARCHAR DEFAULT '',
    entry_count INTEGER DEFAULT 0,
    last_seq BIGINT DEFAULT 0,
    created_at TIMESTAMP,
    updated_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entries (
    session_id VARCHAR NOT NULL,
    seq BIGINT NOT NULL,
    uuid VARCHAR,
    parent_uuid VARCHAR,
    role VARCHAR,
    timestamp TIMESTAMP,
    model VARCHAR DEFAULT '',
    text VARCHAR DEFAULT '',
    blocks VARCHAR DEFAULT '',
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS ingest_state (
    path VARCHAR PRIMARY KEY,
    session_id VARCHAR,
    byte_offset BIGINT,
    updated_at TIMESTAMP
);
`

// AppendRequest carries parsed entries for one session into the batch
// writer. Entry Seq values are unset; the writer assigns them.
type AppendRequest struct {
	ProjectID   string
	ProjectPath string
	SessionID   string
	Path        string
	FirstPrompt string
	Summary     string
	GitBranch   string
	Model       string
	// Reset drops the session's existing entries before appending,
	// used when the source file shrank under the tailer.
	Reset bool
	// Offset is the tailer's byte position after this request's
	// content; persisted in the same transaction so ingest resumes
	// exactly where the commit left off.
	Offset  int64
	Entries []tailt.Entry
}

// Notification reports a committed append, with assigned sequence
// numbers, so the server can fan it out to watchers.
type Notification struct {
	ProjectID string
	SessionID string
	LastSeq   int64
	Entries   []tailt.Entry
}

// Store persists transcripts in DuckDB. Writes flow through a channel
// into a single goroutine so sequence assignment needs no row locking.
type Store struct {
	db            *sql.DB
	path          string
	startedAt     time.Time
	batchSize     int
	flushInterval time.Duration

	ingestCh chan AppendRequest
	wg       sync.WaitGroup
	done     chan struct{}

	mu      sync.Mutex
	lastSeq map[string]int64
	notify  func(Notification)
}

// Stats holds aggregate store statistics.
type Stats struct {
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	TotalSessions int64     `json:"total_sessions"`
	TotalEntries  int64     `json:"total_entries"`
	DBSizeBytes   int64     `json:"db_size_bytes"`
}

// New opens (or creates) the transcript database and starts the
// background batch writer.
func New(dbPath string, batchSize int, flushInterval time.Duration) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if _, err := db.Exec(transcriptSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize transcript schema: %w", err)
	}

	// Security hardening
	if _, err := db.Exec("SET enable_external_access=false"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set security settings: %w", err)
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	s := &Store{
		db:            db,
		path:          dbPath,
		startedAt:     time.Now(),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		ingestCh:      make(chan AppendRequest, batchSize*2),
		done:          make(chan struct{}),
		lastSeq:       make(map[string]int64),
	}

	if err := s.loadCursors(); err != nil {
		db.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.batchWriter()

	return s, nil
}

// SetNotifier installs the post-commit callback. Call before writes
// start flowing; appends committed earlier are not replayed.
func (s *Store) SetNotifier(fn func(Notification)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// loadCursors reads the per-session sequence high-water marks so
// assignment continues where the previous process stopped.
func (s *Store) loadCursors() error {
	rows, err := s.db.Query("SELECT id, last_seq FROM sessions")
	if err != nil {
		return fmt.Errorf("load cursors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var seq int64
		if err := rows.Scan(&id, &seq); err != nil {
			return fmt.Errorf("scan cursor: %w", err)
		}
		s.lastSeq[id] = seq
	}
	return rows.Err()
}

// Append queues entries for the batch writer.
func (s *Store) Append(ctx context.Context, req AppendRequest) error {
	select {
	case s.ingestCh <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// batchWriter is the single goroutine that drains the ingest channel
// and writes batches to DuckDB.
func (s *Store) batchWriter() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	var batch []AppendRequest

	for {
		select {
		case req := <-s.ingestCh:
			batch = append(batch, req)
			if batchEntryCount(batch) >= s.batchSize {
				s.flushBatch(batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = nil
			}

		case <-s.done:
			// Drain remaining
			for {
				select {
				case req := <-s.ingestCh:
					batch = append(batch, req)
				default:
					if len(batch) > 0 {
						s.flushBatch(batch)
					}
					return
				}
			}
		}
	}
}

func batchEntryCount(batch []AppendRequest) int {
	n := 0
	for _, req := range batch {
		n += len(req.Entries)
	}
	return n
}

// flushBatch writes a batch in a single transaction, then notifies.
func (s *Store) flushBatch(batch []AppendRequest) {
	if len(batch) == 0 {
		return
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		tuilog.Log.Error("Failed to begin batch transaction", "error", err)
		return
	}

	notes := make([]Notification, 0, len(batch))
	for _, req := range batch {
		note, err := s.writeRequest(tx, req)
		if err != nil {
			tuilog.Log.Error("Failed to write request in batch",
				"session_id", req.SessionID, "error", err)
			tx.Rollback()
			return
		}
		notes = append(notes, note)
	}

	if err := tx.Commit(); err != nil {
		tuilog.Log.Error("Failed to commit batch", "error", err)
		return
	}

	tuilog.Log.Debug("Flushed batch",
		"requests", len(batch), "entries", batchEntryCount(batch))

	s.mu.Lock()
	notify := s.notify
	s.mu.Unlock()
	if notify != nil {
		for _, note := range notes {
			notify(note)
		}
	}
}

// writeRequest writes one append within a transaction and returns the
// notification describing it. Sequence numbers survive a rollback
// already advanced; gaps are fine, the cursor only has to be monotone.
func (s *Store) writeRequest(tx *sql.Tx, req AppendRequest) (Notification, error) {
	now := time.Now().UTC()

	if req.Reset {
		if _, err := tx.Exec("DELETE FROM entries WHERE session_id = ?", req.SessionID); err != nil {
			return Notification{}, fmt.Errorf("reset session %s: %w", req.SessionID, err)
		}
		if _, err := tx.Exec("UPDATE sessions SET entry_count = 0 WHERE id = ?", req.SessionID); err != nil {
			return Notification{}, fmt.Errorf("reset session count %s: %w", req.SessionID, err)
		}
	}

	s.mu.Lock()
	seq := s.lastSeq[req.SessionID]
	s.mu.Unlock()

	entries := make([]tailt.Entry, len(req.Entries))
	for i, e := range req.Entries {
		seq++
		e.Seq = seq
		entries[i] = e

		blocks := ""
		if len(e.ContentBlocks) > 0 {
			data, err := json.Marshal(e.ContentBlocks)
			if err != nil {
				return Notification{}, fmt.Errorf("marshal blocks for %s: %w", e.UUID, err)
			}
			blocks = string(data)
		}

		var inTok, outTok int
		if e.Usage != nil {
			inTok = e.Usage.InputTokens
			outTok = e.Usage.OutputTokens
		}

		var parent any
		if e.ParentUUID != nil {
			parent = *e.ParentUUID
		}

		_, err := tx.Exec(`
			INSERT INTO entries
				(session_id, seq, uuid, parent_uuid, role, timestamp, model, text, blocks, input_tokens, output_tokens, ingested_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, req.SessionID, seq, e.UUID, parent, string(e.Role), e.Timestamp, e.Model,
			e.Text, blocks, inTok, outTok, now)
		if err != nil {
			return Notification{}, fmt.Errorf("insert entry %s: %w", e.UUID, err)
		}
	}

	_, err := tx.Exec(`
		INSERT INTO sessions
			(id, project_id, project_path, path, first_prompt, summary, git_branch, model, entry_count, last_seq, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			entry_count = sessions.entry_count + EXCLUDED.entry_count,
			last_seq = EXCLUDED.last_seq,
			updated_at = EXCLUDED.updated_at,
			first_prompt = CASE WHEN sessions.first_prompt = '' THEN EXCLUDED.first_prompt ELSE sessions.first_prompt END,
			summary = CASE WHEN EXCLUDED.summary != '' THEN EXCLUDED.summary ELSE sessions.summary END,
			git_branch = CASE WHEN EXCLUDED.git_branch != '' THEN EXCLUDED.git_branch ELSE sessions.git_branch END,
			model = CASE WHEN EXCLUDED.model != '' THEN EXCLUDED.model ELSE sessions.model END
	`, req.SessionID, req.ProjectID, req.ProjectPath, req.Path, req.FirstPrompt,
		req.Summary, req.GitBranch, req.Model, len(entries), seq, now, now)
	if err != nil {
		return Notification{}, fmt.Errorf("upsert session: %w", err)
	}

	if req.Path != "" {
		_, err := tx.Exec(`
			INSERT INTO ingest_state (path, session_id, byte_offset, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (path) DO UPDATE SET
				session_id = EXCLUDED.session_id,
				byte_offset = EXCLUDED.byte_offset,
				updated_at = EXCLUDED.updated_at
		`, req.Path, req.SessionID, req.Offset, now)
		if err != nil {
			return Notification{}, fmt.Errorf("record ingest offset: %w", err)
		}
	}

	s.mu.Lock()
	s.lastSeq[req.SessionID] = seq
	s.mu.Unlock()

	return Notification{
		ProjectID: req.ProjectID,
		SessionID: req.SessionID,
		LastSeq:   seq,
		Entries:   entries,
	}, nil
}

// ListProjects returns all projects, most recently updated first.
func (s *Store) ListProjects(ctx context.Context) ([]tailt.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, MAX(project_path), COUNT(*), MAX(updated_at)
		FROM sessions
		GROUP BY project_id
		ORDER BY MAX(updated_at) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []tailt.Project
	for rows.Next() {
		var p tailt.Project
		if err := rows.Scan(&p.ID, &p.Path, &p.SessionCount, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Name = tailt.ProjectName(p.Path)
		if p.Name == "" {
			p.Name = p.ID
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ListSessions returns session metadata for one project, most recently
// updated first.
func (s *Store) ListSessions(ctx context.Context, projectID string) ([]tailt.SessionMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, path, first_prompt, summary, git_branch, model, entry_count, last_seq, created_at, updated_at
		FROM sessions
		WHERE project_id = ?
		ORDER BY updated_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []tailt.SessionMeta
	for rows.Next() {
		m, err := scanSessionMeta(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, m)
	}
	return sessions, rows.Err()
}

// GetSession returns metadata for one session, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, sessionID string) (tailt.SessionMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, path, first_prompt, summary, git_branch, model, entry_count, last_seq, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`, sessionID)
	if err != nil {
		return tailt.SessionMeta{}, fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return tailt.SessionMeta{}, err
		}
		return tailt.SessionMeta{}, ErrNotFound
	}
	return scanSessionMeta(rows)
}

func scanSessionMeta(rows *sql.Rows) (tailt.SessionMeta, error) {
	var m tailt.SessionMeta
	if err := rows.Scan(&m.ID, &m.ProjectID, &m.Path, &m.FirstPrompt, &m.Summary,
		&m.GitBranch, &m.Model, &m.EntryCount, &m.LastSeq, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return tailt.SessionMeta{}, fmt.Errorf("scan session: %w", err)
	}
	return m, nil
}

// EntriesAfter returns up to limit entries of a session with Seq above
// afterSeq, in sequence order.
func (s *Store) EntriesAfter(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]tailt.Entry, error) {
	if limit <= 0 {
		limit = DefaultEntryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, uuid, parent_uuid, role, timestamp, model, text, blocks, input_tokens, output_tokens
		FROM entries
		WHERE session_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, sessionID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []tailt.Entry
	for rows.Next() {
		var e tailt.Entry
		var parent sql.NullString
		var role, blocks string
		var inTok, outTok int
		if err := rows.Scan(&e.Seq, &e.UUID, &parent, &role, &e.Timestamp,
			&e.Model, &e.Text, &blocks, &inTok, &outTok); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Role = tailt.Role(role)
		if parent.Valid {
			p := parent.String
			e.ParentUUID = &p
		}
		if blocks != "" {
			if err := json.Unmarshal([]byte(blocks), &e.ContentBlocks); err != nil {
				return nil, fmt.Errorf("unmarshal blocks for seq %d: %w", e.Seq, err)
			}
		}
		if inTok > 0 || outTok > 0 {
			e.Usage = &tailt.TokenUsage{InputTokens: inTok, OutputTokens: outTok}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SearchSessions finds sessions whose entries, prompt, summary, or
// project path match the query, most recently updated first.
func (s *Store) SearchSessions(ctx context.Context, query string, limit int) ([]tailt.SessionMeta, error) {
	if limit <= 0 {
		limit = 50
	}

	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT s.id, s.project_id, s.path, s.first_prompt, s.summary, s.git_branch, s.model,
			s.entry_count, s.last_seq, s.created_at, s.updated_at
		FROM sessions s
		LEFT JOIN entries e ON e.session_id = s.id
		WHERE e.text LIKE ? OR s.first_prompt LIKE ? OR s.summary LIKE ? OR s.project_path LIKE ?
		ORDER BY s.updated_at DESC
		LIMIT ?
	`, pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()

	var sessions []tailt.SessionMeta
	for rows.Next() {
		m, err := scanSessionMeta(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, m)
	}
	return sessions, rows.Err()
}

// IngestOffsets returns the committed tail position of every source
// file, so a restarted ingester resumes instead of re-reading.
func (s *Store) IngestOffsets(ctx context.Context) (map[string]IngestPosition, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, session_id, byte_offset FROM ingest_state")
	if err != nil {
		return nil, fmt.Errorf("query ingest state: %w", err)
	}
	defer rows.Close()

	offsets := make(map[string]IngestPosition)
	for rows.Next() {
		var path string
		var pos IngestPosition
		if err := rows.Scan(&path, &pos.SessionID, &pos.Offset); err != nil {
			return nil, fmt.Errorf("scan ingest state: %w", err)
		}
		offsets[path] = pos
	}
	return offsets, rows.Err()
}

// IngestPosition is a committed tail position of one source file.
type IngestPosition struct {
	SessionID string
	Offset    int64
}

// Stats returns aggregate store statistics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		StartedAt:     s.startedAt,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	}

	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions")
	if err := row.Scan(&stats.TotalSessions); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	row = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries")
	if err := row.Scan(&stats.TotalEntries); err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}

	return stats, nil
}

// Close stops the batch writer and closes the database.
func (s *Store) Close() error {
	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}
