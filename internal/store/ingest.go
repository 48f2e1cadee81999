package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wethinkt/go-tailt/internal/tailt"
	"github.com/wethinkt/go-tailt/internal/tuilog"
)

// rawLine is one line of an agent session JSONL file.
type rawLine struct {
	Type       string          `json:"type"`
	UUID       string          `json:"uuid"`
	ParentUUID *string         `json:"parentUuid"`
	Timestamp  string          `json:"timestamp"`
	SessionID  string          `json:"sessionId"`
	GitBranch  string          `json:"gitBranch"`
	CWD        string          `json:"cwd"`
	Summary    string          `json:"summary"`
	Message    json.RawMessage `json:"message"`
}

// rawMessage is the message field of user/assistant lines.
type rawMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"` // string or []rawBlock
	Usage   *rawUsage       `json:"usage"`
}

type rawUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// rawBlock is one content block inside a message.
type rawBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	Name      string          `json:"name"`
	ID        string          `json:"id"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"` // tool_result payload
	IsError   bool            `json:"is_error"`
	Source    *rawSource      `json:"source"`
}

type rawSource struct {
	MediaType string `json:"media_type"`
}

// ParsedLine is the result of parsing one JSONL line. Exactly one of
// Entry and Summary is meaningful; lines of types the store does not
// persist yield neither.
type ParsedLine struct {
	Entry     *tailt.Entry
	Summary   string
	SessionID string
	GitBranch string
}

// ParseLine converts one JSONL line into a transcript entry. Unknown
// line types are skipped, not errors; malformed JSON is an error the
// caller may log and skip.
func ParseLine(line []byte) (ParsedLine, error) {
	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return ParsedLine{}, fmt.Errorf("parse line: %w", err)
	}

	out := ParsedLine{SessionID: raw.SessionID, GitBranch: raw.GitBranch}

	switch raw.Type {
	case "summary":
		out.Summary = raw.Summary
		return out, nil
	case "user", "assistant", "system":
	default:
		// Snapshots, hooks, and future line types are ignored.
		return out, nil
	}

	e := &tailt.Entry{
		UUID:       raw.UUID,
		ParentUUID: raw.ParentUUID,
		GitBranch:  raw.GitBranch,
		CWD:        raw.CWD,
	}
	if raw.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			e.Timestamp = t.UTC()
		}
	}

	var msg rawMessage
	if len(raw.Message) > 0 {
		if err := json.Unmarshal(raw.Message, &msg); err != nil {
			return ParsedLine{}, fmt.Errorf("parse %s message: %w", raw.Type, err)
		}
	}
	e.Model = msg.Model
	if msg.Usage != nil {
		e.Usage = &tailt.TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		}
	}

	switch raw.Type {
	case "system":
		e.Role = tailt.RoleSystem
		e.Text = contentString(msg.Content)
	case "user":
		e.Role = tailt.RoleUser
		text, blocks, onlyResults := parseUserContent(msg.Content)
		e.Text = text
		e.ContentBlocks = blocks
		if onlyResults {
			// A user line carrying nothing but tool results is the
			// tool's turn, not the user's.
			e.Role = tailt.RoleTool
		}
	case "assistant":
		e.Role = tailt.RoleAssistant
		e.ContentBlocks = parseBlocks(msg.Content)
	}

	out.Entry = e
	return out, nil
}

// contentString extracts a plain-string content field.
func contentString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// parseUserContent handles the two user content encodings: a plain
// string, or an array of blocks that may be only tool results.
func parseUserContent(raw json.RawMessage) (text string, blocks []tailt.ContentBlock, onlyResults bool) {
	if len(raw) == 0 {
		return "", nil, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil, false
	}

	blocks = parseBlocks(raw)
	if len(blocks) == 0 {
		return "", nil, false
	}
	onlyResults = true
	for _, b := range blocks {
		if b.Type != "tool_result" {
			onlyResults = false
			break
		}
	}
	return "", blocks, onlyResults
}

// parseBlocks converts a raw content array into domain blocks.
func parseBlocks(raw json.RawMessage) []tailt.ContentBlock {
	var rbs []rawBlock
	if err := json.Unmarshal(raw, &rbs); err != nil {
		return nil
	}

	blocks := make([]tailt.ContentBlock, 0, len(rbs))
	for _, rb := range rbs {
		b := tailt.ContentBlock{Type: rb.Type}
		switch rb.Type {
		case "text":
			b.Text = rb.Text
		case "thinking":
			b.Thinking = rb.Thinking
		case "tool_use":
			b.ToolName = rb.Name
			b.ToolUseID = rb.ID
			if len(rb.Input) > 0 {
				var input any
				if err := json.Unmarshal(rb.Input, &input); err == nil {
					b.ToolInput = input
				}
			}
		case "tool_result":
			b.ToolUseID = rb.ToolUseID
			b.IsError = rb.IsError
			b.ToolResult = toolResultText(rb.Content)
		case "image", "document":
			if rb.Source != nil {
				b.MediaType = rb.Source.MediaType
			}
		default:
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// toolResultText flattens a tool result payload, which may be a string
// or a nested block array, into display text.
func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var rbs []rawBlock
	if err := json.Unmarshal(raw, &rbs); err != nil {
		return ""
	}
	var parts []string
	for _, rb := range rbs {
		if rb.Type == "text" && rb.Text != "" {
			parts = append(parts, rb.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// DecodeProjectDir converts a flattened project directory name back to
// a path, e.g. "-home-ada-src-app" to "/home/ada/src/app". The decode
// is best-effort (dashes inside real names are lost) and is used for
// display only.
func DecodeProjectDir(dirName string) string {
	if dirName == "" || dirName == "-" {
		return ""
	}
	if strings.HasPrefix(dirName, "-") {
		return "/" + strings.ReplaceAll(dirName[1:], "-", "/")
	}
	return strings.ReplaceAll(dirName, "-", "/")
}

// fileState remembers how far into a source file the tailer has read.
type fileState struct {
	offset    int64
	sessionID string
	firstSeen bool // session row already carries a first prompt
}

// Ingester tails session JSONL files into the store, keyed by path.
// The first ingest of a path reads the whole file; later ingests read
// only bytes past the remembered offset. A file that shrank is
// re-ingested from the start with a session reset.
type Ingester struct {
	store *Store

	mu    sync.Mutex
	files map[string]*fileState
}

// NewIngester returns an Ingester writing to store.
func NewIngester(store *Store) *Ingester {
	return &Ingester{
		store: store,
		files: make(map[string]*fileState),
	}
}

// LoadState restores committed tail positions from the store so a
// restarted process does not re-ingest whole files.
func (ing *Ingester) LoadState(ctx context.Context) error {
	offsets, err := ing.store.IngestOffsets(ctx)
	if err != nil {
		return err
	}

	ing.mu.Lock()
	defer ing.mu.Unlock()
	for path, pos := range offsets {
		ing.files[path] = &fileState{
			offset:    pos.Offset,
			sessionID: pos.SessionID,
		}
	}
	return nil
}

// IngestFile reads new content from path and appends parsed entries to
// the store. Returns the number of entries appended.
func (ing *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	ing.mu.Lock()
	st, ok := ing.files[path]
	if !ok {
		st = &fileState{sessionID: sessionIDFromPath(path)}
		ing.files[path] = st
	}
	ing.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	reset := false
	if info.Size() < st.offset {
		tuilog.Log.Warn("ingest: file shrank, re-reading from start",
			"path", sanitizePathForLogging(path), "size", info.Size(), "offset", st.offset)
		st.offset = 0
		st.firstSeen = false
		reset = true
	}
	if info.Size() == st.offset && !reset {
		return 0, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if st.offset > 0 {
		if _, err := f.Seek(st.offset, io.SeekStart); err != nil {
			return 0, fmt.Errorf("seek %s: %w", path, err)
		}
	}

	projectDir := filepath.Base(filepath.Dir(path))
	req := AppendRequest{
		ProjectID:   projectDir,
		ProjectPath: DecodeProjectDir(projectDir),
		SessionID:   st.sessionID,
		Path:        path,
		Reset:       reset,
	}

	reader := bufio.NewReaderSize(f, tailt.DefaultBufferSize)
	consumed := st.offset
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("read %s: %w", path, err)
		}
		// A trailing fragment without a newline is a write in
		// progress; leave it for the next pass.
		if err == io.EOF && (len(line) == 0 || line[len(line)-1] != '\n') {
			break
		}

		consumed += int64(len(line))
		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" {
			continue
		}

		parsed, perr := ParseLine([]byte(trimmed))
		if perr != nil {
			tuilog.Log.Warn("ingest: skipping malformed line", "path", sanitizePathForLogging(path), "error", perr)
			continue
		}
		if parsed.SessionID != "" && st.sessionID != parsed.SessionID && !isUUIDLike(st.sessionID) {
			st.sessionID = parsed.SessionID
			req.SessionID = parsed.SessionID
		}
		if parsed.Summary != "" {
			req.Summary = parsed.Summary
		}
		if parsed.Entry == nil {
			continue
		}

		e := *parsed.Entry
		if e.Model != "" && req.Model == "" {
			req.Model = e.Model
		}
		if e.GitBranch != "" && req.GitBranch == "" {
			req.GitBranch = e.GitBranch
		}
		if !st.firstSeen && e.Role == tailt.RoleUser {
			if text := e.PlainText(); text != "" {
				req.FirstPrompt = tailt.TruncateString(text, 100)
				st.firstSeen = true
			}
		}
		req.Entries = append(req.Entries, e)
	}

	st.offset = consumed
	req.Offset = consumed
	if len(req.Entries) == 0 && req.Summary == "" && !reset {
		return 0, nil
	}

	if err := ing.store.Append(ctx, req); err != nil {
		return 0, err
	}
	return len(req.Entries), nil
}

// Forget drops the tail state for a path, e.g. after deletion.
func (ing *Ingester) Forget(path string) {
	ing.mu.Lock()
	delete(ing.files, path)
	ing.mu.Unlock()
}

// sessionIDFromPath derives the session ID from the file name, the
// layout convention for agent session files.
func sessionIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// isUUIDLike reports whether s looks like a session file name ID, in
// which case the file name wins over in-line session IDs.
func isUUIDLike(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
				return false
			}
		}
	}
	return true
}
