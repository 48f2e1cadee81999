// Package tailt defines the transcript model shared by the tailt server
// and its clients: projects, sessions, and the entries inside a session.
package tailt

import (
	"strings"
	"time"
)

// Role identifies the type of message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
	RoleSummary   Role = "summary"
)

// ContentBlock represents a piece of content within a message.
// Different block types populate different fields.
type ContentBlock struct {
	Type string `json:"type"`

	// Text block
	Text string `json:"text,omitempty"`

	// Thinking block
	Thinking string `json:"thinking,omitempty"`

	// Tool use block
	ToolUseID string `json:"tool_use_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	ToolInput any    `json:"tool_input,omitempty"`

	// Tool result block
	ToolResult string `json:"tool_result,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	// Image/document block. Media bodies are not shipped to clients;
	// MediaType is enough to render a placeholder.
	MediaType string `json:"media_type,omitempty"`
}

// Entry represents a single turn in a conversation.
//
// Seq is the per-session ingest cursor: assigned by the server in arrival
// order, strictly increasing within a session, and never reused. Clients
// catch up by asking for entries after the highest Seq they hold.
type Entry struct {
	Seq        int64     `json:"seq"`
	UUID       string    `json:"uuid"`
	ParentUUID *string   `json:"parent_uuid,omitempty"`
	Role       Role      `json:"role"`
	Timestamp  time.Time `json:"timestamp"`

	// Content (one of these will be set)
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`
	Text          string         `json:"text,omitempty"`

	// Metadata
	Model     string      `json:"model,omitempty"`
	Usage     *TokenUsage `json:"usage,omitempty"`
	GitBranch string      `json:"git_branch,omitempty"`
	CWD       string      `json:"cwd,omitempty"`
}

// TokenUsage represents token consumption for an entry.
type TokenUsage struct {
	InputTokens              int `json:"input_tokens,omitempty"`
	OutputTokens             int `json:"output_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// PlainText returns the first human-readable text in the entry, used for
// previews and row-height estimation.
func (e Entry) PlainText() string {
	if e.Text != "" {
		return e.Text
	}
	for _, b := range e.ContentBlocks {
		switch {
		case b.Text != "":
			return b.Text
		case b.Thinking != "":
			return b.Thinking
		case b.ToolResult != "":
			return b.ToolResult
		}
	}
	return ""
}

// SessionMeta contains metadata about a session without loading entries.
type SessionMeta struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Path        string    `json:"path,omitempty"` // source file on the serving host
	FirstPrompt string    `json:"first_prompt,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	EntryCount  int       `json:"entry_count"`
	LastSeq     int64     `json:"last_seq"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	GitBranch   string    `json:"git_branch,omitempty"`
	Model       string    `json:"model,omitempty"`
}

// Session represents a complete conversation session.
type Session struct {
	Meta    SessionMeta `json:"meta"`
	Entries []Entry     `json:"entries"`
}

// Project represents a working directory containing multiple sessions.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Path         string    `json:"path,omitempty"`
	SessionCount int       `json:"session_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EntryDelta is the incremental catch-up unit: the entries of one session
// with Seq > AfterSeq, plus the new high-water mark.
type EntryDelta struct {
	SessionID string  `json:"session_id"`
	AfterSeq  int64   `json:"after_seq"`
	LastSeq   int64   `json:"last_seq"`
	Entries   []Entry `json:"entries,omitempty"`
}

// ProjectName derives a display name from a project path: the last path
// element, or the path itself when it has none.
func ProjectName(path string) string {
	p := strings.TrimRight(path, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 && i+1 < len(p) {
		return p[i+1:]
	}
	if p == "" {
		return path
	}
	return p
}
