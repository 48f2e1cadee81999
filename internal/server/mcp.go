package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wethinkt/go-tailt/internal/store"
	"github.com/wethinkt/go-tailt/internal/tailt"
	"github.com/wethinkt/go-tailt/internal/tuilog"
)

// MCPServer exposes the transcript store as MCP tools so agents can
// query past sessions.
type MCPServer struct {
	server     *mcp.Server
	store      TranscriptStore
	allowTools map[string]bool
	denyTools  map[string]bool
}

// NewMCPServer creates a new MCP server over the given store. Tools are
// registered by SetToolFilters.
func NewMCPServer(st TranscriptStore) *MCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "tailt",
		Version: "1.0.0",
	}, nil)

	return &MCPServer{
		server: server,
		store:  st,
	}
}

// SetToolFilters configures which tools are allowed or denied and then
// registers the tools.
func (ms *MCPServer) SetToolFilters(allow, deny []string) {
	if len(allow) > 0 {
		ms.allowTools = make(map[string]bool)
		for _, t := range allow {
			ms.allowTools[strings.TrimSpace(t)] = true
		}
	}
	if len(deny) > 0 {
		ms.denyTools = make(map[string]bool)
		for _, t := range deny {
			ms.denyTools[strings.TrimSpace(t)] = true
		}
	}

	ms.registerTools()
}

// isToolAllowed checks if a tool should be registered.
func (ms *MCPServer) isToolAllowed(name string) bool {
	if ms.denyTools != nil && ms.denyTools[name] {
		return false
	}
	if ms.allowTools != nil && !ms.allowTools[name] {
		return false
	}
	return true
}

// registerTools adds allowed tools to the MCP server.
func (ms *MCPServer) registerTools() {
	if ms.isToolAllowed("list_projects") {
		mcp.AddTool(ms.server, &mcp.Tool{
			Name:        "list_projects",
			Description: "List all projects that have ingested sessions",
		}, ms.handleListProjectsTool)
	}

	if ms.isToolAllowed("list_sessions") {
		mcp.AddTool(ms.server, &mcp.Tool{
			Name:        "list_sessions",
			Description: "List sessions for a specific project, newest first",
		}, ms.handleListSessionsTool)
	}

	if ms.isToolAllowed("get_session_entries") {
		mcp.AddTool(ms.server, &mcp.Tool{
			Name:        "get_session_entries",
			Description: "Get session entry content after a sequence cursor, with truncation controls.",
		}, ms.handleGetSessionEntriesTool)
	}

	if ms.isToolAllowed("search_sessions") {
		mcp.AddTool(ms.server, &mcp.Tool{
			Name:        "search_sessions",
			Description: "Search for text across all ingested sessions. Returns matching session summaries.",
		}, ms.handleSearchSessionsTool)
	}

	if ms.isToolAllowed("get_stats") {
		mcp.AddTool(ms.server, &mcp.Tool{
			Name:        "get_stats",
			Description: "Get aggregate store statistics: session and entry counts, database size, uptime.",
		}, ms.handleGetStatsTool)
	}
}

// Tool input/output types

type listProjectsInput struct{}

type projectInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Path         string `json:"path,omitempty"`
	SessionCount int    `json:"session_count"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

type listProjectsOutput struct {
	Projects []projectInfo `json:"projects"`
}

type listSessionsInput struct {
	ProjectID string `json:"project_id"`
}

type sessionInfo struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	FirstPrompt string `json:"first_prompt,omitempty"`
	Summary     string `json:"summary,omitempty"`
	EntryCount  int    `json:"entry_count"`
	LastSeq     int64  `json:"last_seq"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	Model       string `json:"model,omitempty"`
	GitBranch   string `json:"git_branch,omitempty"`
}

type listSessionsOutput struct {
	Sessions []sessionInfo `json:"sessions"`
}

type getSessionEntriesInput struct {
	SessionID        string `json:"session_id"`
	AfterSeq         int64  `json:"after_seq,omitempty"`
	Limit            int    `json:"limit,omitempty"`
	MaxContentLength int    `json:"max_content_length,omitempty"`
	IncludeThinking  bool   `json:"include_thinking,omitempty"`
}

type getSessionEntriesOutput struct {
	SessionID string         `json:"session_id"`
	LastSeq   int64          `json:"last_seq"`
	HasMore   bool           `json:"has_more"`
	Entries   []entryContent `json:"entries"`
}

type entryContent struct {
	Seq           int64            `json:"seq"`
	UUID          string           `json:"uuid"`
	Role          string           `json:"role"`
	Timestamp     string           `json:"timestamp,omitempty"`
	Text          string           `json:"text,omitempty"`
	TextTruncated bool             `json:"text_truncated,omitempty"`
	Thinking      string           `json:"thinking,omitempty"`
	ToolUses      []toolUseInfo    `json:"tool_uses,omitempty"`
	ToolResults   []toolResultInfo `json:"tool_results,omitempty"`
	Model         string           `json:"model,omitempty"`
}

type toolUseInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input,omitempty"`
}

type toolResultInfo struct {
	ToolUseID string `json:"tool_use_id"`
	Result    string `json:"result,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type searchSessionsInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type searchSessionsOutput struct {
	Results []sessionInfo `json:"results"`
}

type getStatsInput struct{}

// Tool handlers

func (ms *MCPServer) handleListProjectsTool(ctx context.Context, req *mcp.CallToolRequest, _ listProjectsInput) (*mcp.CallToolResult, listProjectsOutput, error) {
	projects, err := ms.store.ListProjects(ctx)
	if err != nil {
		return nil, listProjectsOutput{}, err
	}
	infos := make([]projectInfo, len(projects))
	for i, p := range projects {
		infos[i] = projectInfo{ID: p.ID, Name: p.Name, Path: p.Path, SessionCount: p.SessionCount}
		if !p.UpdatedAt.IsZero() {
			infos[i].UpdatedAt = p.UpdatedAt.Format(time.RFC3339)
		}
	}
	output := listProjectsOutput{Projects: infos}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: formatJSON(output)}},
	}, output, nil
}

func (ms *MCPServer) handleListSessionsTool(ctx context.Context, req *mcp.CallToolRequest, input listSessionsInput) (*mcp.CallToolResult, listSessionsOutput, error) {
	if input.ProjectID == "" {
		return nil, listSessionsOutput{}, fmt.Errorf("project_id is required")
	}
	sessions, err := ms.store.ListSessions(ctx, input.ProjectID)
	if err != nil {
		return nil, listSessionsOutput{}, err
	}
	output := listSessionsOutput{Sessions: sessionInfos(sessions)}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: formatJSON(output)}},
	}, output, nil
}

func (ms *MCPServer) handleGetSessionEntriesTool(ctx context.Context, req *mcp.CallToolRequest, input getSessionEntriesInput) (*mcp.CallToolResult, getSessionEntriesOutput, error) {
	if input.SessionID == "" {
		return nil, getSessionEntriesOutput{}, fmt.Errorf("session_id is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	maxLen := input.MaxContentLength
	if maxLen <= 0 {
		maxLen = 500
	}

	meta, err := ms.store.GetSession(ctx, input.SessionID)
	if err != nil {
		return nil, getSessionEntriesOutput{}, err
	}
	entries, err := ms.store.EntriesAfter(ctx, input.SessionID, input.AfterSeq, limit+1)
	if err != nil {
		return nil, getSessionEntriesOutput{}, err
	}
	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	contents := make([]entryContent, len(entries))
	for i, entry := range entries {
		contents[i] = entryToContent(entry, maxLen, input.IncludeThinking)
	}

	output := getSessionEntriesOutput{
		SessionID: input.SessionID,
		LastSeq:   meta.LastSeq,
		HasMore:   hasMore,
		Entries:   contents,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: formatJSON(output)}},
	}, output, nil
}

func (ms *MCPServer) handleSearchSessionsTool(ctx context.Context, req *mcp.CallToolRequest, input searchSessionsInput) (*mcp.CallToolResult, searchSessionsOutput, error) {
	if input.Query == "" {
		return nil, searchSessionsOutput{}, fmt.Errorf("query is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	results, err := ms.store.SearchSessions(ctx, input.Query, limit)
	if err != nil {
		return nil, searchSessionsOutput{}, err
	}
	output := searchSessionsOutput{Results: sessionInfos(results)}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: formatJSON(output)}},
	}, output, nil
}

func (ms *MCPServer) handleGetStatsTool(ctx context.Context, req *mcp.CallToolRequest, _ getStatsInput) (*mcp.CallToolResult, *store.Stats, error) {
	stats, err := ms.store.Stats(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: formatJSON(stats)}},
	}, stats, nil
}

// sessionInfos projects store metadata into the tool output shape.
func sessionInfos(sessions []tailt.SessionMeta) []sessionInfo {
	infos := make([]sessionInfo, len(sessions))
	for i, s := range sessions {
		infos[i] = sessionInfo{
			ID:          s.ID,
			ProjectID:   s.ProjectID,
			FirstPrompt: s.FirstPrompt,
			Summary:     s.Summary,
			EntryCount:  s.EntryCount,
			LastSeq:     s.LastSeq,
			Model:       s.Model,
			GitBranch:   s.GitBranch,
		}
		if !s.UpdatedAt.IsZero() {
			infos[i].UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
		}
	}
	return infos
}

// entryToContent flattens an entry for tool output, truncating long
// bodies.
func entryToContent(entry tailt.Entry, maxLen int, includeThinking bool) entryContent {
	ec := entryContent{
		Seq:   entry.Seq,
		UUID:  entry.UUID,
		Role:  string(entry.Role),
		Model: entry.Model,
	}
	if !entry.Timestamp.IsZero() {
		ec.Timestamp = entry.Timestamp.Format(time.RFC3339)
	}

	text := entry.Text
	for _, block := range entry.ContentBlocks {
		switch block.Type {
		case "text":
			if text == "" {
				text = block.Text
			}
		case "thinking":
			if includeThinking {
				ec.Thinking = tailt.TruncateString(block.Thinking, maxLen)
			}
		case "tool_use":
			input := ""
			if block.ToolInput != nil {
				if b, err := json.Marshal(block.ToolInput); err == nil {
					input = tailt.TruncateString(string(b), maxLen)
				}
			}
			ec.ToolUses = append(ec.ToolUses, toolUseInfo{
				ID:    block.ToolUseID,
				Name:  block.ToolName,
				Input: input,
			})
		case "tool_result":
			ec.ToolResults = append(ec.ToolResults, toolResultInfo{
				ToolUseID: block.ToolUseID,
				Result:    tailt.TruncateString(block.ToolResult, maxLen),
				IsError:   block.IsError,
			})
		}
	}
	ec.Text = tailt.TruncateString(text, maxLen)
	ec.TextTruncated = len(text) > maxLen

	return ec
}

// RunStdio serves MCP over stdin/stdout until ctx is cancelled.
func (ms *MCPServer) RunStdio(ctx context.Context) error {
	return ms.server.Run(ctx, &mcp.LoggingTransport{Transport: &mcp.StdioTransport{}, Writer: os.Stderr})
}

// RunHTTP serves MCP over HTTP using the SSE transport.
func (ms *MCPServer) RunHTTP(ctx context.Context, host string, port int) error {
	sseHandler := mcp.NewSSEHandler(func(req *http.Request) *mcp.Server { return ms.server }, nil)

	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{Addr: addr, Handler: sseHandler}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	tuilog.Log.Info("MCP server listening", "addr", addr)
	return srv.Serve(ln)
}

// Server returns the underlying MCP server.
func (ms *MCPServer) Server() *mcp.Server {
	return ms.server
}

func formatJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
