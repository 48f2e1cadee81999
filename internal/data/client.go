package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wethinkt/go-tailt/internal/tailt"
	"github.com/wethinkt/go-tailt/internal/tuilog"
)

const (
	fetchTimeout = 30 * time.Second

	// entryPageSize is how many entries one catch-up request asks for.
	// The client pages while the server reports more.
	entryPageSize = 500
)

// Client fetches server state over the REST API and applies it into a
// Store. It implements the fetcher contract the reconciliation engine
// drives: fetch methods report which identities now hold content newer
// than local state, drop methods evict what could not be repaired.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	store   *Store
	cache   *Cache
}

// NewClient returns a Client for the server at baseURL. token may be
// empty for an open server and cache may be nil to skip persistence.
func NewClient(baseURL, token string, store *Store, cache *Cache) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: fetchTimeout},
		store:   store,
		cache:   cache,
	}
}

// BaseURL returns the normalized server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Store returns the store this client applies into.
func (c *Client) Store() *Store {
	return c.store
}

// WebSocketURL returns the ws:// or wss:// address of the live event
// stream, with the redeemed ticket attached.
func (c *Client) WebSocketURL(ticket string) string {
	u := "ws" + strings.TrimPrefix(c.baseURL, "http")
	return u + "/api/v1/ws?ticket=" + url.QueryEscape(ticket)
}

// IssueTicket requests a single-use WebSocket auth ticket.
func (c *Client) IssueTicket(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/ws/ticket", nil)
	if err != nil {
		return "", fmt.Errorf("create ticket request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}
	var payload struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode ticket: %w", err)
	}
	return payload.Ticket, nil
}

// FetchProjectList refreshes the project list and returns the IDs of
// projects whose server row is newer than the local one, new projects
// included. Rows that disappeared server side are evicted together
// with their sessions.
func (c *Client) FetchProjectList(ctx context.Context) ([]string, error) {
	var payload struct {
		Projects []tailt.Project `json:"projects"`
	}
	if err := c.getJSON(ctx, "/api/v1/projects", nil, &payload); err != nil {
		c.store.SetProjectsError(err)
		return nil, fmt.Errorf("fetch projects: %w", err)
	}

	local := make(map[string]tailt.Project, len(c.store.Projects()))
	for _, p := range c.store.Projects() {
		local[p.ID] = p
	}
	var changed []string
	for _, p := range payload.Projects {
		lp, ok := local[p.ID]
		if !ok || p.UpdatedAt.After(lp.UpdatedAt) {
			changed = append(changed, p.ID)
		}
	}

	c.store.SetProjectsError(nil)
	droppedProjects, droppedSessions := c.store.SetProjects(payload.Projects)
	c.cache.SaveProjects(payload.Projects)
	for _, pid := range droppedProjects {
		c.cache.DeleteSessions(pid)
	}
	for _, sid := range droppedSessions {
		c.cache.DeleteEntries(sid)
	}
	tuilog.Log.Debug("project list fetched", "projects", len(payload.Projects), "changed", len(changed))
	return changed, nil
}

// FetchSessionList refreshes one project's session list and returns
// the IDs of sessions whose entries are held locally but are behind
// the server. Sessions never loaded locally have nothing to repair and
// are not reported; they load when opened.
func (c *Client) FetchSessionList(ctx context.Context, projectID string) ([]string, error) {
	var payload struct {
		Sessions []tailt.SessionMeta `json:"sessions"`
	}
	path := "/api/v1/projects/" + url.PathEscape(projectID) + "/sessions"
	if err := c.getJSON(ctx, path, nil, &payload); err != nil {
		c.store.SetSessionsError(projectID, err)
		return nil, fmt.Errorf("fetch sessions %s: %w", projectID, err)
	}

	var changed []string
	for _, m := range payload.Sessions {
		if c.store.EntriesLoaded(m.ID) && m.LastSeq > c.store.LastSeq(m.ID) {
			changed = append(changed, m.ID)
		}
	}

	c.store.SetSessionsError(projectID, nil)
	dropped := c.store.SetSessions(projectID, payload.Sessions)
	c.cache.SaveSessions(projectID, payload.Sessions)
	for _, sid := range dropped {
		c.cache.DeleteEntries(sid)
	}
	return changed, nil
}

// FetchEntryDelta catches one session's entries up to the server,
// paging from the local high-water mark until the server reports no
// more.
func (c *Client) FetchEntryDelta(ctx context.Context, projectID, sessionID string) error {
	for {
		after := c.store.LastSeq(sessionID)
		q := url.Values{}
		q.Set("after_seq", strconv.FormatInt(after, 10))
		q.Set("limit", strconv.Itoa(entryPageSize))
		var payload struct {
			AfterSeq int64         `json:"after_seq"`
			LastSeq  int64         `json:"last_seq"`
			HasMore  bool          `json:"has_more"`
			Entries  []tailt.Entry `json:"entries"`
		}
		path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/entries"
		if err := c.getJSON(ctx, path, q, &payload); err != nil {
			c.store.SetEntriesError(sessionID, err)
			return fmt.Errorf("fetch entries %s: %w", sessionID, err)
		}
		c.store.ApplyEntries(sessionID, payload.AfterSeq, payload.Entries)
		if !payload.HasMore || len(payload.Entries) == 0 {
			break
		}
	}
	c.store.SetEntriesError(sessionID, nil)
	c.cache.SaveEntries(sessionID, c.store.Entries(sessionID))
	tuilog.Log.Debug("entry delta applied",
		"project", projectID, "session", sessionID, "last_seq", c.store.LastSeq(sessionID))
	return nil
}

// DropProject evicts a project and its sessions from local state. The
// next successful project list fetch reports it as changed again.
func (c *Client) DropProject(projectID string) {
	dropped := c.store.DropProject(projectID)
	c.cache.DeleteSessions(projectID)
	for _, sid := range dropped {
		c.cache.DeleteEntries(sid)
	}
	tuilog.Log.Debug("project dropped", "project", projectID, "sessions", len(dropped))
}

// DropSession evicts one session's entries from local state.
func (c *Client) DropSession(projectID, sessionID string) {
	c.store.DropSession(sessionID)
	c.cache.DeleteEntries(sessionID)
	tuilog.Log.Debug("session dropped", "project", projectID, "session", sessionID)
}

// EnsureSessions fetches a project's session list unless it is already
// held locally.
func (c *Client) EnsureSessions(ctx context.Context, projectID string) error {
	if c.store.SessionsLoaded(projectID) {
		return nil
	}
	_, err := c.FetchSessionList(ctx, projectID)
	return err
}

// EnsureEntries fetches a session's entries unless they are already
// held locally.
func (c *Client) EnsureEntries(ctx context.Context, projectID, sessionID string) error {
	if c.store.EntriesLoaded(sessionID) {
		return nil
	}
	return c.FetchEntryDelta(ctx, projectID, sessionID)
}

// RefreshProjects refetches the project list regardless of local state.
func (c *Client) RefreshProjects(ctx context.Context) error {
	_, err := c.FetchProjectList(ctx)
	return err
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError turns a non-200 response into an error, preferring the
// server's own error payload over the bare status code.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		if payload.Message != "" {
			return fmt.Errorf("%s: %s", payload.Error, payload.Message)
		}
		return errors.New(payload.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
