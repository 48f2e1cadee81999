package data

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/peterbourgon/diskv/v3"

	"github.com/wethinkt/go-tailt/internal/tailt"
	"github.com/wethinkt/go-tailt/internal/tuilog"
)

const (
	cacheKeyProjects = "projects"
	cachePrefixSess  = "sessions/"
	cachePrefixEnt   = "entries/"
)

// Cache persists a snapshot of fetched server state so browse has
// something to show on startup before the first fetch lands. Blobs are
// written after successful fetches and read once via Restore. A nil
// Cache is valid and does nothing.
type Cache struct {
	d *diskv.Diskv
}

// NewCache returns a Cache rooted at dir.
func NewCache(dir string) *Cache {
	return &Cache{d: diskv.New(diskv.Options{
		BasePath:          dir,
		AdvancedTransform: cacheTransform,
		InverseTransform:  cacheInverseTransform,
		CacheSizeMax:      1024 * 1024, // 1MB
	})}
}

func cacheTransform(key string) *diskv.PathKey {
	parts := strings.Split(key, "/")
	last := len(parts) - 1
	return &diskv.PathKey{
		Path:     parts[:last],
		FileName: parts[last] + ".json",
	}
}

func cacheInverseTransform(pk *diskv.PathKey) string {
	name := strings.TrimSuffix(pk.FileName, ".json")
	if len(pk.Path) == 0 {
		return name
	}
	return strings.Join(pk.Path, "/") + "/" + name
}

// cacheID makes an ID safe to use as a path element.
func cacheID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func uncacheID(enc string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// SaveProjects writes the project list snapshot.
func (c *Cache) SaveProjects(list []tailt.Project) {
	c.write(cacheKeyProjects, list)
}

// SaveSessions writes one project's session list snapshot.
func (c *Cache) SaveSessions(projectID string, metas []tailt.SessionMeta) {
	c.write(cachePrefixSess+cacheID(projectID), metas)
}

// SaveEntries writes one session's entries snapshot.
func (c *Cache) SaveEntries(sessionID string, entries []tailt.Entry) {
	c.write(cachePrefixEnt+cacheID(sessionID), entries)
}

// DeleteSessions removes one project's session list snapshot.
func (c *Cache) DeleteSessions(projectID string) {
	c.erase(cachePrefixSess + cacheID(projectID))
}

// DeleteEntries removes one session's entries snapshot.
func (c *Cache) DeleteEntries(sessionID string) {
	c.erase(cachePrefixEnt + cacheID(sessionID))
}

// Restore loads the cached snapshot into s. Restored entries count as
// loaded local state, so reconciliation repairs them instead of
// refetching from scratch.
func (c *Cache) Restore(s *Store) {
	if c == nil || c.d == nil {
		return
	}
	var list []tailt.Project
	if c.read(cacheKeyProjects, &list) && len(list) > 0 {
		s.SetProjects(list)
	}
	for key := range c.d.KeysPrefix(cachePrefixSess, nil) {
		pid, ok := uncacheID(strings.TrimPrefix(key, cachePrefixSess))
		if !ok {
			continue
		}
		var metas []tailt.SessionMeta
		if c.read(key, &metas) {
			s.SetSessions(pid, metas)
		}
	}
	restored := 0
	for key := range c.d.KeysPrefix(cachePrefixEnt, nil) {
		sid, ok := uncacheID(strings.TrimPrefix(key, cachePrefixEnt))
		if !ok {
			continue
		}
		var entries []tailt.Entry
		if c.read(key, &entries) && len(entries) > 0 {
			s.ApplyEntries(sid, 0, entries)
			restored++
		}
	}
	tuilog.Log.Debug("cache restored",
		"projects", len(list), "sessions_with_entries", restored)
}

func (c *Cache) write(key string, v any) {
	if c == nil || c.d == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		tuilog.Log.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.d.Write(key, data); err != nil {
		tuilog.Log.Warn("cache write failed", "key", key, "error", err)
	}
}

// read unmarshals one blob. Unreadable blobs are erased so they do not
// wedge every startup.
func (c *Cache) read(key string, out any) bool {
	if c == nil || c.d == nil {
		return false
	}
	data, err := c.d.Read(key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		tuilog.Log.Warn("cache blob corrupt, dropping", "key", key, "error", err)
		_ = c.d.Erase(key)
		return false
	}
	return true
}

func (c *Cache) erase(key string) {
	if c == nil || c.d == nil {
		return
	}
	_ = c.d.Erase(key)
}
