package tui

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/wethinkt/go-tailt/internal/tailt"
)

// sessionSource adapts session metadata for fuzzy matching. The match
// text favors what a user remembers about a conversation: the first
// prompt, then the summary, then the ID.
type sessionSource []tailt.SessionMeta

func (s sessionSource) String(i int) string {
	m := s[i]
	return strings.ToLower(m.FirstPrompt + " " + m.Summary + " " + m.ID)
}

func (s sessionSource) Len() int { return len(s) }

// filterSessions returns the indexes of sessions matching query, best
// match first. An empty query matches everything in given order.
func filterSessions(metas []tailt.SessionMeta, query string) []int {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		idx := make([]int, len(metas))
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	matches := fuzzy.FindFrom(query, sessionSource(metas))
	idx := make([]int, len(matches))
	for i, m := range matches {
		idx[i] = m.Index
	}
	return idx
}
