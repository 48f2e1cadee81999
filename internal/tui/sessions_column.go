package tui

import (
	"strings"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/wethinkt/go-tailt/internal/i18n"
	"github.com/wethinkt/go-tailt/internal/tailt"
)

// sessionRowHeight is the rows one session occupies: title plus meta.
const sessionRowHeight = 2

// sessionsModel manages the sessions list (column 2). Unlike the
// projects column it is cursor-based so the fuzzy filter can reorder
// rows by match quality instead of hiding non-matches in place.
type sessionsModel struct {
	metas   []tailt.SessionMeta
	visible []int // indexes into metas, filter applied, best match first
	cursor  int   // position within visible
	offset  int   // first visible row of the window
	width   int
	height  int

	filter    textinput.Model
	filtering bool // filter input has focus
	keys      browseKeyMap
}

func newSessionsModel(keys browseKeyMap) sessionsModel {
	ti := textinput.New()
	ti.Placeholder = i18n.T("tui.filter.placeholder", "Filter sessions...")
	ti.CharLimit = 80
	return sessionsModel{filter: ti, keys: keys}
}

// setItems replaces the session rows, keeping the cursor on the same
// session when it survives the update and the filter applied.
func (m *sessionsModel) setItems(metas []tailt.SessionMeta) {
	selectedID := ""
	if s := m.selectedSession(); s != nil {
		selectedID = s.ID
	}
	m.metas = metas
	m.applyFilter()
	m.moveTo(selectedID)
}

func (m *sessionsModel) applyFilter() {
	m.visible = filterSessions(m.metas, m.filter.Value())
	if m.cursor >= len(m.visible) {
		m.cursor = len(m.visible) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.clampOffset()
}

func (m *sessionsModel) moveTo(sessionID string) {
	if sessionID == "" {
		return
	}
	for pos, idx := range m.visible {
		if m.metas[idx].ID == sessionID {
			m.cursor = pos
			m.clampOffset()
			return
		}
	}
}

func (m *sessionsModel) setSize(w, h int) {
	m.width = w
	m.height = h
	m.clampOffset()
}

// pageRows returns how many sessions fit in the window.
func (m *sessionsModel) pageRows() int {
	h := m.height
	if m.filterActive() {
		h -= 2 // input line plus separator
	}
	return max(1, h/sessionRowHeight)
}

func (m *sessionsModel) clampOffset() {
	page := m.pageRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

// filterActive reports whether a filter is being typed or applied.
func (m *sessionsModel) filterActive() bool {
	return m.filtering || m.filter.Value() != ""
}

func (m *sessionsModel) selectedSession() *tailt.SessionMeta {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return nil
	}
	meta := m.metas[m.visible[m.cursor]]
	return &meta
}

func (m sessionsModel) update(msg tea.Msg) (sessionsModel, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.filtering {
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if m.filtering {
		switch keyMsg.String() {
		case "enter":
			m.filtering = false
			m.filter.Blur()
			return m, nil
		case "esc":
			m.filtering = false
			m.filter.Blur()
			m.filter.SetValue("")
			m.applyFilter()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd
	}

	switch {
	case key.Matches(keyMsg, m.keys.Filter):
		m.filtering = true
		m.filter.Focus()
		return m, textinput.Blink
	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.clampOffset()
		}
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(m.visible)-1 {
			m.cursor++
			m.clampOffset()
		}
	case key.Matches(keyMsg, m.keys.PageUp):
		m.cursor = max(0, m.cursor-m.pageRows())
		m.clampOffset()
	case key.Matches(keyMsg, m.keys.PageDown):
		m.cursor = min(len(m.visible)-1, m.cursor+m.pageRows())
		if m.cursor < 0 {
			m.cursor = 0
		}
		m.clampOffset()
	case key.Matches(keyMsg, m.keys.Top):
		m.cursor = 0
		m.clampOffset()
	case key.Matches(keyMsg, m.keys.Bottom):
		m.cursor = max(0, len(m.visible)-1)
		m.clampOffset()
	case keyMsg.String() == "esc" && m.filter.Value() != "":
		m.filter.SetValue("")
		m.applyFilter()
	}
	return m, nil
}

// sessionTitle is the one-line label for a session row.
func sessionTitle(meta tailt.SessionMeta, width int) string {
	text := meta.FirstPrompt
	if text == "" {
		text = meta.Summary
	}
	if text == "" {
		text = meta.ID
	}
	text = strings.ReplaceAll(text, "\n", " ")
	return ansi.Truncate(text, max(1, width), "…")
}

// sessionMetaLine is the second row: entry count and recency.
func sessionMetaLine(meta tailt.SessionMeta, width int) string {
	line := i18n.Tn("tui.entries.count", "{{.Count}} entry", "{{.Count}} entries", meta.EntryCount)
	if !meta.UpdatedAt.IsZero() {
		line += "  " + i18n.RelativeTimeShort(meta.UpdatedAt)
	}
	if meta.GitBranch != "" {
		line += "  " + meta.GitBranch
	}
	return ansi.Truncate(line, max(1, width), "…")
}

func (m sessionsModel) view() string {
	var b strings.Builder
	if m.filterActive() {
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
	}

	if len(m.visible) == 0 {
		if len(m.metas) == 0 {
			b.WriteString(mutedStyle.Render(i18n.T("tui.shell.noSessions", "No sessions in this project")))
		} else {
			b.WriteString(mutedStyle.Render(i18n.T("tui.filter.noMatches", "No matches")))
		}
		return b.String()
	}

	s := GetStyles()
	contentWidth := max(1, m.width-2)
	end := min(len(m.visible), m.offset+m.pageRows())
	for pos := m.offset; pos < end; pos++ {
		meta := m.metas[m.visible[pos]]
		title := sessionTitle(meta, contentWidth)
		info := sessionMetaLine(meta, contentWidth)
		if pos == m.cursor {
			b.WriteString(s.RowSelected.Render("> " + title))
			b.WriteString("\n")
			b.WriteString("  " + s.RowMeta.Render(info))
		} else {
			b.WriteString(s.RowNormal.Render("  " + title))
			b.WriteString("\n")
			b.WriteString("  " + s.RowMeta.Render(info))
		}
		if pos < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
