package tui

import (
	"strconv"
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"

	"github.com/wethinkt/go-tailt/internal/config"
	"github.com/wethinkt/go-tailt/internal/i18n"
	"github.com/wethinkt/go-tailt/internal/tailt"
	"github.com/wethinkt/go-tailt/internal/tuilog"
	"github.com/wethinkt/go-tailt/internal/vlist"
)

// maxMeasurePasses bounds the measure loop per frame. A measurement can
// shift the render range, which exposes new unmeasured items; with
// hysteresis the range settles within a couple of passes.
const maxMeasurePasses = 4

// transcriptModel is the virtualized transcript pane (column 3). It
// renders only the engine's render range, pads the rest with spacer
// rows, and reports measured line counts back as item heights.
type transcriptModel struct {
	eng      *vlist.Engine
	renderer *entryRenderer
	keys     browseKeyMap

	sessionID string
	entries   []tailt.Entry
	itemKeys  []string
	rendered  map[string][]string

	width   int
	height  int
	settled bool
	watcher *vlist.StabilityWatcher
}

func newTranscriptModel(listCfg config.ListConfig, keys browseKeyMap) transcriptModel {
	cfg := vlist.DefaultConfig()
	if listCfg.EstimatedRowHeight > 0 {
		cfg.EstimatedItemHeight = listCfg.EstimatedRowHeight
	}
	if listCfg.LoadBuffer > 0 {
		cfg.LoadBuffer = listCfg.LoadBuffer
	}
	if listCfg.UnloadBuffer > 0 {
		cfg.UnloadBuffer = listCfg.UnloadBuffer
	}
	if listCfg.NearBottomRows > 0 {
		cfg.NearBottomThreshold = listCfg.NearBottomRows
	}
	cfg.StabilityWindow = listCfg.StabilityWindowDuration()

	eng, err := vlist.New(cfg)
	if err != nil {
		tuilog.Log.Warn("transcript list config rejected, using defaults", "error", err)
		eng, _ = vlist.New(vlist.DefaultConfig())
	}
	return transcriptModel{
		eng:      eng,
		keys:     keys,
		rendered: make(map[string][]string),
	}
}

// entryKey is the stable identity of an entry in the virtual list.
func entryKey(e *tailt.Entry) string {
	if e.UUID != "" {
		return e.UUID
	}
	return "seq:" + strconv.FormatInt(e.Seq, 10)
}

// open binds the pane to a session and starts following its tail. The
// returned command resolves once the initial layout settles.
func (m *transcriptModel) open(sessionID string, entries []tailt.Entry) tea.Cmd {
	m.sessionID = sessionID
	m.rendered = make(map[string][]string)
	m.settled = false
	m.setEntries(entries)
	m.eng.EnableStickToBottom()
	m.measure()

	// Earlier watchers are left to fire on their own; their messages
	// carry a session ID that no longer matches and are dropped.
	m.watcher = m.eng.WatchStability()
	return waitStabilityCmd(sessionID, m.watcher)
}

// closeSession unbinds the pane.
func (m *transcriptModel) closeSession() {
	m.sessionID = ""
	m.entries = nil
	m.itemKeys = nil
	m.rendered = make(map[string][]string)
	m.watcher = nil
	m.eng.SetKeys(nil)
	m.eng.Flush()
}

// setEntries replaces the entry slice for the bound session. Identity
// keys keep measured heights for entries that survive.
func (m *transcriptModel) setEntries(entries []tailt.Entry) {
	m.entries = entries
	keys := make([]string, len(entries))
	for i := range entries {
		keys[i] = entryKey(&entries[i])
	}
	m.itemKeys = keys
	m.eng.SetKeys(keys)
	m.eng.Flush()
	m.measure()
}

func (m *transcriptModel) setSize(w, h int) {
	if w != m.width {
		m.width = w
		m.renderer = newEntryRenderer(max(20, w))
		// Widths changed, so every cached render and height is stale.
		m.rendered = make(map[string][]string)
	}
	m.height = h
	m.eng.SetViewportHeight(h)
	m.measure()
}

// measure renders unmeasured items in the render range and feeds their
// line counts back to the engine.
func (m *transcriptModel) measure() {
	if m.renderer == nil || m.width <= 0 || len(m.itemKeys) == 0 {
		return
	}
	for pass := 0; pass < maxMeasurePasses; pass++ {
		r := m.eng.RenderRange()
		changed := false
		for i := r.Start; i < r.End && i < len(m.itemKeys); i++ {
			k := m.itemKeys[i]
			if _, ok := m.rendered[k]; ok {
				continue
			}
			lines := m.renderer.Render(&m.entries[i])
			m.rendered[k] = lines
			if m.eng.UpdateItemHeight(k, len(lines)) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
}

// markSettled records that the session's initial layout went quiet.
// While following, the view re-anchors to the exact bottom.
func (m *transcriptModel) markSettled(sessionID string) {
	if sessionID != m.sessionID {
		return
	}
	m.settled = true
	if m.eng.StickToBottom() {
		m.eng.ScrollToBottom(vlist.BehaviorInstant)
		m.measure()
	}
}

// following reports whether the pane is pinned to the tail.
func (m *transcriptModel) following() bool {
	return m.eng.StickToBottom()
}

func (m *transcriptModel) pageSize() int {
	return max(1, m.height-2)
}

// scrollBy queues a manual scroll and applies it. Scrolling up releases
// the tail pin; scrolling back onto the bottom edge restores it.
func (m *transcriptModel) scrollBy(delta int) {
	if delta < 0 {
		m.eng.DisableStickToBottom()
	}
	m.eng.ScrollBy(delta)
	m.eng.Flush()
	if delta > 0 && m.eng.IsAtBottom() {
		m.eng.EnableStickToBottom()
	}
	m.measure()
}

func (m transcriptModel) handleKey(msg tea.KeyMsg) (transcriptModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.scrollBy(-1)
	case key.Matches(msg, m.keys.Down):
		m.scrollBy(1)
	case key.Matches(msg, m.keys.PageUp):
		m.scrollBy(-m.pageSize())
	case key.Matches(msg, m.keys.PageDown):
		m.scrollBy(m.pageSize())
	case key.Matches(msg, m.keys.Top):
		m.eng.DisableStickToBottom()
		m.eng.ScrollToTop(vlist.BehaviorInstant)
		m.measure()
	case key.Matches(msg, m.keys.Bottom):
		m.eng.EnableStickToBottom()
		m.measure()
	case key.Matches(msg, m.keys.Follow):
		if m.eng.StickToBottom() {
			m.eng.DisableStickToBottom()
		} else {
			m.eng.EnableStickToBottom()
			m.measure()
		}
	}
	return m, nil
}

// view composes the visible window: spacer rows for unrendered regions,
// then the rendered range sliced to the viewport.
func (m transcriptModel) view() string {
	if m.sessionID == "" || len(m.itemKeys) == 0 {
		return mutedStyle.Render(i18n.T("tui.transcript.empty", "No entries yet"))
	}

	st := m.eng.ScrollState()
	r := m.eng.RenderRange()

	var block []string
	for i := r.Start; i < r.End && i < len(m.itemKeys); i++ {
		k := m.itemKeys[i]
		if lines, ok := m.rendered[k]; ok {
			block = append(block, lines...)
			continue
		}
		// Unmeasured items inside the range occupy their estimated rows
		// until the next measure pass replaces them.
		if pos, ok := m.eng.Position(k); ok {
			for n := 0; n < pos.Height; n++ {
				block = append(block, "")
			}
		}
	}

	out := make([]string, 0, st.ViewportHeight)
	offset := st.ScrollTop - m.eng.SpacerBefore()
	for offset < 0 && len(out) < st.ViewportHeight {
		out = append(out, "")
		offset++
	}
	for i := offset; i >= 0 && i < len(block) && len(out) < st.ViewportHeight; i++ {
		out = append(out, block[i])
	}
	for len(out) < st.ViewportHeight {
		out = append(out, "")
	}
	return strings.Join(out, "\n")
}

// waitStabilityCmd resolves when the watcher's quiet window elapses.
func waitStabilityCmd(sessionID string, w *vlist.StabilityWatcher) tea.Cmd {
	return func() tea.Msg {
		<-w.Done()
		return transcriptStableMsg{SessionID: sessionID}
	}
}
