package tui

import (
	"bytes"
	"os"
	"path/filepath"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/wethinkt/go-tailt/internal/config"
	"github.com/wethinkt/go-tailt/internal/i18n"
	"github.com/wethinkt/go-tailt/internal/store"
	"github.com/wethinkt/go-tailt/internal/tailt"
	"github.com/wethinkt/go-tailt/internal/tuilog"
)

// viewerModel hosts the transcript pane alone, for reading a session
// file without a server.
type viewerModel struct {
	transcript transcriptModel
	keys       browseKeyMap
	title      string
	entryCount int
	width      int
	height     int
	initCmd    tea.Cmd
}

func newViewerModel(title string, entries []tailt.Entry, listCfg config.ListConfig) viewerModel {
	keys := defaultBrowseKeyMap()
	m := viewerModel{
		transcript: newTranscriptModel(listCfg, keys),
		keys:       keys,
		title:      title,
		entryCount: len(entries),
	}
	m.initCmd = m.transcript.open("file", entries)
	return m
}

func (m viewerModel) Init() tea.Cmd {
	return m.initCmd
}

func (m viewerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Border, title row, and the footer line frame the pane.
		m.transcript.setSize(max(20, msg.Width-2), max(1, msg.Height-4))
		return m, nil

	case transcriptStableMsg:
		m.transcript.markSettled(msg.SessionID)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit), key.Matches(msg, m.keys.Back):
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.handleKey(msg)
		return m, cmd
	}
	return m, nil
}

func (m viewerModel) View() tea.View {
	if m.width == 0 || m.height == 0 {
		v := tea.NewView(i18n.T("common.loading", "Loading..."))
		v.AltScreen = true
		return v
	}

	pane := renderColumnBorder(m.transcript.view(), m.title, m.width, m.height-1, true)

	status := i18n.Tn("tui.entries.count", "{{.Count}} entry", "{{.Count}} entries", m.entryCount)
	if m.transcript.following() {
		status += "  |  " + i18n.T("tui.transcript.following", "following")
	}
	help := "g/G · f " + i18n.T("tui.help.follow", "follow") + " · q " + i18n.T("tui.help.quit", "quit")
	footer := statusBarStyle.Render(status + "  |  " + help)

	v := tea.NewView(lipgloss.JoinVertical(lipgloss.Left, pane, footer))
	v.AltScreen = true
	return v
}

// loadTranscriptFile parses a JSONL session file into entries with
// synthetic sequence numbers.
func loadTranscriptFile(path string) ([]tailt.Entry, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var entries []tailt.Entry
	var summary string
	var seq int64
	sc := tailt.NewScannerWithMaxCapacity(f)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		parsed, err := store.ParseLine(line)
		if err != nil {
			tuilog.Log.Warn("viewer skipping malformed line", "path", path, "error", err)
			continue
		}
		if parsed.Summary != "" {
			summary = parsed.Summary
		}
		if parsed.Entry == nil {
			continue
		}
		seq++
		e := *parsed.Entry
		e.Seq = seq
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, "", err
	}
	return entries, summary, nil
}

// RunViewer opens one session file in the offline viewer.
func RunViewer(path string, listCfg config.ListConfig) error {
	entries, summary, err := loadTranscriptFile(path)
	if err != nil {
		return err
	}

	title := summary
	if title == "" {
		for i := range entries {
			if entries[i].Role == tailt.RoleUser && entries[i].PlainText() != "" {
				title = entries[i].PlainText()
				break
			}
		}
	}
	if title == "" {
		title = filepath.Base(path)
	}

	model := newViewerModel(title, entries, listCfg)
	p := tea.NewProgram(model, termSizeOpts()...)
	_, err = p.Run()
	return err
}
