package tui

import (
	"context"
	"strings"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/wethinkt/go-tailt/internal/config"
	"github.com/wethinkt/go-tailt/internal/data"
	"github.com/wethinkt/go-tailt/internal/i18n"
	"github.com/wethinkt/go-tailt/internal/live"
	"github.com/wethinkt/go-tailt/internal/reconcile"
	"github.com/wethinkt/go-tailt/internal/tailt"
	"github.com/wethinkt/go-tailt/internal/tui/theme"
)

// column identifies which column is currently active.
type column int

const (
	colProjects column = iota
	colSessions
	colTranscript
)

// Model is the top-level bubbletea model for the browser.
type Model struct {
	client  *data.Client
	store   *data.Store
	mgr     *live.Manager
	setView func(reconcile.View)

	width        int
	height       int
	activeColumn column

	keys       browseKeyMap
	spin       spinner.Model
	projects   projectsModel
	sessions   sessionsModel
	transcript transcriptModel

	selectedProjectID string
	openSessionID     string
	connState         live.State
	pendingFetches    int
}

// NewModel creates the browse model. setView publishes the user's
// current view so reconnect reconciliation can prioritize it.
func NewModel(client *data.Client, mgr *live.Manager, listCfg config.ListConfig, setView func(reconcile.View)) Model {
	t := theme.Current()
	s := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(t.GetAccent()))),
	)
	keys := defaultBrowseKeyMap()
	if setView == nil {
		setView = func(reconcile.View) {}
	}
	return Model{
		client:     client,
		store:      client.Store(),
		mgr:        mgr,
		setView:    setView,
		keys:       keys,
		spin:       s,
		projects:   newProjectsModel(),
		sessions:   newSessionsModel(keys),
		transcript: newTranscriptModel(listCfg, keys),
		connState:  live.StateConnecting,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.startFetch(refreshProjectsCmd(m.client)))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateSizes()
		return m, nil

	case storeChangedMsg:
		return m.syncFromStore()

	case connStateMsg:
		m.connState = msg.State
		return m, nil

	case fetchDoneMsg:
		if m.pendingFetches > 0 {
			m.pendingFetches--
		}
		return m, nil

	case transcriptStableMsg:
		m.transcript.markSettled(msg.SessionID)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	// Forward everything else to the active column.
	switch m.activeColumn {
	case colProjects:
		var cmd tea.Cmd
		m.projects, cmd = m.projects.update(msg)
		return m, cmd
	case colSessions:
		var cmd tea.Cmd
		m.sessions, cmd = m.sessions.update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// While a filter input owns the keyboard, only ctrl+c stays global.
	if msg.String() != "ctrl+c" {
		if m.activeColumn == colProjects && m.projects.filtering() {
			var cmd tea.Cmd
			m.projects, cmd = m.projects.update(msg)
			return m, cmd
		}
		if m.activeColumn == colSessions && m.sessions.filtering {
			var cmd tea.Cmd
			m.sessions, cmd = m.sessions.update(msg)
			return m, cmd
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.NextPane):
		m.activeColumn = (m.activeColumn + 1) % 3
		return m, nil

	case key.Matches(msg, m.keys.PrevPane):
		m.activeColumn = (m.activeColumn + 2) % 3
		return m, nil

	case key.Matches(msg, m.keys.Select):
		return m.handleEnter()

	case key.Matches(msg, m.keys.Back):
		return m.handleBack(msg)

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()
	}

	// Navigation inside the active column.
	switch m.activeColumn {
	case colProjects:
		var cmd tea.Cmd
		m.projects, cmd = m.projects.update(msg)
		if sel := m.projects.selectedProject(); sel != nil && sel.ID != m.selectedProjectID {
			m2, selCmd := m.selectProject(sel.ID)
			return m2, tea.Batch(cmd, selCmd)
		}
		return m, cmd
	case colSessions:
		var cmd tea.Cmd
		m.sessions, cmd = m.sessions.update(msg)
		return m, cmd
	case colTranscript:
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.handleKey(msg)
		return m, cmd
	}
	return m, nil
}

// selectProject moves the browse context to a project: its sessions
// load and the reconciler's current view follows along.
func (m Model) selectProject(projectID string) (Model, tea.Cmd) {
	m.selectedProjectID = projectID
	m.sessions.setItems(m.store.Sessions(projectID))
	m.publishView()
	if m.store.SessionsLoaded(projectID) {
		return m, nil
	}
	return m, m.startFetch(ensureSessionsCmd(m.client, projectID))
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.activeColumn {
	case colProjects:
		sel := m.projects.selectedProject()
		if sel == nil {
			return m, nil
		}
		m.activeColumn = colSessions
		if sel.ID != m.selectedProjectID {
			m2, cmd := m.selectProject(sel.ID)
			return m2, cmd
		}
		return m, nil

	case colSessions:
		sel := m.sessions.selectedSession()
		if sel == nil {
			return m, nil
		}
		m.activeColumn = colTranscript
		return m.openSession(*sel)
	}
	return m, nil
}

func (m Model) handleBack(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.activeColumn {
	case colTranscript:
		m.activeColumn = colSessions
		return m, nil
	case colSessions:
		// Let the column consume esc while a filter is applied.
		if m.sessions.filter.Value() != "" {
			var cmd tea.Cmd
			m.sessions, cmd = m.sessions.update(msg)
			return m, cmd
		}
		m.activeColumn = colProjects
		return m, nil
	}
	return m, nil
}

// openSession binds the transcript pane, subscribes the live channel to
// the session, and backfills any missing entries.
func (m Model) openSession(meta tailt.SessionMeta) (Model, tea.Cmd) {
	m.openSessionID = meta.ID
	stableCmd := m.transcript.open(meta.ID, m.store.Entries(meta.ID))
	m.mgr.Watch(meta.ID)
	m.publishView()

	cmds := []tea.Cmd{stableCmd}
	if !m.store.EntriesLoaded(meta.ID) {
		cmds = append(cmds, m.startFetch(ensureEntriesCmd(m.client, meta.ProjectID, meta.ID)))
	}
	return m, tea.Batch(cmds...)
}

// syncFromStore re-reads the store after any mutation.
func (m Model) syncFromStore() (tea.Model, tea.Cmd) {
	m.projects.setItems(m.store.Projects())

	var cmds []tea.Cmd
	if m.selectedProjectID == "" {
		if sel := m.projects.selectedProject(); sel != nil {
			m2, cmd := m.selectProject(sel.ID)
			m = m2
			cmds = append(cmds, cmd)
		}
	} else if _, ok := m.store.Project(m.selectedProjectID); !ok {
		// The selected project was evicted; fall back to the cursor row.
		m.selectedProjectID = ""
		m.sessions.setItems(nil)
		if sel := m.projects.selectedProject(); sel != nil {
			m2, cmd := m.selectProject(sel.ID)
			m = m2
			cmds = append(cmds, cmd)
		}
	} else {
		m.sessions.setItems(m.store.Sessions(m.selectedProjectID))
	}

	if m.openSessionID != "" {
		if _, ok := m.store.Session(m.openSessionID); !ok {
			// The open session was evicted.
			m.transcript.closeSession()
			m.openSessionID = ""
			m.mgr.Watch("")
			m.publishView()
			if m.activeColumn == colTranscript {
				m.activeColumn = colSessions
			}
		} else {
			m.transcript.setEntries(m.store.Entries(m.openSessionID))
		}
	}
	return m, tea.Batch(cmds...)
}

// publishView tells the reconciler what the user is looking at.
func (m *Model) publishView() {
	m.setView(reconcile.View{
		ProjectID: m.selectedProjectID,
		SessionID: m.openSessionID,
	})
}

func (m *Model) startFetch(cmd tea.Cmd) tea.Cmd {
	m.pendingFetches++
	return cmd
}

func (m *Model) updateSizes() {
	statusHeight := 1
	contentHeight := m.height - statusHeight

	col1Width := m.width * 20 / 100
	col2Width := m.width * 30 / 100
	col3Width := m.width - col1Width - col2Width

	if col1Width < 20 {
		col1Width = 20
	}
	if col2Width < 26 {
		col2Width = 26
	}
	if col3Width < 30 {
		col3Width = 30
	}

	// Each frame spends two rows and two columns on the border and one
	// row on the title.
	innerHeight := max(1, contentHeight-3)
	m.projects.setSize(col1Width-2, innerHeight)
	m.sessions.setSize(col2Width-2, innerHeight)
	m.transcript.setSize(col3Width-2, innerHeight)
}

// View implements tea.Model.
func (m Model) View() tea.View {
	if m.width == 0 || m.height == 0 {
		v := tea.NewView(i18n.T("common.loading", "Loading..."))
		v.AltScreen = true
		return v
	}

	statusHeight := 1
	contentHeight := m.height - statusHeight

	col1Width := m.width * 20 / 100
	col2Width := m.width * 30 / 100
	col3Width := m.width - col1Width - col2Width

	if col1Width < 20 {
		col1Width = 20
	}
	if col2Width < 26 {
		col2Width = 26
	}
	if col3Width < 30 {
		col3Width = 30
	}

	transcriptTitle := i18n.T("tui.shell.selectSession", "Select session...")
	if m.openSessionID != "" {
		if meta, ok := m.store.Session(m.openSessionID); ok {
			transcriptTitle = sessionTitle(meta, col3Width-4)
		}
	}

	transcriptBody := m.transcript.view()
	if m.openSessionID != "" {
		if errMsg, failed := m.store.EntriesError(m.openSessionID); failed {
			transcriptBody = loadErrorBanner(errMsg, col3Width-2) + "\n" + transcriptBody
		}
	}

	col1 := renderColumnBorder(m.projects.view(), i18n.T("tui.shell.projects", "Projects"), col1Width, contentHeight, m.activeColumn == colProjects)
	col2 := renderColumnBorder(m.sessions.view(), i18n.T("tui.shell.sessions", "Sessions"), col2Width, contentHeight, m.activeColumn == colSessions)
	col3 := renderColumnBorder(transcriptBody, transcriptTitle, col3Width, contentHeight, m.activeColumn == colTranscript)

	columns := lipgloss.JoinHorizontal(lipgloss.Top, col1, col2, col3)
	content := lipgloss.JoinVertical(lipgloss.Left, columns, m.statusLine())

	v := tea.NewView(content)
	v.AltScreen = true
	return v
}

// statusLine is the one-row footer: connection state, sync health,
// follow indicator, and key help.
func (m Model) statusLine() string {
	s := GetStyles()
	var parts []string

	switch m.connState {
	case live.StateConnected:
		parts = append(parts, s.StatusLive.Render("● "+i18n.T("tui.status.live", "live")))
	case live.StateConnecting:
		parts = append(parts, m.spin.View()+" "+i18n.T("tui.status.connecting", "connecting"))
	default:
		parts = append(parts, s.StatusDown.Render("○ "+i18n.T("tui.status.offline", "offline")))
	}

	if m.pendingFetches > 0 {
		parts = append(parts, m.spin.View()+" "+i18n.T("tui.status.syncing", "syncing"))
	}
	if m.store.HasLoadErrors() {
		parts = append(parts, s.StatusWarn.Render("⚠ "+i18n.T("tui.shell.syncFailed", "some sessions failed to sync")))
	}
	if m.openSessionID != "" && m.transcript.following() {
		parts = append(parts, s.Accent.Render("▼ "+i18n.T("tui.transcript.following", "following")))
	}

	help := "tab · enter · / " + i18n.T("tui.help.filter", "filter") + " · f " + i18n.T("tui.help.follow", "follow") + " · q " + i18n.T("tui.help.quit", "quit")
	parts = append(parts, mutedStyle.Render(help))

	return statusBarStyle.Render(strings.Join(parts, "  |  "))
}

// Commands

// refreshCmd refetches the project list and retries any in-view fetch
// that previously failed. Retries bypass the loaded flags so a partial
// sync still catches up.
func (m *Model) refreshCmd() tea.Cmd {
	cmds := []tea.Cmd{m.startFetch(refreshProjectsCmd(m.client))}
	if m.selectedProjectID != "" {
		if _, failed := m.store.SessionsError(m.selectedProjectID); failed {
			cmds = append(cmds, m.startFetch(retrySessionsCmd(m.client, m.selectedProjectID)))
		}
	}
	if m.openSessionID != "" {
		if _, failed := m.store.EntriesError(m.openSessionID); failed {
			if meta, ok := m.store.Session(m.openSessionID); ok {
				cmds = append(cmds, m.startFetch(retryEntriesCmd(m.client, meta.ProjectID, meta.ID)))
			}
		}
	}
	return tea.Batch(cmds...)
}

func refreshProjectsCmd(c *data.Client) tea.Cmd {
	return func() tea.Msg {
		return fetchDoneMsg{Err: c.RefreshProjects(context.Background())}
	}
}

func ensureSessionsCmd(c *data.Client, projectID string) tea.Cmd {
	return func() tea.Msg {
		return fetchDoneMsg{Err: c.EnsureSessions(context.Background(), projectID)}
	}
}

func ensureEntriesCmd(c *data.Client, projectID, sessionID string) tea.Cmd {
	return func() tea.Msg {
		return fetchDoneMsg{Err: c.EnsureEntries(context.Background(), projectID, sessionID)}
	}
}

func retrySessionsCmd(c *data.Client, projectID string) tea.Cmd {
	return func() tea.Msg {
		_, err := c.FetchSessionList(context.Background(), projectID)
		return fetchDoneMsg{Err: err}
	}
}

func retryEntriesCmd(c *data.Client, projectID, sessionID string) tea.Cmd {
	return func() tea.Msg {
		return fetchDoneMsg{Err: c.FetchEntryDelta(context.Background(), projectID, sessionID)}
	}
}
