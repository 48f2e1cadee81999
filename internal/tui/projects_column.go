package tui

import (
	"charm.land/bubbles/v2/list"
	tea "charm.land/bubbletea/v2"

	"github.com/wethinkt/go-tailt/internal/i18n"
	"github.com/wethinkt/go-tailt/internal/tailt"
)

// projectItem wraps a project for the list component.
type projectItem struct {
	project tailt.Project
}

func (i projectItem) Title() string { return i.project.Name }

func (i projectItem) Description() string {
	desc := i18n.Tn("tui.sessions.count", "{{.Count}} session", "{{.Count}} sessions", i.project.SessionCount)
	if !i.project.UpdatedAt.IsZero() {
		desc += "  " + i18n.RelativeTimeShort(i.project.UpdatedAt)
	}
	return desc
}

func (i projectItem) FilterValue() string { return i.project.Name + " " + i.project.Path }

// projectsModel manages the projects list (column 1).
type projectsModel struct {
	list  list.Model
	items []tailt.Project
}

func newProjectsModel() projectsModel {
	delegate := list.NewDefaultDelegate()
	l := list.New(nil, delegate, 0, 0)
	l.Title = i18n.T("tui.shell.projects", "Projects")
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	return projectsModel{list: l}
}

// setItems replaces the project rows, keeping the cursor on the same
// project when it survives the update.
func (m *projectsModel) setItems(projects []tailt.Project) {
	selectedID := ""
	if p := m.selectedProject(); p != nil {
		selectedID = p.ID
	}
	m.items = projects
	items := make([]list.Item, len(projects))
	cursor := -1
	for i, p := range projects {
		items[i] = projectItem{project: p}
		if p.ID == selectedID {
			cursor = i
		}
	}
	m.list.SetItems(items)
	if cursor >= 0 {
		m.list.Select(cursor)
	}
}

func (m *projectsModel) setSize(w, h int) {
	m.list.SetSize(w, h)
}

func (m *projectsModel) selectedProject() *tailt.Project {
	item := m.list.SelectedItem()
	if item == nil {
		return nil
	}
	pi, ok := item.(projectItem)
	if !ok {
		return nil
	}
	return &pi.project
}

func (m projectsModel) update(msg tea.Msg) (projectsModel, tea.Cmd) {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m projectsModel) filtering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m projectsModel) view() string {
	if len(m.items) == 0 {
		return mutedStyle.Render(i18n.T("tui.shell.noProjects", "No projects found"))
	}
	return m.list.View()
}
