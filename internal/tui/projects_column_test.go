package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/wethinkt/go-tailt/internal/tailt"
)

func TestProjectItemStrings(t *testing.T) {
	item := projectItem{project: tailt.Project{
		ID:           "p1",
		Name:         "alpha",
		Path:         "/work/alpha",
		SessionCount: 2,
		UpdatedAt:    time.Now().Add(-time.Hour),
	}}

	if item.Title() != "alpha" {
		t.Fatalf("expected the project name as title, got %q", item.Title())
	}
	if desc := item.Description(); !strings.Contains(desc, "session") {
		t.Fatalf("expected the session count in the description, got %q", desc)
	}
	if fv := item.FilterValue(); !strings.Contains(fv, "alpha") || !strings.Contains(fv, "/work/alpha") {
		t.Fatalf("expected name and path filterable, got %q", fv)
	}
}

func TestProjectsSelectionSurvivesSetItems(t *testing.T) {
	m := newProjectsModel()
	m.setSize(30, 20)
	m.setItems([]tailt.Project{
		{ID: "p1", Name: "alpha"},
		{ID: "p2", Name: "beta"},
	})

	m, _ = m.update(keyPress('j'))
	if p := m.selectedProject(); p == nil || p.ID != "p2" {
		t.Fatalf("expected the cursor on p2, got %+v", m.selectedProject())
	}

	// A refresh that prepends a project shifts every index.
	m.setItems([]tailt.Project{
		{ID: "p0", Name: "zero"},
		{ID: "p1", Name: "alpha"},
		{ID: "p2", Name: "beta"},
	})
	if p := m.selectedProject(); p == nil || p.ID != "p2" {
		t.Fatalf("expected the cursor to stay on p2, got %+v", m.selectedProject())
	}
}

func TestProjectsEmptyView(t *testing.T) {
	m := newProjectsModel()
	m.setSize(30, 20)
	if got := m.view(); !strings.Contains(got, "No projects found") {
		t.Fatalf("expected the empty notice, got %q", got)
	}
}
