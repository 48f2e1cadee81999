package tui

import (
	"charm.land/bubbles/v2/key"

	"github.com/wethinkt/go-tailt/internal/i18n"
)

// browseKeyMap defines key bindings for the browse shell.
type browseKeyMap struct {
	Quit     key.Binding
	Back     key.Binding
	Select   key.Binding
	NextPane key.Binding
	PrevPane key.Binding
	Filter   key.Binding
	Refresh  key.Binding

	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Follow   key.Binding
}

// defaultBrowseKeyMap returns the default key bindings for the browser.
func defaultBrowseKeyMap() browseKeyMap {
	return browseKeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", i18n.T("tui.help.quit", "quit")),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", i18n.T("tui.help.back", "back")),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", i18n.T("tui.help.select", "select")),
		),
		NextPane: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next pane"),
		),
		PrevPane: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "prev pane"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", i18n.T("tui.help.filter", "filter")),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),

		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", i18n.T("tui.help.scrollUp", "scroll up")),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", i18n.T("tui.help.scrollDown", "scroll down")),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "b"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", " "),
			key.WithHelp("pgdn", "page down"),
		),
		Top: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", i18n.T("tui.help.top", "top")),
		),
		Bottom: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("G", i18n.T("tui.help.bottom", "bottom")),
		),
		Follow: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", i18n.T("tui.help.follow", "follow")),
		),
	}
}
