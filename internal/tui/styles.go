package tui

import (
	"sync"

	"charm.land/lipgloss/v2"

	"github.com/wethinkt/go-tailt/internal/tui/theme"
)

// Styles holds all the computed lipgloss styles for the TUI.
type Styles struct {
	// Column border styles
	ActiveBorder   lipgloss.Style
	InactiveBorder lipgloss.Style

	// Column chrome
	ColumnTitle lipgloss.Style

	// Status bar
	StatusBar  lipgloss.Style
	StatusLive lipgloss.Style
	StatusDown lipgloss.Style
	StatusWarn lipgloss.Style

	// Transcript block styles
	UserBlock       lipgloss.Style
	AssistantBlock  lipgloss.Style
	ThinkingBlock   lipgloss.Style
	ToolCallBlock   lipgloss.Style
	ToolResultBlock lipgloss.Style

	// Block labels
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	ThinkingLabel  lipgloss.Style
	ToolLabel      lipgloss.Style
	SystemLabel    lipgloss.Style

	// List rows
	RowSelected lipgloss.Style
	RowNormal   lipgloss.Style
	RowMeta     lipgloss.Style

	// Misc text
	Muted  lipgloss.Style
	Accent lipgloss.Style
}

var (
	stylesOnce sync.Once
	styles     Styles
)

// GetStyles returns the current styles, initializing from theme if needed.
func GetStyles() *Styles {
	stylesOnce.Do(func() {
		styles = buildStyles(theme.Current())
	})
	return &styles
}

// ReloadStyles rebuilds styles from the current theme.
func ReloadStyles() *Styles {
	theme.Reload()
	styles = buildStyles(theme.Current())
	return &styles
}

// applyStyle applies a theme.Style to a lipgloss.Style builder.
func applyStyle(s lipgloss.Style, ts theme.Style) lipgloss.Style {
	if ts.Fg != "" {
		s = s.Foreground(lipgloss.Color(ts.Fg))
	}
	if ts.Bg != "" {
		s = s.Background(lipgloss.Color(ts.Bg))
	}
	if ts.Bold {
		s = s.Bold(true)
	}
	if ts.Italic {
		s = s.Italic(true)
	}
	if ts.Underline {
		s = s.Underline(true)
	}
	return s
}

// buildStyles creates Styles from a Theme.
func buildStyles(t theme.Theme) Styles {
	return Styles{
		// Column border styles
		ActiveBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t.GetBorderActive())),

		InactiveBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t.GetBorderInactive())),

		ColumnTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(t.GetAccent())),

		// Status bar
		StatusBar: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.TextSecondary.Fg)).
			Padding(0, 1),

		StatusLive: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7fcc5a")),

		StatusDown: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff6b6b")),

		StatusWarn: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e0af68")),

		// Transcript block styles
		UserBlock: applyStyle(lipgloss.NewStyle(), t.UserBlock).
			Padding(0, 1).
			MarginBottom(1),

		AssistantBlock: applyStyle(lipgloss.NewStyle(), t.AssistantBlock).
			Padding(0, 1).
			MarginBottom(1),

		ThinkingBlock: applyStyle(lipgloss.NewStyle(), t.ThinkingBlock).
			Padding(0, 1).
			MarginBottom(1),

		ToolCallBlock: applyStyle(lipgloss.NewStyle(), t.ToolCallBlock).
			Padding(0, 1).
			MarginBottom(1),

		ToolResultBlock: applyStyle(lipgloss.NewStyle(), t.ToolResultBlock).
			Padding(0, 1).
			MarginBottom(1),

		// Block labels
		UserLabel:      applyStyle(lipgloss.NewStyle(), t.UserLabel),
		AssistantLabel: applyStyle(lipgloss.NewStyle(), t.AssistantLabel),
		ThinkingLabel:  applyStyle(lipgloss.NewStyle(), t.ThinkingLabel),
		ToolLabel:      applyStyle(lipgloss.NewStyle(), t.ToolLabel),
		SystemLabel:    applyStyle(lipgloss.NewStyle(), t.OtherLabel),

		// List rows
		RowSelected: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(t.GetAccent())),

		RowNormal: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.TextPrimary.Fg)),

		RowMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.TextMuted.Fg)),

		// Misc text
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.TextMuted.Fg)),

		Accent: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.GetAccent())),
	}
}

// Package-level style accessors for render helpers.
// These are initialized on first access via GetStyles().
var (
	activeBorderStyle   = lipgloss.Style{}
	inactiveBorderStyle = lipgloss.Style{}
	statusBarStyle      = lipgloss.Style{}

	userBlockStyle       = lipgloss.Style{}
	assistantBlockStyle  = lipgloss.Style{}
	thinkingBlockStyle   = lipgloss.Style{}
	toolCallBlockStyle   = lipgloss.Style{}
	toolResultBlockStyle = lipgloss.Style{}

	userLabel      = lipgloss.Style{}
	assistantLabel = lipgloss.Style{}
	thinkingLabel  = lipgloss.Style{}
	toolLabel      = lipgloss.Style{}
	systemLabel    = lipgloss.Style{}

	mutedStyle  = lipgloss.Style{}
	accentStyle = lipgloss.Style{}
)

func init() {
	s := GetStyles()

	activeBorderStyle = s.ActiveBorder
	inactiveBorderStyle = s.InactiveBorder
	statusBarStyle = s.StatusBar

	userBlockStyle = s.UserBlock
	assistantBlockStyle = s.AssistantBlock
	thinkingBlockStyle = s.ThinkingBlock
	toolCallBlockStyle = s.ToolCallBlock
	toolResultBlockStyle = s.ToolResultBlock

	userLabel = s.UserLabel
	assistantLabel = s.AssistantLabel
	thinkingLabel = s.ThinkingLabel
	toolLabel = s.ToolLabel
	systemLabel = s.SystemLabel

	mutedStyle = s.Muted
	accentStyle = s.Accent
}
