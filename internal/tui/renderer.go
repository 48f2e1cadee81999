package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"

	"github.com/wethinkt/go-tailt/internal/i18n"
	"github.com/wethinkt/go-tailt/internal/tailt"
)

// maxThinkingChars caps thinking blocks; they can run to many pages.
const maxThinkingChars = 500

// maxToolResultChars caps tool results in the transcript.
const maxToolResultChars = 400

// entryRenderer turns transcript entries into styled terminal lines at
// a fixed width. Glamour setup is expensive, so one renderer is kept
// per width and rebuilt only when the pane resizes.
type entryRenderer struct {
	width    int
	markdown *glamour.TermRenderer
}

func newEntryRenderer(width int) *entryRenderer {
	r := &entryRenderer{width: width}
	if md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	); err == nil {
		r.markdown = md
	}
	return r
}

// Render returns the styled lines for one entry. The line count is the
// entry's height in the virtual list, so rendering and measuring are
// the same operation.
func (r *entryRenderer) Render(e *tailt.Entry) []string {
	s := r.renderEntry(e)
	if s == "" {
		s = mutedStyle.Render("·")
	}
	return strings.Split(s, "\n")
}

func (r *entryRenderer) renderEntry(e *tailt.Entry) string {
	switch e.Role {
	case tailt.RoleUser:
		return r.renderUser(e)
	case tailt.RoleAssistant:
		return r.renderAssistant(e)
	case tailt.RoleTool:
		return r.renderToolTurn(e)
	case tailt.RoleSystem:
		return r.renderSystem(e)
	case tailt.RoleSummary:
		return r.renderSummary(e)
	default:
		return ""
	}
}

func (r *entryRenderer) renderUser(e *tailt.Entry) string {
	text := e.PlainText()
	if text == "" {
		return ""
	}
	label := userLabel.Render(i18n.T("tui.role.user", "User"))
	content := userBlockStyle.Width(r.width).Render(text)
	return label + "\n" + content
}

func (r *entryRenderer) renderAssistant(e *tailt.Entry) string {
	var parts []string
	for i := range e.ContentBlocks {
		if s := r.renderBlock(&e.ContentBlocks[i]); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 && e.Text != "" {
		parts = append(parts, r.renderAssistantText(e.Text))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n")
}

func (r *entryRenderer) renderAssistantText(text string) string {
	label := assistantLabel.Render(i18n.T("tui.role.assistant", "Assistant"))
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(text); err == nil {
			text = strings.TrimRight(rendered, "\n")
		}
	}
	content := assistantBlockStyle.Width(r.width).Render(text)
	return label + "\n" + content
}

func (r *entryRenderer) renderBlock(block *tailt.ContentBlock) string {
	switch block.Type {
	case "text":
		if block.Text == "" {
			return ""
		}
		return r.renderAssistantText(block.Text)

	case "thinking":
		if block.Thinking == "" {
			return ""
		}
		label := thinkingLabel.Render(i18n.T("tui.entry.thinking", "Thinking"))
		content := thinkingBlockStyle.Width(r.width).Render(tailt.TruncateString(block.Thinking, maxThinkingChars))
		return label + "\n" + content

	case "tool_use":
		label := toolLabel.Render(fmt.Sprintf("%s: %s", i18n.T("tui.role.tool", "Tool"), block.ToolName))
		content := toolCallBlockStyle.Width(r.width).Render(toolInputSummary(block.ToolInput, r.width))
		return label + "\n" + content

	case "tool_result":
		label := toolLabel.Render(i18n.T("tui.entry.toolResult", "Result"))
		text := tailt.TruncateString(block.ToolResult, maxToolResultChars)
		if text == "" {
			text = "(empty)"
		}
		if block.IsError {
			text = "(error) " + text
		}
		content := toolResultBlockStyle.Width(r.width).Render(text)
		return label + "\n" + content

	case "image", "document":
		label := toolLabel.Render(i18n.T("tui.entry.attachment", "Attachment"))
		content := toolResultBlockStyle.Width(r.width).Render("(" + block.MediaType + ")")
		return label + "\n" + content

	default:
		return ""
	}
}

// renderToolTurn renders a user line that carried only tool results.
func (r *entryRenderer) renderToolTurn(e *tailt.Entry) string {
	var parts []string
	for i := range e.ContentBlocks {
		if s := r.renderBlock(&e.ContentBlocks[i]); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n")
}

func (r *entryRenderer) renderSystem(e *tailt.Entry) string {
	text := e.PlainText()
	if text == "" {
		return ""
	}
	label := systemLabel.Render(i18n.T("tui.role.system", "System"))
	content := mutedStyle.Width(r.width).Render(text)
	return label + "\n" + content
}

func (r *entryRenderer) renderSummary(e *tailt.Entry) string {
	text := e.PlainText()
	if text == "" {
		return ""
	}
	label := systemLabel.Render(i18n.T("tui.role.summary", "Summary"))
	content := mutedStyle.Italic(true).Width(r.width).Render(text)
	return label + "\n" + content
}

// toolInputSummary flattens a tool invocation's input to one line.
func toolInputSummary(input any, width int) string {
	if input == nil {
		return "(no input)"
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "(no input)"
	}
	return ansi.Truncate(string(data), max(10, width-2), "…")
}

// loadErrorBanner is shown above the transcript when the open session's
// last entry fetch failed. The refresh key retries it.
func loadErrorBanner(errMsg string, width int) string {
	s := GetStyles()
	line := "⚠ " + i18n.T("tui.transcript.loadFailed", "sync failed") + ": " + errMsg
	hint := i18n.T("tui.transcript.retryHint", "press r to retry")
	return s.StatusWarn.Render(ansi.Truncate(line, max(10, width), "…")) + "\n" +
		mutedStyle.Render(hint)
}

// renderColumnBorder frames a column, using the active border style for
// the focused one. The frame consumes two rows and two columns.
func renderColumnBorder(content, title string, width, height int, active bool) string {
	style := inactiveBorderStyle
	if active {
		style = activeBorderStyle
	}

	contentWidth := max(1, width-2)
	contentHeight := max(1, height-2)

	if title != "" {
		titled := GetStyles().ColumnTitle.Render(ansi.Truncate(title, contentWidth, "…"))
		content = titled + "\n" + content
		contentHeight = max(1, contentHeight)
	}
	content = clipToHeight(content, contentHeight)

	style = style.Width(contentWidth).Height(contentHeight)
	return style.Render(content)
}

// clipToHeight truncates content to at most h lines.
func clipToHeight(content string, h int) string {
	lines := strings.Split(content, "\n")
	if len(lines) > h {
		lines = lines[:h]
	}
	return strings.Join(lines, "\n")
}
