package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/state"
)

const (
	minTerminalWidth    = 20
	errTerminalTooSmall = "Terminal too small"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(10)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	previewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238"))
)

func (m Model) fit(s string, indent int) string {
	width := m.width - indent
	if width <= 1 {
		return s
	}
	return truncate.StringWithTail(s, uint(width), "…")
}

func (m Model) renderHeader() string {
	return titleStyle.Render("clang-format studio")
}

func (m Model) renderState() string {
	st := m.state
	row := func(label, value string) string {
		return labelStyle.Render(label) + value + "\n"
	}

	editor := dimStyle.Render("closed")
	switch {
	case st.IsInitialized && st.IsVisible:
		editor = goodStyle.Render("visible")
	case st.IsInitialized:
		editor = warnStyle.Render("hidden")
	}

	var preview string
	switch st.PreviewMode {
	case state.PreviewOpen:
		preview = goodStyle.Render(string(st.PreviewMode))
	case state.PreviewHidden, state.PreviewTransitioning:
		preview = warnStyle.Render(string(st.PreviewMode))
	default:
		preview = dimStyle.Render(string(st.PreviewMode))
	}

	n := len(st.CurrentConfig)
	options := fmt.Sprintf("%d active option", n)
	if n != 1 {
		options += "s"
	}
	if st.ConfigDirty {
		options += warnStyle.Render(" (unsaved)")
	}

	cache := fmt.Sprintf("%d calls, %d cache hits", m.stats.Calls, m.stats.Hits)

	var b strings.Builder
	b.WriteString(row("Editor", editor))
	b.WriteString(row("Preview", preview))
	b.WriteString(row("Config", valueStyle.Render(options)))
	b.WriteString(row("Style", valueStyle.Render(m.fit(clangformat.StyleString(st.CurrentConfig), 10))))
	b.WriteString(row("Format", dimStyle.Render(cache)))
	return b.String()
}

func (m Model) renderPreview() string {
	if !m.hasText {
		return dimStyle.Render("No preview open. Press p to open one.")
	}
	return previewStyle.Render(m.viewport.View())
}

func (m Model) renderErrors() string {
	if len(m.errors) == 0 {
		return dimStyle.Render("No errors")
	}
	var b strings.Builder
	for _, e := range m.errors {
		line := fmt.Sprintf("%s %s: %v", e.Timestamp.Format("15:04:05"), e.Operation, e.Underlying)
		b.WriteString(errorStyle.Render(m.fit(line, 0)))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderStatus() string {
	switch {
	case m.busy != "":
		return m.spinner.View() + " " + m.busy + "..."
	case m.failed:
		return errorStyle.Render(m.fit(m.status, 0))
	case m.status != "":
		return goodStyle.Render(m.fit(m.status, 0))
	}
	return ""
}
