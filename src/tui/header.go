package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"pecan-telemetry/src/telemetry"
)

// Header represents the top status bar component.
type Header struct {
	source    string
	stats     telemetry.Stats
	retention time.Duration
	styles    *StyleConfig
}

// NewHeader creates a new header with default styles
func NewHeader(source string) Header {
	return NewHeaderWithStyles(source, DefaultStyles())
}

// NewHeaderWithStyles creates a new header with custom styles
func NewHeaderWithStyles(source string, styles *StyleConfig) Header {
	return Header{
		source: source,
		styles: styles,
	}
}

// SetStats updates the figures shown in the header.
func (h *Header) SetStats(stats telemetry.Stats, retention time.Duration) {
	h.stats = stats
	h.retention = retention
}

// Render renders the header
func (h Header) Render(width int) string {
	titleStyle := lipgloss.NewStyle().
		Foreground(h.styles.PrimaryBlue).
		Bold(true).
		Padding(0, 2)

	title := titleStyle.Render(fmt.Sprintf("PECAN %s", h.source))

	statStyle := lipgloss.NewStyle().
		Foreground(h.styles.TextPrimary).
		Padding(0, 2)

	stats := statStyle.Render(fmt.Sprintf("Messages: %d │ Samples: %d │ Mem: %.2f MB",
		h.stats.TotalMessages, h.stats.TotalSamples, h.stats.MemoryEstimateMB))

	windowStyle := lipgloss.NewStyle().
		Foreground(h.styles.Warn).
		Padding(0, 2)

	window := windowStyle.Render(fmt.Sprintf("Window: %s", FormatWindow(h.retention)))

	leftSection := lipgloss.JoinHorizontal(lipgloss.Left, title, stats, window)
	leftSection = ClampLines(leftSection, width)

	headerStyle := lipgloss.NewStyle().
		Background(h.styles.DarkBackground).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(h.styles.BorderColor).
		Width(width)

	spacer := lipgloss.NewStyle().Width(max(width-lipgloss.Width(leftSection), 0)).Render("")

	content := lipgloss.JoinHorizontal(lipgloss.Left, leftSection, spacer)

	return headerStyle.Render(content)
}
