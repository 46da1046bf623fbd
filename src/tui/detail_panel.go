package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"pecan-telemetry/src/telemetry"
)

// signalRange is the min and max of one signal over the retained history,
// plus its recent readings for the sparkline.
type signalRange struct {
	min, max float64
	seen     bool
	recent   []float64
}

// collectRanges scans history once for every signal.
func collectRanges(history []telemetry.Sample, sparkWidth int) map[string]*signalRange {
	ranges := make(map[string]*signalRange)
	start := max(len(history)-sparkWidth, 0)
	for i, sample := range history {
		for name, sig := range sample.Signals {
			r, ok := ranges[name]
			if !ok {
				r = &signalRange{}
				ranges[name] = r
			}
			if i >= start {
				r.recent = append(r.recent, sig.Reading)
			}
			if math.IsNaN(sig.Reading) || math.IsInf(sig.Reading, 0) {
				continue
			}
			if !r.seen || sig.Reading < r.min {
				r.min = sig.Reading
			}
			if !r.seen || sig.Reading > r.max {
				r.max = sig.Reading
			}
			r.seen = true
		}
	}
	return ranges
}

// renderDetail renders the signal table for a message item
func (m MainModel) renderDetail(item Item, history []telemetry.Sample, maxWidth int) string {
	content := strings.Builder{}
	sample := item.Latest

	header := lipgloss.NewStyle().
		Foreground(m.styles.PrimaryBlue).
		Bold(true).
		Render(fmt.Sprintf("%s (%s) │ %s │ %d samples",
			item.Info.Name,
			item.Info.ID,
			time.UnixMilli(sample.Timestamp).Format("15:04:05.000"),
			len(history)))
	fmt.Fprintf(&content, "%s\n", header)

	if sample.RawBytesDisplay != "" {
		raw := Wrap("Raw: "+sample.RawBytesDisplay, maxWidth)
		fmt.Fprintf(&content, "%s\n", lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Faint(true).Render(raw))
	}
	fmt.Fprintln(&content)

	names := make([]string, 0, len(sample.Signals))
	nameWidth := 6
	for name := range sample.Signals {
		names = append(names, name)
		nameWidth = max(nameWidth, VisualWidth(name))
	}
	sort.Strings(names)
	nameWidth = min(nameWidth, max(maxWidth/3, 6))

	sparkWidth := max(maxWidth-nameWidth-4, 8)
	ranges := collectRanges(history, sparkWidth)

	nameStyle := lipgloss.NewStyle().Foreground(m.styles.TextPrimary).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(m.styles.Good)
	dimStyle := lipgloss.NewStyle().Foreground(m.styles.TextSecondary)
	sparkStyle := lipgloss.NewStyle().Foreground(m.styles.AccentBlue)

	for _, name := range names {
		sig := sample.Signals[name]

		value := FormatReading(sig.Reading)
		if sig.Unit != "" {
			value += " " + sig.Unit
		}
		line := nameStyle.Render(TruncateAndPad(name, nameWidth, true)) + "  " + valueStyle.Render(value)
		if sig.RawValue != "" {
			line += dimStyle.Render("  raw " + sig.RawValue)
		}
		fmt.Fprintln(&content, line)

		indent := strings.Repeat(" ", nameWidth+2)
		if r, ok := ranges[name]; ok && r.seen {
			fmt.Fprintln(&content, indent+dimStyle.Render(fmt.Sprintf("min %s  max %s", FormatReading(r.min), FormatReading(r.max))))
			fmt.Fprintln(&content, indent+sparkStyle.Render(Sparkline(r.recent, sparkWidth)))
		}
	}

	return ClampLines(content.String(), maxWidth)
}

// updateDetailContent updates the viewport with content from the selected item
func (m *MainModel) updateDetailContent() {
	item, ok := m.listView.GetSelectedItem()
	if !ok || !item.HasLatest {
		m.detailViewport.SetContent("")
		return
	}
	// The viewport's width is the max width for the content.
	// Subtract a small amount for internal padding.
	maxWidth := m.detailViewport.Width - 2
	if maxWidth <= 0 {
		return
	}
	history := m.store.History(item.Info.ID)
	m.detailViewport.SetContent(m.renderDetail(item, history, maxWidth))
}

// renderDetailPanel renders the right panel with detail viewport
func (m MainModel) renderDetailPanel(width, height int) string {
	if selectedItem, ok := m.listView.GetSelectedItem(); ok && selectedItem.HasLatest {
		headerRow := lipgloss.NewStyle().
			Foreground(m.styles.PrimaryBlue).
			Bold(true).
			Padding(0, 1).
			Render(Truncate("Signals: "+selectedItem.Info.Name, width-2, true))

		return lipgloss.JoinVertical(lipgloss.Left, headerRow,
			m.styles.PanelStyle(true).
				Width(width-2).
				Height(height).
				Render(m.detailViewport.View()))
	}

	placeholderRow := lipgloss.NewStyle().
		Foreground(m.styles.TextSecondary).
		Padding(0, 1).
		Render(" ")

	emptyStyle := m.styles.PanelStyle(false).
		Width(width-2).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(m.styles.TextSecondary).
		Faint(true)

	return lipgloss.JoinVertical(lipgloss.Left, placeholderRow, emptyStyle.Render("No samples in window"))
}
