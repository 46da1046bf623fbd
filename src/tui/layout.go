package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// panelDimensions holds calculated layout dimensions
type panelDimensions struct {
	availableHeight int
	leftPanelWidth  int
	rightPanelWidth int
}

// calculateDimensions computes panel sizes based on terminal dimensions.
// This centralizes the layout math to ensure consistency across render and resize.
func (m MainModel) calculateDimensions() panelDimensions {
	headerHeight := lipgloss.Height(m.header.Render(m.width))
	// Account for: header + help line (1) + panel column header row (1) + panel borders (2)
	availableHeight := max(m.height-headerHeight-1-1-2, 1)

	// Two-panel layout: Messages (40%) | Signals (60%)
	leftPanelWidth := int(float64(m.width) * 0.4)
	rightPanelWidth := m.width - leftPanelWidth

	return panelDimensions{
		availableHeight: availableHeight,
		leftPanelWidth:  leftPanelWidth,
		rightPanelWidth: rightPanelWidth,
	}
}

// View renders the complete TUI layout
func (m MainModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	header := m.header.Render(m.width)

	if !m.hasData() {
		centered := lipgloss.NewStyle().
			Width(m.width).
			Align(lipgloss.Center).
			PaddingTop(2).
			Render(ClampLines(m.waiting.View(), m.width))
		return lipgloss.JoinVertical(lipgloss.Left, header, centered, m.renderHelpText())
	}

	dims := m.calculateDimensions()

	leftPanel := m.renderListPanel(dims.leftPanelWidth, dims.availableHeight)
	rightPanel := m.renderDetailPanel(dims.rightPanelWidth, dims.availableHeight)

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)

	return lipgloss.JoinVertical(lipgloss.Left, header, mainContent, m.renderHelpText())
}

// renderHelpText renders the bottom line: the retention prompt while
// editing, otherwise key help plus the last status message.
func (m MainModel) renderHelpText() string {
	if m.editing {
		line := m.input.View() + "  (Enter apply • Esc cancel)"
		if m.flash != "" && !m.flashOK {
			line += "  " + lipgloss.NewStyle().Foreground(m.styles.Error).Render(m.flash)
		}
		return ClampLines(m.styles.HelpStyle().Render(line), m.width)
	}

	keyStyle := lipgloss.NewStyle().Foreground(m.styles.PrimaryBlue).Bold(true)
	sepStyle := lipgloss.NewStyle().Foreground(m.styles.TextSecondary)

	helpText := fmt.Sprintf("%s: Nav %s %s: Window %s %s: ×2/÷2 %s %s: Clear %s %s: Clear all %s %s: Quit",
		keyStyle.Render("j/k"), sepStyle.Render("•"),
		keyStyle.Render("w"), sepStyle.Render("•"),
		keyStyle.Render("+/-"), sepStyle.Render("•"),
		keyStyle.Render("c"), sepStyle.Render("•"),
		keyStyle.Render("C"), sepStyle.Render("•"),
		keyStyle.Render("q"))

	if m.flash != "" {
		color := m.styles.Good
		if !m.flashOK {
			color = m.styles.Error
		}
		helpText += "  " + lipgloss.NewStyle().Foreground(color).Render(m.flash)
	}

	return ClampLines(m.styles.HelpStyle().Render(helpText), m.width)
}

// resizeComponents handles window resize events
func (m *MainModel) resizeComponents() {
	dims := m.calculateDimensions()

	// Resize list view (accounting for panel borders)
	m.listView.SetSize(dims.leftPanelWidth-2, dims.availableHeight)

	// Resize viewport for detail panel (accounting for borders and title row)
	m.detailViewport.Width = max(dims.rightPanelWidth-2, 0)
	m.detailViewport.Height = max(dims.availableHeight-1, 0)

	m.updateDetailContent()
}
