package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderListPanel draws the column header and the message list. The list
// itself is sized in resizeComponents.
func (m MainModel) renderListPanel(width, height int) string {
	d := m.listView.GetDelegate()
	columns := []string{
		fmt.Sprintf("%*s", d.IDWidth, "ID"),
		"Message",
		fmt.Sprintf("%*s", d.CountWidth, "N"),
		"Age",
	}
	title := fmt.Sprintf("%s (%d)", strings.Join(columns, " │ "), len(m.items))

	header := lipgloss.NewStyle().
		Foreground(m.styles.PrimaryBlue).
		Bold(true).
		Width(width-2).
		Padding(0, 1).
		Render(Truncate(title, width-4, true))

	body := m.styles.PanelStyle(false).
		Width(width - 2).
		Height(height).
		Render(m.listView.Render())

	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}
