package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	// listRenderingOverhead accounts for padding added by bubbles/list and panel borders.
	// Breakdown: panel border (2) + list internal padding/margins (8) = 10 chars total.
	listRenderingOverhead = 10

	ageWidth = 5
)

// Delegate renders message items as table rows.
type Delegate struct {
	IDWidth    int
	CountWidth int
	styles     *StyleConfig
	now        func() time.Time
}

// NewDelegate creates a new message table delegate with default styles
func NewDelegate() Delegate {
	return NewDelegateWithStyles(DefaultStyles())
}

// NewDelegateWithStyles creates a new delegate with custom styles
func NewDelegateWithStyles(styles *StyleConfig) Delegate {
	return Delegate{
		IDWidth:    3,
		CountWidth: 4,
		styles:     styles,
		now:        time.Now,
	}
}

// SetColumnWidths sizes the id and sample count columns to fit their
// widest values.
func (d *Delegate) SetColumnWidths(maxIDLen, maxCount int) {
	d.IDWidth = max(maxIDLen, 3)
	d.CountWidth = max(len(fmt.Sprintf("%d", maxCount)), 4)
}

// Height returns the height of a list item
func (d Delegate) Height() int {
	return 1
}

// Spacing returns spacing between items
func (d Delegate) Spacing() int {
	return 0
}

// Update handles item updates
func (d Delegate) Update(msg tea.Msg, m *list.Model) tea.Cmd {
	return nil
}

// Render renders a list item
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	entry, ok := item.(Item)
	if !ok {
		return
	}

	isSelected := index == m.Index()

	idCol := fmt.Sprintf("%*s", d.IDWidth, entry.Info.ID)
	countCol := fmt.Sprintf("%*d", d.CountWidth, entry.Info.SampleCount)

	age := d.now().Sub(time.UnixMilli(entry.Info.LastUpdated))
	ageCol := fmt.Sprintf("%*s", ageWidth, FormatAge(age))
	if entry.Info.SampleCount == 0 {
		ageCol = fmt.Sprintf("%*s", ageWidth, "-")
	}

	// Fixed columns: id + count + age + separators (9)
	fixedWidth := d.IDWidth + d.CountWidth + ageWidth + 9
	availableWidth := m.Width() - fixedWidth - listRenderingOverhead

	var name string
	if availableWidth > 0 {
		name = TruncateAndPad(entry.Info.Name, availableWidth, true)
	}

	style := lipgloss.NewStyle().Foreground(d.styles.TextSecondary)
	if isSelected {
		style = style.Bold(true).Foreground(d.styles.PrimaryBlue).Background(d.styles.SelectedColor)
	}
	ageStyle := style.Foreground(d.styles.AgeColor(age.Milliseconds()))
	if entry.Info.SampleCount == 0 {
		ageStyle = style
	}

	line := style.Render(fmt.Sprintf("%s │ %s │ %s │ ", idCol, name, countCol)) + ageStyle.Render(ageCol)
	fmt.Fprint(w, line)
}
