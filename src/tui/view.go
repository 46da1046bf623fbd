package tui

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

// View manages the list of message items.
type View struct {
	list     list.Model
	items    []Item
	delegate *Delegate
}

// NewView creates a new message list view
func NewView(styles *StyleConfig) View {
	delegate := NewDelegateWithStyles(styles)
	l := list.New([]list.Item{}, &delegate, 0, 0)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return View{
		list:     l,
		items:    []Item{},
		delegate: &delegate,
	}
}

// Update handles list navigation
func (v View) Update(msg tea.Msg) (View, tea.Cmd) {
	var cmd tea.Cmd
	v.list, cmd = v.list.Update(msg)
	return v, cmd
}

// SetSize sets the list dimensions
func (v *View) SetSize(width, height int) {
	v.list.SetSize(width, height)
}

// SetItems replaces the rows, keeping the selection on the same message id
// when it still exists.
func (v *View) SetItems(items []Item) {
	selectedID := ""
	if sel, ok := v.GetSelectedItem(); ok {
		selectedID = sel.Info.ID
	}
	v.items = items

	maxIDLen := 0
	maxCount := 0
	listItems := make([]list.Item, len(items))
	selectIdx := -1
	for i, item := range items {
		maxIDLen = max(maxIDLen, len(item.Info.ID))
		maxCount = max(maxCount, item.Info.SampleCount)
		if item.Info.ID == selectedID {
			selectIdx = i
		}
		listItems[i] = item
	}
	v.delegate.SetColumnWidths(maxIDLen, maxCount)

	v.list.SetItems(listItems)
	if selectIdx >= 0 {
		v.list.Select(selectIdx)
	}
}

// GetSelectedItem returns the currently selected message item
func (v View) GetSelectedItem() (Item, bool) {
	if len(v.list.Items()) == 0 {
		return Item{}, false
	}
	item, ok := v.list.SelectedItem().(Item)
	return item, ok
}

// Render returns the string representation of the view
func (v View) Render() string {
	return v.list.View()
}

// GetDelegate returns the delegate for accessing column widths
func (v View) GetDelegate() *Delegate {
	return v.delegate
}
