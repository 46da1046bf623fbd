package tui

import "pecan-telemetry/src/telemetry"

// Item is one message row. It wraps the store's MessageInfo and latest
// sample and implements bubbles/list.Item.
type Item struct {
	Info      telemetry.MessageInfo
	Latest    telemetry.Sample
	HasLatest bool
}

// FilterValue is the value used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Info.Name }

// Title returns the primary text for the item (required by list.Item).
func (i Item) Title() string { return i.Info.Name }

// Description returns the secondary text for the item (required by list.Item).
func (i Item) Description() string { return i.Info.ID }
