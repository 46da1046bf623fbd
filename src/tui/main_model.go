// Package tui provides the live telemetry dashboard. It observes a
// telemetry.Store and redraws at a fixed frame rate, so ingest bursts never
// translate into redraw bursts.
package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"pecan-telemetry/src/telemetry"
)

const (
	frameInterval = time.Second / 60
	// Ages in the list keep moving without new samples.
	idleRefresh = time.Second
)

// frameMsg drives the redraw loop.
type frameMsg time.Time

// MainModel is the Bubble Tea model for the dashboard.
// Layout: header with store stats, message list (left), signal detail (right).
type MainModel struct {
	store  *telemetry.Store
	styles *StyleConfig
	now    func() time.Time

	header         Header
	listView       View
	detailViewport viewport.Model
	waiting        WaitingModel
	input          textinput.Model

	// dirty is set by the store observer, which runs on ingest goroutines.
	dirty       *atomic.Bool
	unsubscribe func()
	lastRefresh time.Time

	items   []Item
	editing bool
	flash   string
	flashOK bool

	width  int
	height int
	ready  bool
}

// Option configures a MainModel.
type Option func(*MainModel)

// WithClock overrides the time source used for ages.
func WithClock(now func() time.Time) Option {
	return func(m *MainModel) {
		m.now = now
	}
}

// WithStyles overrides the color palette.
func WithStyles(styles *StyleConfig) Option {
	return func(m *MainModel) {
		m.styles = styles
	}
}

// NewMainModel creates the dashboard over store and subscribes to it.
// source labels where data comes from (e.g. "local", "redpanda").
func NewMainModel(store *telemetry.Store, source string, opts ...Option) MainModel {
	m := MainModel{
		store:  store,
		styles: DefaultStyles(),
		now:    time.Now,
		dirty:  &atomic.Bool{},
	}
	for _, opt := range opts {
		opt(&m)
	}

	m.header = NewHeaderWithStyles(source, m.styles)
	m.listView = NewView(m.styles)
	m.listView.GetDelegate().now = m.now
	m.detailViewport = viewport.New(0, 0)
	m.waiting = NewWaitingModel(source)

	ti := textinput.New()
	ti.Prompt = "Retention (s): "
	ti.Placeholder = "60"
	ti.CharLimit = 12
	ti.Width = 12
	m.input = ti

	dirty := m.dirty
	m.unsubscribe = store.Subscribe(func(string) { dirty.Store(true) })
	m.dirty.Store(true)
	m.refresh()

	return m
}

// Close unsubscribes from the store. Safe to call more than once.
func (m MainModel) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func frameTick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Init starts the frame loop and the waiting spinner.
func (m MainModel) Init() tea.Cmd {
	return tea.Batch(frameTick(), m.waiting.Tick)
}

// Update handles messages and updates the model state.
func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeComponents()
		return m, nil

	case frameMsg:
		now := m.now()
		if m.dirty.Swap(false) || now.Sub(m.lastRefresh) >= idleRefresh {
			m.refresh()
		}
		return m, frameTick()

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateKeys(msg)
	}

	var cmd tea.Cmd
	m.waiting, cmd = m.waiting.Update(msg)
	return m, cmd
}

func (m MainModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.Close()
		return m, tea.Quit

	case "w":
		m.editing = true
		m.flash = ""
		m.input.SetValue("")
		return m, m.input.Focus()

	case "+", "=":
		m.setRetention(m.store.RetentionWindow() * 2)
	case "-", "_":
		m.setRetention(m.store.RetentionWindow() / 2)

	case "c":
		if item, ok := m.listView.GetSelectedItem(); ok {
			m.store.ClearMessage(item.Info.ID)
			m.setFlash(fmt.Sprintf("Cleared %s (%s)", item.Info.Name, item.Info.ID), true)
			m.refresh()
		}
	case "C":
		m.store.Clear()
		m.setFlash("Cleared all messages", true)
		m.refresh()

	case "pgdown", "ctrl+d":
		m.detailViewport.SetYOffset(m.detailViewport.YOffset + m.detailViewport.Height/2)
	case "pgup", "ctrl+u":
		m.detailViewport.SetYOffset(m.detailViewport.YOffset - m.detailViewport.Height/2)

	case "up", "k", "down", "j", "home", "g", "end", "G":
		var cmd tea.Cmd
		m.listView, cmd = m.listView.Update(msg)
		m.detailViewport.GotoTop()
		m.updateDetailContent()
		return m, cmd
	}
	return m, nil
}

func (m MainModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		window, err := parseRetentionInput(m.input.Value())
		if err != nil {
			m.setFlash(err.Error(), false)
			return m, nil
		}
		m.editing = false
		m.input.Blur()
		m.setRetention(window)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// parseRetentionInput validates the retention prompt before anything
// reaches the store.
func parseRetentionInput(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("enter a number of seconds")
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	window, err := telemetry.ParseRetentionSeconds(seconds)
	if err != nil {
		return 0, errors.New("retention must be a positive number of seconds")
	}
	return window, nil
}

func (m *MainModel) setRetention(window time.Duration) {
	if err := m.store.SetRetentionWindow(window); err != nil {
		m.setFlash(fmt.Sprintf("Retention not changed: %v", err), false)
		return
	}
	m.setFlash("Retention window "+FormatWindow(window), true)
	m.refresh()
}

func (m *MainModel) setFlash(text string, ok bool) {
	m.flash = text
	m.flashOK = ok
}

// refresh pulls a fresh snapshot from the store.
func (m *MainModel) refresh() {
	m.lastRefresh = m.now()

	infos := m.store.Messages()
	latest := m.store.AllLatest()
	items := make([]Item, 0, len(infos))
	for _, info := range infos {
		sample, ok := latest[info.ID]
		items = append(items, Item{Info: info, Latest: sample, HasLatest: ok})
	}
	m.items = items

	m.header.SetStats(m.store.Stats(), m.store.RetentionWindow())
	m.listView.SetItems(items)
	m.updateDetailContent()
}

// hasData reports whether the store knows any message.
func (m MainModel) hasData() bool {
	return len(m.items) > 0
}

// Run shows the dashboard until the user quits.
func Run(store *telemetry.Store, source string) error {
	m := NewMainModel(store, source)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}
	return nil
}
