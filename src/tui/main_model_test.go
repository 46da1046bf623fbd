package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"pecan-telemetry/src/telemetry"
)

const baseMillis = 1_700_000_000_000

func testClock() func() time.Time {
	now := time.UnixMilli(baseMillis)
	return func() time.Time { return now }
}

// createTestModel builds a sized dashboard over a store holding msgs.
func createTestModel(t *testing.T, msgs ...telemetry.Message) (MainModel, *telemetry.Store) {
	t.Helper()
	clock := testClock()
	store := telemetry.New(telemetry.WithClock(clock))
	for _, msg := range msgs {
		store.Ingest(msg)
	}
	m := NewMainModel(store, "test", WithClock(clock))
	t.Cleanup(m.Close)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(MainModel), store
}

func bmsMessage(ts int64, voltage float64) telemetry.Message {
	return telemetry.Message{
		MessageID:       "512",
		MessageName:     "BMS_Status",
		Timestamp:       ts,
		RawBytesDisplay: "0F 50 00 00",
		Signals: map[string]telemetry.Signal{
			"Pack_Voltage": {Reading: voltage, Unit: "V", RawValue: "3920"},
			"Pack_SOC":     {Reading: 81.5, Unit: "%"},
		},
	}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m MainModel, msgs ...tea.Msg) MainModel {
	t.Helper()
	for _, msg := range msgs {
		updated, _ := m.Update(msg)
		m = updated.(MainModel)
	}
	return m
}

func TestMainModel_WaitingScreen(t *testing.T) {
	m, store := createTestModel(t)

	view := m.View()
	if !strings.Contains(view, "Waiting for telemetry from test") {
		t.Errorf("expected waiting screen, got:\n%s", view)
	}

	store.Ingest(bmsMessage(baseMillis, 392))
	m = press(t, m, frameMsg(time.Now()))

	view = m.View()
	if strings.Contains(view, "Waiting for telemetry") {
		t.Error("waiting screen still shown after first sample")
	}
	if !strings.Contains(view, "BMS_Status") {
		t.Errorf("expected message row, got:\n%s", view)
	}
}

func TestMainModel_NotReadyBeforeWindowSize(t *testing.T) {
	store := telemetry.New()
	m := NewMainModel(store, "test")
	defer m.Close()

	if got := m.View(); !strings.Contains(got, "Initializing") {
		t.Errorf("View() before size = %q", got)
	}
}

func TestMainModel_FrameRefreshesOnlyWhenDirty(t *testing.T) {
	m, store := createTestModel(t, bmsMessage(baseMillis-1000, 390))

	// Consume the initial dirty flag.
	m = press(t, m, frameMsg(time.Now()))
	if m.dirty.Load() {
		t.Fatal("dirty flag not cleared by frame")
	}

	store.Ingest(bmsMessage(baseMillis, 395))
	if !m.dirty.Load() {
		t.Fatal("ingest did not mark the dashboard dirty")
	}
	if got := m.items[0].Info.SampleCount; got != 1 {
		t.Errorf("items refreshed before the frame tick: count = %d", got)
	}

	m = press(t, m, frameMsg(time.Now()))
	if got := m.items[0].Info.SampleCount; got != 2 {
		t.Errorf("SampleCount after frame = %d, want 2", got)
	}
}

func TestMainModel_CloseStopsUpdates(t *testing.T) {
	m, store := createTestModel(t)
	m.dirty.Store(false)
	m.Close()

	store.Ingest(bmsMessage(baseMillis, 1))
	if m.dirty.Load() {
		t.Error("observer still attached after Close")
	}
}

func TestMainModel_Navigation(t *testing.T) {
	m, _ := createTestModel(t,
		bmsMessage(baseMillis, 390),
		telemetry.Message{MessageID: "192", MessageName: "VCU_Status", Timestamp: baseMillis},
		telemetry.Message{MessageID: "256", MessageName: "MC_Feedback", Timestamp: baseMillis},
	)

	tests := []struct {
		key  tea.KeyMsg
		want string
	}{
		{keyRunes("j"), "192"},
		{keyRunes("j"), "256"},
		{keyRunes("j"), "256"},
		{keyRunes("k"), "192"},
		{tea.KeyMsg{Type: tea.KeyUp}, "512"},
	}

	for i, tt := range tests {
		m = press(t, m, tt.key)
		item, ok := m.listView.GetSelectedItem()
		if !ok || item.Info.ID != tt.want {
			t.Errorf("step %d (%s): selected %q, want %q", i, tt.key, item.Info.ID, tt.want)
		}
	}
}

func TestMainModel_SelectionSurvivesRefresh(t *testing.T) {
	m, store := createTestModel(t,
		bmsMessage(baseMillis, 390),
		telemetry.Message{MessageID: "192", MessageName: "VCU_Status", Timestamp: baseMillis},
	)
	m = press(t, m, keyRunes("j"))

	store.Ingest(telemetry.Message{MessageID: "768", MessageName: "Wheel_Speeds", Timestamp: baseMillis})
	m = press(t, m, frameMsg(time.Now()))

	if item, _ := m.listView.GetSelectedItem(); item.Info.ID != "192" {
		t.Errorf("selection moved to %q after refresh", item.Info.ID)
	}
}

func TestParseRetentionInput(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "30", want: 30 * time.Second},
		{input: " 2.5 ", want: 2500 * time.Millisecond},
		{input: "", wantErr: true},
		{input: "   ", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "0", wantErr: true},
		{input: "-5", wantErr: true},
		{input: "NaN", wantErr: true},
		{input: "Inf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseRetentionInput(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseRetentionInput(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseRetentionInput(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMainModel_EditRetention(t *testing.T) {
	m, store := createTestModel(t, bmsMessage(baseMillis, 390))

	m = press(t, m, keyRunes("w"))
	if !m.editing {
		t.Fatal("w did not open the retention prompt")
	}

	// Invalid input keeps the prompt open and the store untouched.
	m = press(t, m, keyRunes("-"), keyRunes("3"), tea.KeyMsg{Type: tea.KeyEnter})
	if !m.editing {
		t.Error("prompt closed on invalid input")
	}
	if m.flash == "" || m.flashOK {
		t.Errorf("expected inline error, got flash=%q ok=%v", m.flash, m.flashOK)
	}
	if got := store.RetentionWindow(); got != telemetry.DefaultRetentionWindow {
		t.Errorf("invalid input changed retention to %v", got)
	}

	m = press(t, m, keyRunes("w"))
	m.input.SetValue("15")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.editing {
		t.Error("prompt still open after valid input")
	}
	if got := store.RetentionWindow(); got != 15*time.Second {
		t.Errorf("RetentionWindow() = %v, want 15s", got)
	}
	if !strings.Contains(m.View(), "Window: 15s") {
		t.Error("header does not show the new window")
	}
}

func TestMainModel_EditRetentionCancel(t *testing.T) {
	m, store := createTestModel(t, bmsMessage(baseMillis, 390))

	m = press(t, m, keyRunes("w"), keyRunes("9"), tea.KeyMsg{Type: tea.KeyEsc})
	if m.editing {
		t.Error("Esc did not close the prompt")
	}
	if got := store.RetentionWindow(); got != telemetry.DefaultRetentionWindow {
		t.Errorf("cancelled prompt changed retention to %v", got)
	}
}

func TestMainModel_DoubleAndHalveRetention(t *testing.T) {
	m, store := createTestModel(t, bmsMessage(baseMillis, 390))

	m = press(t, m, keyRunes("+"))
	if got := store.RetentionWindow(); got != 120*time.Second {
		t.Errorf("after + RetentionWindow() = %v, want 2m", got)
	}
	press(t, m, keyRunes("-"), keyRunes("-"))
	if got := store.RetentionWindow(); got != 30*time.Second {
		t.Errorf("after -- RetentionWindow() = %v, want 30s", got)
	}
}

func TestMainModel_Clear(t *testing.T) {
	m, store := createTestModel(t,
		bmsMessage(baseMillis, 390),
		telemetry.Message{MessageID: "192", MessageName: "VCU_Status", Timestamp: baseMillis},
	)

	m = press(t, m, keyRunes("c"))
	if _, ok := store.Latest("512"); ok {
		t.Error("c did not clear the selected message")
	}
	if _, ok := store.Latest("192"); !ok {
		t.Error("c cleared an unselected message")
	}

	m = press(t, m, keyRunes("C"))
	if len(store.AllLatest()) != 0 {
		t.Error("C did not clear all messages")
	}
	if !strings.Contains(m.View(), "Waiting for telemetry") {
		t.Error("expected waiting screen after clearing everything")
	}
}

func TestMainModel_Quit(t *testing.T) {
	m, store := createTestModel(t)
	m.dirty.Store(false)

	updated, cmd := m.Update(keyRunes("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}

	store.Ingest(bmsMessage(baseMillis, 1))
	if updated.(MainModel).dirty.Load() {
		t.Error("observer still attached after quit")
	}
}

func TestMainModel_DetailShowsSignals(t *testing.T) {
	m, _ := createTestModel(t,
		bmsMessage(baseMillis-2000, 388),
		bmsMessage(baseMillis-1000, 401.25),
		bmsMessage(baseMillis, 392),
	)

	detail := m.detailViewport.View()
	for _, want := range []string{"Pack_Voltage", "392.000 V", "raw 3920", "min 388.000", "max 401.250", "Pack_SOC", "81.500 %", "Raw: 0F 50 00 00"} {
		if !strings.Contains(detail, want) {
			t.Errorf("detail missing %q:\n%s", want, detail)
		}
	}
}
