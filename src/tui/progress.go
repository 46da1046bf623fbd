package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ASCII art logo lines for the waiting screen
var pecanLogo = []string{
	"██████▄  ███████  ▄█████▄   ▄████▄   ██▄   ██",
	"██   ██  ██       ██        ██  ██   ████  ██",
	"██████▀  █████    ██        ██████   ██ ██ ██",
	"██       ██       ██        ██  ██   ██  ████",
	"██       ███████  ▀█████▀   ██  ██   ██   ▀██",
}

// Gradient colors from light (top) to dark (bottom)
var logoGradientColors = []string{
	"#F5B041",
	"#EB984E",
	"#DC7633",
	"#CA6F1E",
	"#A04000",
}

// WaitingModel is shown until the first sample arrives.
type WaitingModel struct {
	source  string
	spinner spinner.Model
}

// NewWaitingModel creates the waiting screen for source.
func NewWaitingModel(source string) WaitingModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700"))),
	)
	return WaitingModel{source: source, spinner: s}
}

// Tick starts the spinner animation.
func (m WaitingModel) Tick() tea.Msg {
	return m.spinner.Tick()
}

func (m WaitingModel) Update(msg tea.Msg) (WaitingModel, tea.Cmd) {
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m WaitingModel) View() string {
	var logoLines []string
	for i, line := range pecanLogo {
		color := logoGradientColors[i%len(logoGradientColors)]
		style := lipgloss.NewStyle().
			Foreground(lipgloss.Color(color)).
			Bold(true)
		logoLines = append(logoLines, style.Render(line))
	}
	logo := strings.Join(logoLines, "\n")

	statusLine := m.spinner.View() + " Waiting for telemetry"
	if m.source != "" {
		statusLine += " from " + m.source
	}
	statusLine += "..."

	return lipgloss.JoinVertical(lipgloss.Center, logo, "", statusLine)
}
