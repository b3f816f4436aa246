package status

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/scanrelay/scanrelay/internal/client"
	"github.com/scanrelay/scanrelay/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Conn    client.Status
	State   string
	AckMode string
	Sent    int
	Failed  int
	Width   int

	spinner spinner.Model
}

// New creates a status bar model.
func New() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorWarning)
	return Model{
		Conn:    client.StatusDisconnected,
		State:   "idle",
		spinner: s,
	}
}

// Tick starts the connecting spinner.
func (m Model) Tick() tea.Cmd {
	return m.spinner.Tick
}

// Update advances the spinner. Ticks stop once the session is connected.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(spinner.TickMsg); !ok {
		return m, nil
	}
	if m.Conn == client.StatusConnected {
		return m, nil
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

// SetCounts updates the dispatch counters.
func (m *Model) SetCounts(sent, failed int) {
	m.Sent = sent
	m.Failed = failed
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch m.Conn {
	case client.StatusConnected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	case client.StatusConnecting:
		connStr = m.spinner.View() + lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("Connecting...")
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Disconnected")
	}

	stateStr := lipgloss.NewStyle().Foreground(theme.StateColor(m.State)).
		Render(theme.StateGlyph(m.State) + " " + m.State)

	counts := fmt.Sprintf("%d sent  %d failed", m.Sent, m.Failed)
	if m.AckMode != "" {
		counts += "  ack:" + m.AckMode
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + stateStr + sep + counts

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
