// Package history renders the listener's most recent scans.
package history

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/scanrelay/scanrelay/internal/client"
	"github.com/scanrelay/scanrelay/internal/theme"
)

// DefaultLimit is how many scans the overlay requests.
const DefaultLimit = 20

// Fetcher is the part of client.HTTPClient the overlay needs.
type Fetcher interface {
	RecentScans(ctx context.Context, limit int) ([]client.ScanRecord, error)
}

// LoadedMsg carries the result of a Fetch.
type LoadedMsg struct {
	Scans []client.ScanRecord
	Err   error
}

// Fetch returns a command that loads the most recent scans.
func Fetch(ctx context.Context, f Fetcher, limit int) tea.Cmd {
	return func() tea.Msg {
		scans, err := f.RecentScans(ctx, limit)
		return LoadedMsg{Scans: scans, Err: err}
	}
}

type Model struct {
	Scans   []client.ScanRecord
	Err     error
	Loading bool
}

func New() Model {
	return Model{}
}

// SetLoaded stores a fetch result.
func (m *Model) SetLoaded(msg LoadedMsg) {
	m.Loading = false
	m.Err = msg.Err
	if msg.Err == nil {
		m.Scans = msg.Scans
	}
}

func (m Model) View(width int) string {
	innerW := width - 4
	if innerW < 30 {
		innerW = 30
	}

	title := theme.StyleHeader.Render(" RECENT SCANS ")
	help := theme.StyleDimmed.Render("h:refresh  esc:close")

	var body string
	switch {
	case m.Loading:
		body = theme.StyleDimmed.Render("  Loading...")
	case m.Err != nil:
		body = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("  " + m.Err.Error())
	case len(m.Scans) == 0:
		body = theme.StyleDimmed.Render("  Listener has no scans yet.")
	default:
		var lines []string
		for _, s := range m.Scans {
			ts := theme.StyleDimmed.Render(s.ReceivedAt.Local().Format("15:04:05"))
			value := s.Value
			if max := innerW - 30; max > 3 && len(value) > max {
				value = value[:max-3] + "..."
			}
			lines = append(lines, fmt.Sprintf("%s  %s  %s", ts,
				lipgloss.NewStyle().Foreground(theme.ColorBright).Render(value),
				theme.StyleDimmed.Render(s.Remote)))
		}
		body = strings.Join(lines, "\n")
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help)
	return theme.PanelStyle(innerW).Render(content)
}
