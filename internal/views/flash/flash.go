// Package flash shows the scan acknowledgment banner. The banner springs
// open, holds, then springs shut.
package flash

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/scanrelay/scanrelay/internal/theme"
)

const (
	fps      = 60
	holdFor  = 1500 * time.Millisecond
	settleAt = 0.01
)

// FrameMsg advances the animation started by Show with the same ID.
type FrameMsg struct {
	ID int
	At time.Time
}

type Model struct {
	Text string
	OK   bool

	id       int
	spring   harmonica.Spring
	pos, vel float64
	target   float64
	shownAt  time.Time
}

func New() Model {
	return Model{spring: harmonica.NewSpring(harmonica.FPS(fps), 6.0, 0.6)}
}

// Active reports whether the banner is visible.
func (m Model) Active() bool {
	return m.target > 0 || m.pos > settleAt
}

// Show opens the banner with text and restarts the animation.
func (m *Model) Show(text string, ok bool, now time.Time) tea.Cmd {
	m.id++
	m.Text = text
	m.OK = ok
	m.target = 1
	m.shownAt = now
	return frame(m.id)
}

func frame(id int) tea.Cmd {
	return tea.Tick(time.Second/fps, func(t time.Time) tea.Msg {
		return FrameMsg{ID: id, At: t}
	})
}

// Update steps the spring. Frames from a superseded Show are ignored.
func (m Model) Update(msg FrameMsg) (Model, tea.Cmd) {
	if msg.ID != m.id {
		return m, nil
	}
	if m.target > 0 && msg.At.Sub(m.shownAt) >= holdFor {
		m.target = 0
	}
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.target)
	if m.target == 0 && m.pos < settleAt {
		m.pos, m.vel = 0, 0
		return m, nil
	}
	return m, frame(m.id)
}

// View renders the banner at its current opening, or "" when closed.
func (m Model) View(width int) string {
	if !m.Active() {
		return ""
	}
	if width < 20 {
		width = 20
	}
	open := m.pos
	if open > 1 {
		open = 1
	}
	if open < 0 {
		open = 0
	}
	w := int(float64(width) * open)
	if w < len(m.Text)+4 {
		w = len(m.Text) + 4
	}

	color := theme.ColorSent
	if !m.OK {
		color = theme.ColorWarning
	}
	return lipgloss.NewStyle().
		Width(w).
		Bold(true).
		Foreground(theme.ColorBright).
		Background(color).
		Padding(0, 1).
		Render(m.Text)
}
