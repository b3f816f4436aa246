// Package debug is the event log overlay. It journals the scan pipeline
// (arming, accepted candidates and their send outcome) alongside transport
// and permission events, and can narrow the view to scan events only.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/scanrelay/scanrelay/internal/theme"
)

const maxEvents = 200

// Kind classifies a journal event.
type Kind uint8

const (
	KindConn Kind = iota
	KindPerm
	KindScanner // scanner opened or closed
	KindArmed
	KindAccepted
	KindSent
	KindDropped
	KindError
	numKinds
)

var kindNames = [numKinds]string{
	KindConn:     "conn",
	KindPerm:     "perm",
	KindScanner:  "scnr",
	KindArmed:    "armed",
	KindAccepted: "accept",
	KindSent:     "sent",
	KindDropped:  "drop",
	KindError:    "error",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Scan reports whether k belongs to a scan cycle.
func (k Kind) Scan() bool {
	return k >= KindArmed && k <= KindDropped
}

// Event is one journal line. Value is the candidate payload for scan
// events and empty otherwise.
type Event struct {
	At     time.Time
	Kind   Kind
	Value  string
	Detail string
}

// Model holds the journal. Counts are lifetime totals and survive the
// buffer cap.
type Model struct {
	events    []Event
	counts    [numKinds]int
	scansOnly bool
	offset    int // from the bottom of the visible events

	now func() time.Time
}

// New creates an empty journal.
func New() Model {
	return Model{now: time.Now}
}

// Record appends a non-scan event.
func (m *Model) Record(kind Kind, format string, args ...interface{}) {
	m.append(Event{Kind: kind, Detail: fmt.Sprintf(format, args...)})
}

// Armed records a trigger press that armed the gate.
func (m *Model) Armed() {
	m.append(Event{Kind: KindArmed})
}

// Accepted records the candidate the armed gate let through.
func (m *Model) Accepted(value, symbology string) {
	m.append(Event{Kind: KindAccepted, Value: value, Detail: symbology})
}

// Ack records the outcome of a dispatched candidate. A failed emit is a
// drop; the scan was still acknowledged to the user.
func (m *Model) Ack(value string, confirmed bool, err error) {
	switch {
	case err != nil:
		m.append(Event{Kind: KindDropped, Value: value, Detail: err.Error()})
	case confirmed:
		m.append(Event{Kind: KindSent, Value: value, Detail: "confirmed"})
	default:
		m.append(Event{Kind: KindSent, Value: value})
	}
}

func (m *Model) append(e Event) {
	if m.now == nil {
		m.now = time.Now
	}
	e.At = m.now()
	m.events = append(m.events, e)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
	if e.Kind < numKinds {
		m.counts[e.Kind]++
	}
	m.offset = 0
}

// Count returns how many events of kind were recorded.
func (m Model) Count(kind Kind) int {
	if kind >= numKinds {
		return 0
	}
	return m.counts[kind]
}

// Len returns the number of buffered events.
func (m Model) Len() int { return len(m.events) }

// ToggleScans switches between all events and scan events only.
func (m *Model) ToggleScans() {
	m.scansOnly = !m.scansOnly
	m.offset = 0
}

// ScansOnly reports whether the view is filtered to scan events.
func (m Model) ScansOnly() bool { return m.scansOnly }

// Visible returns the events the view draws from, oldest first.
func (m Model) Visible() []Event {
	if !m.scansOnly {
		return m.events
	}
	out := make([]Event, 0, len(m.events))
	for _, e := range m.events {
		if e.Kind.Scan() {
			out = append(out, e)
		}
	}
	return out
}

// Offset is the scroll position, counted from the newest visible event.
func (m Model) Offset() int { return m.offset }

func (m *Model) ScrollUp(n int) {
	m.offset += n
	if max := len(m.Visible()) - 1; m.offset > max {
		m.offset = max
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m *Model) ScrollDown(n int) {
	m.offset -= n
	if m.offset < 0 {
		m.offset = 0
	}
}

// View renders the journal as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	rows := height - 7
	if rows < 3 {
		rows = 3
	}

	title := " EVENT LOG "
	if m.scansOnly {
		title = " EVENT LOG · scans "
	}
	header := theme.StyleHeader.Render(title)
	summary := theme.StyleDimmed.Render(fmt.Sprintf("armed %d  accepted %d  sent %d  dropped %d",
		m.counts[KindArmed], m.counts[KindAccepted], m.counts[KindSent], m.counts[KindDropped]))
	help := theme.StyleDimmed.Render("j/k:scroll  f:scans only  esc:close")

	events := m.Visible()
	if len(events) == 0 {
		body := theme.StyleDimmed.Render("  No events recorded yet.")
		return theme.PanelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, header, summary, "", body, "", help))
	}

	end := len(events) - m.offset
	start := end - rows
	if start < 0 {
		start = 0
	}
	lines := make([]string, 0, end-start)
	for _, e := range events[start:end] {
		lines = append(lines, renderEvent(e, innerW))
	}

	more := ""
	if m.offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.offset))
	}
	content := lipgloss.JoinVertical(lipgloss.Left, header, summary, strings.Join(lines, "\n"), more, help)
	return theme.PanelStyle(innerW).Render(content)
}

func renderEvent(e Event, width int) string {
	ts := theme.StyleDimmed.Render(e.At.Format("15:04:05.000"))
	kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(6).Render(e.Kind.String())

	detail := e.Detail
	if limit := width - 21 - len(e.Value); limit > 3 && len(detail) > limit {
		detail = detail[:limit-3] + "..."
	}
	if e.Value == "" {
		return ts + " " + kind + " " + detail
	}

	value := fmt.Sprintf("%q", e.Value)
	if e.Kind == KindAccepted {
		value = acceptedStyle.Render(" " + e.Value + " ")
	}
	if detail == "" {
		return ts + " " + kind + " " + value
	}
	return ts + " " + kind + " " + value + " " + theme.StyleDimmed.Render(detail)
}

var acceptedStyle = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBright).Background(theme.ColorSent)

func kindColor(k Kind) lipgloss.Color {
	switch k {
	case KindConn:
		return theme.ColorScanning
	case KindPerm:
		return theme.ColorAccent
	case KindArmed:
		return theme.ColorArmed
	case KindAccepted, KindSent:
		return theme.ColorSent
	case KindDropped, KindError:
		return theme.ColorFailed
	default:
		return theme.ColorDimmed
	}
}
