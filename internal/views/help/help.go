// Package help renders the key reference overlay from Markdown.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/scanrelay/scanrelay/internal/theme"
)

// Markdown builds the help document for the given bindings.
func Markdown(bindings []key.Binding) string {
	var b strings.Builder
	b.WriteString("# Scanner keys\n\n")
	b.WriteString("| Key | Action |\n|-----|--------|\n")
	for _, kb := range bindings {
		h := kb.Help()
		if h.Key == "" {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	b.WriteString("\nOpen the scanner, then press the trigger to arm it. ")
	b.WriteString("The next code in view is sent once; press the trigger again for the next one.\n")
	return b.String()
}

// Model caches the rendered overlay. Glamour rendering is only redone when
// the width changes.
type Model struct {
	md      string
	width   int
	out     string
	renders int
}

// New builds the help document for bindings.
func New(bindings []key.Binding) *Model {
	return &Model{md: Markdown(bindings)}
}

// View renders the help overlay. Markdown rendering failures fall back to
// the raw document.
func (m *Model) View(width int) string {
	innerW := width - 4
	if innerW < 30 {
		innerW = 30
	}
	if m.out != "" && m.width == innerW {
		return m.out
	}
	m.renders++

	out := m.md
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(innerW-4),
	)
	if err == nil {
		if rendered, err := r.Render(m.md); err == nil {
			out = rendered
		}
	}
	m.width = innerW
	m.out = theme.PanelStyle(innerW).Render(strings.TrimRight(out, "\n"))
	return m.out
}
