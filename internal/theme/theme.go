// Package theme provides the Lip Gloss color palette and reusable styles
// for the scanner TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Scanner state colors.
var (
	ColorIdle     = lipgloss.Color("#4b5563")
	ColorScanning = lipgloss.Color("#2563eb")
	ColorArmed    = lipgloss.Color("#d97706")
	ColorSent     = lipgloss.Color("#16a34a")
	ColorFailed   = lipgloss.Color("#dc2626")
	ColorDefault  = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorAccent  = lipgloss.Color("#7c3aed")
)

// StateColor returns the color for a scanner state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "idle":
		return ColorIdle
	case "scanning":
		return ColorScanning
	case "armed":
		return ColorArmed
	default:
		return ColorDefault
	}
}

// StateGlyph returns a Unicode glyph for a scanner state name.
func StateGlyph(state string) string {
	switch state {
	case "idle":
		return "○"
	case "scanning":
		return "◎"
	case "armed":
		return "◉"
	default:
		return "·"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)
)

// PanelStyle is the shared double-border frame for overlays.
func PanelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(ColorBorder)
}
