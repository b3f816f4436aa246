package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the scanner.
type KeyMap struct {
	Open    key.Binding
	Trigger key.Binding
	Exit    key.Binding
	Up      key.Binding
	Down    key.Binding
	Filter  key.Binding
	Escape  key.Binding
	History key.Binding
	Debug   key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open scanner"),
		),
		Trigger: key.NewBinding(
			key.WithKeys(" ", "t"),
			key.WithHelp("space/t", "arm for one scan"),
		),
		Exit: key.NewBinding(
			key.WithKeys("x", "backspace"),
			key.WithHelp("x", "close scanner"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll down"),
		),
		Filter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "event log: scans only"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		History: key.NewBinding(
			key.WithKeys("h"),
			key.WithHelp("h", "recent scans"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "event log"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Bindings lists the bindings shown in the help overlay.
func (k KeyMap) Bindings() []key.Binding {
	return []key.Binding{k.Open, k.Trigger, k.Exit, k.History, k.Debug, k.Filter, k.Help, k.Escape, k.Quit}
}
