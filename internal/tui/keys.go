package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the status page key bindings with built-in help text.
type KeyMap struct {
	Quit          key.Binding
	Help          key.Binding
	Backup        key.Binding
	Refresh       key.Binding
	ToggleEnabled key.Binding
	ToggleLog     key.Binding
	LimitUp       key.Binding
	LimitDown     key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?", "h"),
			key.WithHelp("?", "help"),
		),
		Backup: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "backup now"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		ToggleEnabled: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "toggle backup on start"),
		),
		ToggleLog: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "toggle logging"),
		),
		LimitUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "keep more"),
		),
		LimitDown: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "keep fewer"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Backup, k.Refresh, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Backup, k.Refresh},
		{k.ToggleEnabled, k.ToggleLog},
		{k.LimitUp, k.LimitDown},
		{k.Help, k.Quit},
	}
}
