package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dashboard key bindings
type KeyMap struct {
	ShowEditor   key.Binding
	OpenPreview  key.Binding
	ClosePreview key.Binding
	Load         key.Binding
	Save         key.Binding
	Reset        key.Binding
	Copy         key.Binding
	ScrollUp     key.Binding
	ScrollDown   key.Binding
	Help         key.Binding
	Quit         key.Binding
}

// NewKeyMap returns the default key bindings
func NewKeyMap() KeyMap {
	return KeyMap{
		ShowEditor: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "show editor"),
		),
		OpenPreview: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "open preview"),
		),
		ClosePreview: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "close preview"),
		),
		Load: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "load file"),
		),
		Save: key.NewBinding(
			key.WithKeys("s", "ctrl+s"),
			key.WithHelp("s", "save file"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset"),
		),
		Copy: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy config"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ShowEditor, k.OpenPreview, k.ClosePreview, k.Save, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ShowEditor, k.OpenPreview, k.ClosePreview},
		{k.Load, k.Save, k.Reset, k.Copy},
		{k.ScrollUp, k.ScrollDown, k.Help, k.Quit},
	}
}
