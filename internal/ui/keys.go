package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Record   key.Binding
	Quick    key.Binding
	Pause    key.Binding
	Discard  key.Binding
	Play     key.Binding
	Stop     key.Binding
	Export   key.Binding
	Filter   key.Binding
	Help     key.Binding
	Settings key.Binding
	Quit     key.Binding
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	Enter    key.Binding
	Escape   key.Binding
	Toggle   key.Binding
	Clear    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Record, k.Quick, k.Play, k.Filter, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Record, k.Quick, k.Pause, k.Discard},
		{k.Play, k.Stop, k.Up, k.Down},
		{k.Filter, k.Export, k.Settings, k.Help, k.Quit},
	}
}

var keys = keyMap{
	Record: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "record/finish"),
	),
	Quick: key.NewBinding(
		key.WithKeys("."),
		key.WithHelp(".", "quick capture hold/release"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause/resume rec"),
	),
	Discard: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "discard rec"),
	),
	Play: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "play/pause"),
	),
	Stop: key.NewBinding(
		key.WithKeys("ctrl+x"),
		key.WithHelp("ctrl+x", "stop"),
	),
	Export: key.NewBinding(
		key.WithKeys("ctrl+e"),
		key.WithHelp("ctrl+e", "export"),
	),
	Filter: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "filter"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Settings: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "settings"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Left: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "left"),
	),
	Right: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "right"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
	),
	Escape: key.NewBinding(
		key.WithKeys("esc"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" ", "enter"),
		key.WithHelp("space", "toggle"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear"),
	),
}

// entryKeyMap is active on the entry form, where letters are text input.
type entryKeyMap struct {
	Next    key.Binding
	Prev    key.Binding
	Play    key.Binding
	Save    key.Binding
	Cancel  key.Binding
	Confirm key.Binding
	Deny    key.Binding
}

func (k entryKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Play, k.Save, k.Cancel}
}

func (k entryKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Next, k.Prev, k.Play, k.Save, k.Cancel}}
}

var entryKeys = entryKeyMap{
	Next: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next field"),
	),
	Prev: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "previous field"),
	),
	Play: key.NewBinding(
		key.WithKeys("ctrl+p"),
		key.WithHelp("ctrl+p", "play/pause"),
	),
	Save: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "save"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "leave"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "discard"),
	),
	Deny: key.NewBinding(
		key.WithKeys("n", "esc"),
		key.WithHelp("n", "keep editing"),
	),
}
