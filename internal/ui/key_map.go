package ui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/desertthunder/spx/internal/session"
)

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	toggle   key.Binding
	next     key.Binding
	prev     key.Binding
	volUp    key.Binding
	volDown  key.Binding
	transfer key.Binding
	unlock   key.Binding
	side     key.Binding
	devices  key.Binding
	login    key.Binding
	logout   key.Binding
	enter    key.Binding
	back     key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		toggle:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		next:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		prev:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
		volUp:    key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "volume up")),
		volDown:  key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "volume down")),
		transfer: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "play here")),
		unlock:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "enable audio")),
		side:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "side button")),
		devices:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "devices")),
		login:    key.NewBinding(key.WithKeys("enter", "l"), key.WithHelp("enter", "log in")),
		logout:   key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "log out")),
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// follow enables the transport bindings only while the device is ready. Transfer stays available
// without a player so it can reconnect.
func (k *keyMap) follow(status session.Status) {
	ready := status == session.Ready
	k.toggle.SetEnabled(ready)
	k.next.SetEnabled(ready)
	k.prev.SetEnabled(ready)
	k.side.SetEnabled(ready)
	k.transfer.SetEnabled(ready || status == session.Disconnected || status == session.Uninitialized)
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.toggle, k.next, k.prev, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.toggle, k.next, k.prev, k.side},
		{k.volUp, k.volDown, k.transfer, k.unlock},
		{k.devices, k.logout, k.quit},
	}
}
