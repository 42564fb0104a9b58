// Package ui implements the spx terminal player using bubbletea's Elm architecture.
//
// The TUI has three views:
//  1. [LoginView] : Logged out; enter starts the PKCE login in the browser
//  2. [PlayerView] : Track, artists, progress, volume, the audio unlock message and the last error
//  3. [DeviceView] : Connect devices; enter moves playback to the selection
//
// The [Model] never blocks in Update. Every action runs as a [tea.Cmd] against the [Controller], which
// serializes them; session changes arrive as a coalesced signal that the model re-reads a snapshot on.
//
// Every key press counts as a user gesture and is reported before the key's own action, so a pending audio
// unlock retry runs first. Regaining terminal focus counts as returning to the foreground.
//
// The side button (s) mirrors a hardware button: one press toggles playback and two presses within
// [DoublePressWindow] skip to the next track.
package ui
