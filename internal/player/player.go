// Package player defines the playback device capability spx drives and the events it emits.
//
// A [Player] is created once per session by a [Factory], connected, and then observed through its event
// channel. Events form a closed union; the session manager dispatches them through a single switch.
package player

import (
	"context"
)

// DefaultVolume is the initial volume handed to new players and restored on logout.
const DefaultVolume = 0.7

// TokenFunc yields the current access token. It is consulted on every request so refreshed
// tokens are picked up without recreating the player.
type TokenFunc func(ctx context.Context) (string, error)

// Options are the construction parameters of a [Player].
type Options struct {
	Name   string
	Token  TokenFunc
	Volume float64
}

// Factory creates a player. The session manager calls it at most once.
type Factory func(opts Options) (Player, error)

// Player is a playback device.
type Player interface {
	// Connect starts the device handshake; readiness is reported through [Ready].
	Connect(ctx context.Context) error
	// Disconnect stops event delivery and closes the event channel.
	Disconnect()
	Resume(ctx context.Context) error
	SetVolume(ctx context.Context, volume float64) error
	Volume(ctx context.Context) (float64, error)
	Events() <-chan Event
}

// Activator is implemented by players whose audio output must be unlocked by a user gesture.
type Activator interface {
	Activate(ctx context.Context) error
}

// Event is one of [Ready], [NotReady], [InitializationError], [AuthenticationError], [AccountError],
// [AutoplayFailed] or [StateChanged].
type Event interface {
	event()
}

type Ready struct {
	DeviceID string
}

type NotReady struct {
	DeviceID string
}

type InitializationError struct {
	Message string
}

type AuthenticationError struct {
	Message string
}

type AccountError struct {
	Message string
}

// AutoplayFailed is emitted when the device refused to start audio without a gesture.
type AutoplayFailed struct{}

// StateChanged carries a partial playback state.
type StateChanged struct {
	State State
}

func (Ready) event()               {}
func (NotReady) event()            {}
func (InitializationError) event() {}
func (AuthenticationError) event() {}
func (AccountError) event()        {}
func (AutoplayFailed) event()      {}
func (StateChanged) event()        {}

// State is a playback notification. Nil fields were not reported and must be left unchanged by consumers.
type State struct {
	Paused      *bool
	Position    *int
	Duration    *int
	TrackName   *string
	Artists     *string
	AlbumArtURL *string

	// PausedByUser marks a pause attributable to an explicit user action.
	PausedByUser bool
	// DisallowResuming lists the reasons the device refuses to resume, if any.
	DisallowResuming []string
}

// Ptr returns a pointer to v, for building [State] values.
func Ptr[T any](v T) *T {
	return &v
}
