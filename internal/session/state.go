package session

import (
	"github.com/desertthunder/spx/internal/player"
)

// AutoResumeWindow bounds the positions (exclusive, in ms) at which a spurious pause is undone.
const AutoResumeWindow = 15000

// Status is the lifecycle of the playback session.
type Status int

const (
	Uninitialized Status = iota
	Connecting
	Ready
	NotReady
	Disconnected
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case NotReady:
		return "not_ready"
	case Disconnected:
		return "disconnected"
	default:
		return "uninitialized"
	}
}

// PlaybackState is what the UI renders. It is never persisted.
type PlaybackState struct {
	Paused      bool
	Position    int
	Duration    int
	TrackName   string
	Artists     string
	AlbumArtURL string
}

// DefaultPlaybackState is the state before any notification: paused at 0/0 with no track.
func DefaultPlaybackState() PlaybackState {
	return PlaybackState{Paused: true}
}

// Merge applies the reported fields of s and leaves the rest unchanged.
func (p PlaybackState) Merge(s player.State) PlaybackState {
	if s.Paused != nil {
		p.Paused = *s.Paused
	}
	if s.Position != nil {
		p.Position = *s.Position
	}
	if s.Duration != nil {
		p.Duration = *s.Duration
	}
	if s.TrackName != nil {
		p.TrackName = *s.TrackName
	}
	if s.Artists != nil {
		p.Artists = *s.Artists
	}
	if s.AlbumArtURL != nil {
		p.AlbumArtURL = *s.AlbumArtURL
	}
	return p
}

// ShouldAutoResume reports whether a notification looks like a spurious pause: paused, not by the user,
// resumable, and early in the track.
func ShouldAutoResume(s player.State) bool {
	if s.Paused == nil || !*s.Paused {
		return false
	}
	if s.PausedByUser || len(s.DisallowResuming) > 0 {
		return false
	}
	if s.Position == nil {
		return false
	}
	pos := *s.Position
	return pos > 0 && pos < AutoResumeWindow
}
