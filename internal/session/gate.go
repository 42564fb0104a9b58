package session

import (
	"context"
	"sync"

	"github.com/desertthunder/spx/internal/player"
	"github.com/desertthunder/spx/internal/shared"
)

// User-facing audio unlock messages.
const (
	MsgTapToEnable         = "Tap the volume icon to enable audio"
	MsgTapToEnableIOS      = "Tap the volume icon to enable audio on iOS"
	MsgActivationFailed    = "Audio is still blocked. Tap the volume icon again."
	MsgActivationFailedIOS = "Unable to enable audio. Please tap the volume icon again."
	MsgAutoplayBlocked     = "Playback is blocked until audio is enabled. Tap the volume icon."
	MsgAutoplayBlockedIOS  = "Playback is blocked until you enable audio. Tap the volume icon."
)

// AudioUnlockState is derived from the last unlock attempt.
type AudioUnlockState struct {
	NeedsUnlock bool
	Unlocked    bool
	Message     string
}

// Gate tracks whether audio output has been unlocked by a gesture.
type Gate struct {
	platform shared.Platform

	mu    sync.Mutex
	state AudioUnlockState
}

// NewGate creates a gate in the platform's initial state: mobile platforms start locked.
func NewGate(platform shared.Platform) *Gate {
	g := &Gate{platform: platform}
	g.Reset()
	return g
}

// InitialUnlockState returns the state a fresh session starts in on platform.
func InitialUnlockState(platform shared.Platform) AudioUnlockState {
	switch platform {
	case shared.PlatformIOS:
		return AudioUnlockState{NeedsUnlock: true, Message: MsgTapToEnableIOS}
	case shared.PlatformMobile:
		return AudioUnlockState{NeedsUnlock: true, Message: MsgTapToEnable}
	default:
		return AudioUnlockState{Unlocked: true}
	}
}

// Reset restores the platform's initial state.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = InitialUnlockState(g.platform)
}

// State returns the current unlock state.
func (g *Gate) State() AudioUnlockState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Unlocked reports whether audible actions may proceed without activation.
func (g *Gate) Unlocked() bool {
	return g.State().Unlocked
}

func (g *Gate) set(s AudioUnlockState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
}

// Block marks audio as locked after the device refused to autoplay.
func (g *Gate) Block() {
	msg := MsgAutoplayBlocked
	if g.platform == shared.PlatformIOS {
		msg = MsgAutoplayBlockedIOS
	}
	g.set(AudioUnlockState{NeedsUnlock: true, Message: msg})
}

// EnsureUnlocked activates p's audio output if needed and reports whether audible actions may proceed.
//
// Without a player nothing can be unlocked. A player without an [player.Activator] needs no unlock.
func (g *Gate) EnsureUnlocked(ctx context.Context, p player.Player) bool {
	if p == nil {
		return false
	}
	if g.Unlocked() {
		return true
	}

	activator, ok := p.(player.Activator)
	if !ok {
		g.set(AudioUnlockState{Unlocked: true})
		return true
	}

	if err := activator.Activate(ctx); err != nil {
		msg := MsgActivationFailed
		if g.platform == shared.PlatformIOS {
			msg = MsgActivationFailedIOS
		}
		g.set(AudioUnlockState{NeedsUnlock: true, Message: msg})
		return false
	}

	g.set(AudioUnlockState{Unlocked: true})
	return true
}

// GestureRetry holds at most one action to run on the next user gesture.
//
// Arming replaces any pending action. The action stays armed until a run reports success.
type GestureRetry struct {
	mu      sync.Mutex
	pending func(context.Context) bool
	gen     uint64
}

// Arm installs fn as the pending action.
func (r *GestureRetry) Arm(fn func(context.Context) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = fn
	r.gen++
}

// Armed reports whether an action is pending.
func (r *GestureRetry) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != nil
}

// Disarm drops the pending action.
func (r *GestureRetry) Disarm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = nil
	r.gen++
}

// Gesture runs the pending action, if any, and disarms it when it succeeds.
// It reports whether an action ran and succeeded.
func (r *GestureRetry) Gesture(ctx context.Context) bool {
	r.mu.Lock()
	fn, gen := r.pending, r.gen
	r.mu.Unlock()

	if fn == nil {
		return false
	}
	if !fn(ctx) {
		return false
	}

	r.mu.Lock()
	if r.gen == gen {
		r.pending = nil
	}
	r.mu.Unlock()
	return true
}
