package session

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/spx/internal/shared"
	tu "github.com/desertthunder/spx/internal/testing"
)

func TestInitialUnlockState(t *testing.T) {
	tc := []struct {
		platform shared.Platform
		want     AudioUnlockState
	}{
		{shared.PlatformDesktop, AudioUnlockState{Unlocked: true}},
		{shared.PlatformMobile, AudioUnlockState{NeedsUnlock: true, Message: MsgTapToEnable}},
		{shared.PlatformIOS, AudioUnlockState{NeedsUnlock: true, Message: MsgTapToEnableIOS}},
	}

	for _, tt := range tc {
		t.Run(string(tt.platform), func(t *testing.T) {
			if got := NewGate(tt.platform).State(); got != tt.want {
				t.Errorf("State() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGateEnsureUnlocked(t *testing.T) {
	ctx := context.Background()

	t.Run("no player", func(t *testing.T) {
		g := NewGate(shared.PlatformDesktop)
		if g.EnsureUnlocked(ctx, nil) {
			t.Error("expected false without a player")
		}
	})

	t.Run("already unlocked skips activation", func(t *testing.T) {
		g := NewGate(shared.PlatformDesktop)
		ap := tu.NewActivatingPlayer(0.5, errors.New("should not be called"))
		if !g.EnsureUnlocked(ctx, ap) {
			t.Error("expected true")
		}
		if ap.Activations != 0 {
			t.Error("activation should be skipped")
		}
	})

	t.Run("no activator marks unlocked", func(t *testing.T) {
		g := NewGate(shared.PlatformMobile)
		if !g.EnsureUnlocked(ctx, tu.NewFakePlayer(0.5)) {
			t.Error("expected true")
		}
		if s := g.State(); !s.Unlocked || s.NeedsUnlock || s.Message != "" {
			t.Errorf("unexpected state %+v", s)
		}
	})

	t.Run("activation failure", func(t *testing.T) {
		tc := []struct {
			platform shared.Platform
			message  string
		}{
			{shared.PlatformIOS, MsgActivationFailedIOS},
			{shared.PlatformMobile, MsgActivationFailed},
		}
		for _, tt := range tc {
			g := NewGate(tt.platform)
			if g.EnsureUnlocked(ctx, tu.NewActivatingPlayer(0.5, errors.New("blocked"))) {
				t.Errorf("%s: expected false", tt.platform)
			}
			if s := g.State(); !s.NeedsUnlock || s.Unlocked || s.Message != tt.message {
				t.Errorf("%s: unexpected state %+v", tt.platform, s)
			}
		}
	})

	t.Run("activation success", func(t *testing.T) {
		g := NewGate(shared.PlatformIOS)
		ap := tu.NewActivatingPlayer(0.5, nil)
		if !g.EnsureUnlocked(ctx, ap) || !g.Unlocked() {
			t.Error("expected unlock")
		}
		if ap.Activations != 1 {
			t.Errorf("expected one activation, got %d", ap.Activations)
		}
	})

	t.Run("block", func(t *testing.T) {
		g := NewGate(shared.PlatformDesktop)
		g.Block()
		if s := g.State(); !s.NeedsUnlock || s.Unlocked || s.Message != MsgAutoplayBlocked {
			t.Errorf("unexpected state %+v", s)
		}
	})
}

func TestGestureRetry(t *testing.T) {
	ctx := context.Background()
	r := &GestureRetry{}

	if r.Gesture(ctx) {
		t.Error("nothing armed")
	}

	var first, second int
	r.Arm(func(context.Context) bool { first++; return true })
	r.Arm(func(context.Context) bool { second++; return false })

	r.Gesture(ctx)
	if first != 0 || second != 1 {
		t.Errorf("arming should replace the pending action: first=%d second=%d", first, second)
	}
	if !r.Armed() {
		t.Error("failed action stays armed")
	}

	r.Arm(func(context.Context) bool { return true })
	if !r.Gesture(ctx) || r.Armed() {
		t.Error("successful action should disarm")
	}

	r.Arm(func(context.Context) bool { return false })
	r.Disarm()
	if r.Armed() {
		t.Error("Disarm should drop the action")
	}
}
