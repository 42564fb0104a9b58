package testing

import (
	"context"
	"sync"

	"github.com/desertthunder/spx/internal/player"
)

// FakePlayer is an in-memory [player.Player]. Events pushed with Emit reach the consumer of Events.
type FakePlayer struct {
	mu sync.Mutex

	Opts         player.Options
	ConnectErr   error
	ResumeErr    error
	VolumeValue  float64
	VolumeErr    error
	Connected    int
	Disconnected int
	Resumes      int
	SetVolumes   []float64

	events chan player.Event
	closed bool
}

// NewFakePlayer creates a [FakePlayer] reporting volume v.
func NewFakePlayer(v float64) *FakePlayer {
	return &FakePlayer{VolumeValue: v, events: make(chan player.Event, 16)}
}

func (f *FakePlayer) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connected++
	return f.ConnectErr
}

func (f *FakePlayer) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Disconnected++
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}

func (f *FakePlayer) Resume(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Resumes++
	return f.ResumeErr
}

func (f *FakePlayer) SetVolume(_ context.Context, v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetVolumes = append(f.SetVolumes, v)
	return nil
}

func (f *FakePlayer) Volume(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.VolumeValue, f.VolumeErr
}

func (f *FakePlayer) Events() <-chan player.Event {
	return f.events
}

// Emit delivers ev unless the player is disconnected.
func (f *FakePlayer) Emit(ev player.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.events <- ev
	}
}

// ResumeCount returns the number of Resume calls.
func (f *FakePlayer) ResumeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Resumes
}

// DisconnectCount returns the number of Disconnect calls.
func (f *FakePlayer) DisconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Disconnected
}

// ActivatingPlayer is a [FakePlayer] that also implements [player.Activator].
type ActivatingPlayer struct {
	*FakePlayer
	ActivateErr error
	Activations int
}

// NewActivatingPlayer creates an [ActivatingPlayer] whose activation returns err.
func NewActivatingPlayer(v float64, err error) *ActivatingPlayer {
	return &ActivatingPlayer{FakePlayer: NewFakePlayer(v), ActivateErr: err}
}

func (a *ActivatingPlayer) Activate(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Activations++
	return a.ActivateErr
}

// SetActivateErr changes the activation result.
func (a *ActivatingPlayer) SetActivateErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ActivateErr = err
}

// Factory returns a [player.Factory] that hands out players in order and records the options used.
func Factory(players ...player.Player) (player.Factory, *int) {
	calls := 0
	return func(opts player.Options) (player.Player, error) {
		p := players[calls%len(players)]
		calls++
		if fp, ok := p.(*FakePlayer); ok {
			fp.Opts = opts
		}
		if ap, ok := p.(*ActivatingPlayer); ok {
			ap.Opts = opts
		}
		return p, nil
	}, &calls
}
