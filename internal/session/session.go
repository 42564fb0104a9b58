// Package session owns the playback session: the single player instance, the device handshake, device
// transfer and the reconciliation of player events into UI state.
//
// All player events go through [Manager.Reconcile]. The manager's lock guards its fields only and is
// never held across calls to the player or the control plane, so each reaction works from one consistent
// snapshot taken at its start.
package session

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spx/internal/player"
	"github.com/desertthunder/spx/internal/shared"
)

const (
	// AutoResumeDelay is the pause before undoing a spurious pause.
	AutoResumeDelay = 100 * time.Millisecond
	// TransferNudgeDelay is the pause before resuming after a transfer so the device can accept commands.
	TransferNudgeDelay = 400 * time.Millisecond
	// VolumeStep is one volume key press.
	VolumeStep = 0.05
)

// Transferrer moves playback to a device on the control plane.
type Transferrer interface {
	Transfer(ctx context.Context, deviceID string) error
}

// After runs f once d has elapsed.
type After func(d time.Duration, f func())

func realAfter(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Config holds the collaborators of a [Manager].
type Config struct {
	Name     string
	Volume   float64
	Platform shared.Platform
	Factory  player.Factory
	Logger   *log.Logger

	// AutoTransfer enables the re-transfer policy on ready and on foreground visibility.
	AutoTransfer bool
	// After schedules delayed resumes; defaults to [time.AfterFunc].
	After After
}

// View is a snapshot for rendering.
type View struct {
	Status   Status
	DeviceID string
	Playback PlaybackState
	Volume   float64
	Unlock   AudioUnlockState
	Error    string
	Visible  bool
}

// Manager is the playback session state machine.
type Manager struct {
	cfg     Config
	gate    *Gate
	retry   *GestureRetry
	logger  *log.Logger
	after   After
	updates chan struct{}

	mu         sync.Mutex
	control    Transferrer
	player     player.Player
	token      player.TokenFunc
	status     Status
	deviceID   string
	playback   PlaybackState
	volume     float64
	message    string
	visible    bool
	resumeOwed bool
	readyCh    chan struct{}
}

// New creates an uninitialized [Manager].
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = shared.NewLogger(nil)
	}
	if cfg.After == nil {
		cfg.After = realAfter
	}
	if cfg.Volume <= 0 || math.IsNaN(cfg.Volume) {
		cfg.Volume = player.DefaultVolume
	}

	m := &Manager{
		cfg:     cfg,
		gate:    NewGate(cfg.Platform),
		retry:   &GestureRetry{},
		logger:  shared.WithLogger(cfg.Logger, "component", "session"),
		after:   cfg.After,
		updates: make(chan struct{}, 1),
	}
	m.resetLocked()
	return m
}

// SetControl wires the control plane used by [Manager.Transfer].
func (m *Manager) SetControl(t Transferrer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.control = t
}

// Updates signals (coalesced) whenever the view changes.
func (m *Manager) Updates() <-chan struct{} {
	return m.updates
}

func (m *Manager) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

// resetLocked restores initial defaults. It must be called with mu held (or before m is shared).
func (m *Manager) resetLocked() {
	m.player = nil
	m.token = nil
	m.deviceID = ""
	m.playback = DefaultPlaybackState()
	m.volume = player.DefaultVolume
	if m.status != Uninitialized {
		m.status = Disconnected
	}
	m.message = ""
	m.visible = false
	m.resumeOwed = false
	m.readyCh = make(chan struct{})

	m.gate.Reset()
	m.retry.Disarm()
	if m.cfg.Platform.IsMobile() {
		m.retry.Arm(m.retryUnlock)
	}
}

// Init creates and connects the session's player. It is a no-op while a player exists. A player that
// fails to connect is dropped so a later Init can retry.
func (m *Manager) Init(ctx context.Context, token player.TokenFunc) error {
	if token == nil {
		return shared.ErrNotAuthenticated
	}
	if at, err := token(ctx); err != nil || at == "" {
		return shared.ErrNotAuthenticated
	}

	m.mu.Lock()
	if m.player != nil {
		m.mu.Unlock()
		return nil
	}
	p, err := m.cfg.Factory(player.Options{Name: m.cfg.Name, Token: token, Volume: m.cfg.Volume})
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to create player: %w", err)
	}
	m.player = p
	m.token = token
	m.status = Connecting
	m.mu.Unlock()
	m.notify()

	go m.pump(p)

	if err := p.Connect(ctx); err != nil {
		m.logger.Warn("player connect failed", "error", err)
		m.mu.Lock()
		if m.player == p {
			m.player = nil
			m.token = nil
			m.status = Disconnected
		}
		m.mu.Unlock()
		m.notify()
		p.Disconnect()
		return fmt.Errorf("failed to connect player: %w", err)
	}
	return nil
}

// pump feeds p's events into the manager until p disconnects.
func (m *Manager) pump(p player.Player) {
	for ev := range p.Events() {
		m.mu.Lock()
		current := m.player == p
		m.mu.Unlock()
		if !current {
			continue
		}
		m.Reconcile(context.Background(), ev)
	}
}

// WaitReady blocks until the device reports ready or ctx ends.
func (m *Manager) WaitReady(ctx context.Context) error {
	m.mu.Lock()
	ch := m.readyCh
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for device: %w", shared.ErrNoDevice, ctx.Err())
	}
}

// Reconcile applies one player event.
func (m *Manager) Reconcile(ctx context.Context, ev player.Event) {
	defer m.notify()

	switch e := ev.(type) {
	case player.Ready:
		m.onReady(ctx, e)
	case player.NotReady:
		m.mu.Lock()
		m.status = NotReady
		m.mu.Unlock()
		m.logger.Warn("device offline", "device", e.DeviceID)
	case player.InitializationError:
		m.SetError(e.Message)
	case player.AuthenticationError:
		m.SetError(e.Message)
	case player.AccountError:
		m.SetError(e.Message)
	case player.StateChanged:
		m.mu.Lock()
		m.playback = m.playback.Merge(e.State)
		m.mu.Unlock()
		if ShouldAutoResume(e.State) {
			m.logger.Debug("auto-resuming spurious pause", "position", *e.State.Position)
			m.after(AutoResumeDelay, func() { m.resume(context.Background()) })
		}
	case player.AutoplayFailed:
		m.gate.Block()
		m.mu.Lock()
		m.resumeOwed = true
		m.mu.Unlock()
		m.retry.Arm(m.retryUnlock)
	default:
		m.logger.Warn("unknown player event", "event", fmt.Sprintf("%T", ev))
	}
}

func (m *Manager) onReady(ctx context.Context, e player.Ready) {
	m.mu.Lock()
	m.deviceID = e.DeviceID
	m.status = Ready
	m.visible = true
	p := m.player
	fallback := m.volume
	select {
	case <-m.readyCh:
	default:
		close(m.readyCh)
	}
	m.mu.Unlock()

	vol := fallback
	if p != nil {
		if v, err := p.Volume(ctx); err == nil && !math.IsNaN(v) {
			vol = v
		}
	}

	m.mu.Lock()
	m.volume = player.ClampVolume(vol)
	m.mu.Unlock()

	if m.cfg.AutoTransfer && m.hasToken(ctx) {
		if err := m.Transfer(ctx); err != nil {
			m.logger.Warn("transfer on ready failed", "error", err)
		}
	}
}

func (m *Manager) hasToken(ctx context.Context) bool {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()
	if token == nil {
		return false
	}
	at, err := token(ctx)
	return err == nil && at != ""
}

// resume nudges the local player; failures are only logged.
func (m *Manager) resume(ctx context.Context) {
	if err := m.Resume(ctx); err != nil {
		m.logger.Debug("resume failed", "error", err)
	}
}

// Resume asks the player to resume.
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	p := m.player
	m.mu.Unlock()
	if p == nil {
		return shared.ErrNoDevice
	}
	return p.Resume(ctx)
}

// retryUnlock is the shared next-gesture action: unlock, then resume if an autoplay failure is pending.
func (m *Manager) retryUnlock(ctx context.Context) bool {
	if !m.EnsureUnlocked(ctx) {
		return false
	}
	m.mu.Lock()
	owed := m.resumeOwed
	m.resumeOwed = false
	m.mu.Unlock()

	if owed {
		m.resume(ctx)
	}
	return true
}

// EnsureUnlocked runs the audio gate against the current player. A failure arms the next-gesture retry.
func (m *Manager) EnsureUnlocked(ctx context.Context) bool {
	m.mu.Lock()
	p := m.player
	m.mu.Unlock()

	ok := m.gate.EnsureUnlocked(ctx, p)
	if !ok && p != nil {
		m.retry.Arm(m.retryUnlock)
	}
	m.notify()
	return ok
}

// Gesture reports a user gesture, running the pending unlock retry if one is armed.
func (m *Manager) Gesture(ctx context.Context) {
	if m.retry.Gesture(ctx) {
		m.notify()
	}
}

// Transfer makes the session's device active with immediate playback, then nudges a resume.
func (m *Manager) Transfer(ctx context.Context) error {
	m.mu.Lock()
	device, control := m.deviceID, m.control
	m.mu.Unlock()

	if !m.hasToken(ctx) {
		return shared.ErrNotAuthenticated
	}
	if device == "" {
		return shared.ErrNoDevice
	}
	if control == nil {
		return fmt.Errorf("%w: no control plane", shared.ErrInvalidConfig)
	}
	if !m.EnsureUnlocked(ctx) {
		return shared.ErrAudioLocked
	}

	if err := control.Transfer(ctx, device); err != nil {
		m.ReportError(err)
		return err
	}
	m.after(TransferNudgeDelay, func() { m.resume(context.Background()) })
	return nil
}

// Visible is called when the UI regains the foreground.
func (m *Manager) Visible(ctx context.Context) {
	m.mu.Lock()
	ready := m.status == Ready && m.deviceID != ""
	m.mu.Unlock()

	if !m.cfg.AutoTransfer || !ready || !m.hasToken(ctx) {
		return
	}
	if err := m.Transfer(ctx); err != nil {
		m.logger.Warn("transfer on visibility failed", "error", err)
	}
}

// SetVolume clamps v, records it and forwards it to the player. Player failures are ignored.
func (m *Manager) SetVolume(ctx context.Context, v float64) float64 {
	v = player.ClampVolume(v)

	m.mu.Lock()
	m.volume = v
	p := m.player
	m.mu.Unlock()
	m.notify()

	if p != nil {
		if err := p.SetVolume(ctx, v); err != nil {
			m.logger.Debug("set volume failed", "error", err)
		}
	}
	return v
}

// AdjustVolume moves the volume by delta.
func (m *Manager) AdjustVolume(ctx context.Context, delta float64) float64 {
	return m.SetVolume(ctx, m.Volume()+delta)
}

// Reset disconnects the player and restores every default.
func (m *Manager) Reset() {
	m.mu.Lock()
	p := m.player
	m.resetLocked()
	m.mu.Unlock()
	m.notify()

	if p != nil {
		p.Disconnect()
	}
}

// SetError surfaces msg to the user.
func (m *Manager) SetError(msg string) {
	m.mu.Lock()
	m.message = msg
	m.mu.Unlock()
	m.notify()
}

// ReportError surfaces err, if any.
func (m *Manager) ReportError(err error) {
	if err == nil {
		return
	}
	m.SetError(err.Error())
}

// ClearError hides the current error.
func (m *Manager) ClearError() {
	m.SetError("")
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Ready reports whether the device can take transport commands.
func (m *Manager) Ready() bool { return m.Status() == Ready }

func (m *Manager) DeviceID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviceID
}

func (m *Manager) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

func (m *Manager) Playback() PlaybackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playback
}

// Player returns the live player, or nil.
func (m *Manager) Player() player.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.player
}

// Unlock returns the audio unlock state.
func (m *Manager) Unlock() AudioUnlockState {
	return m.gate.State()
}

// RetryArmed reports whether a next-gesture retry is pending.
func (m *Manager) RetryArmed() bool {
	return m.retry.Armed()
}

// View returns a snapshot of everything the UI renders.
func (m *Manager) View() View {
	unlock := m.gate.State()

	m.mu.Lock()
	defer m.mu.Unlock()
	return View{
		Status:   m.status,
		DeviceID: m.deviceID,
		Playback: m.playback,
		Volume:   m.volume,
		Unlock:   unlock,
		Error:    m.message,
		Visible:  m.visible,
	}
}
