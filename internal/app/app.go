// Package app ties the login flow, the credential store, the refresh scheduler and the playback session
// into one [Controller] that the CLI and the TUI drive.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spx/internal/auth"
	"github.com/desertthunder/spx/internal/control"
	"github.com/desertthunder/spx/internal/schedule"
	"github.com/desertthunder/spx/internal/server"
	"github.com/desertthunder/spx/internal/session"
	"github.com/desertthunder/spx/internal/shared"
	"github.com/desertthunder/spx/internal/tokens"
)

var errNotReady = fmt.Errorf("%w: player is not ready", shared.ErrNoDevice)

// MsgSessionExpired replaces a rejected-token error at the action boundary.
const MsgSessionExpired = "Spotify session expired. Press L to log in again."

// Authenticator runs the PKCE login and renews bundles.
type Authenticator interface {
	BeginAuth(ctx context.Context) (*auth.Attempt, error)
	Pending(state string) bool
	ExchangeCode(ctx context.Context, state, code string) (tokens.Bundle, error)
	Refresh(ctx context.Context, refreshToken string) (tokens.Bundle, error)
}

type cookiePersister interface {
	PersistCookies()
}

// Options holds the collaborators of a [Controller].
type Options struct {
	Auth     Authenticator
	Store    tokens.Store
	Manager  *session.Manager
	Surface  *control.Surface
	Logger   *log.Logger
	Now      func() time.Time
	Schedule []schedule.Option

	// CallbackAddr is the loopback address that receives the login redirect.
	CallbackAddr string
}

// Controller owns the single live session. Actions are serialized; the bundle has its own lock so the
// player's token lookups never wait on an action in progress.
type Controller struct {
	auth      Authenticator
	store     tokens.Store
	manager   *session.Manager
	surface   *control.Surface
	scheduler *schedule.Scheduler
	logger    *log.Logger
	now       func() time.Time
	addr      string

	actions sync.Mutex

	mu     sync.RWMutex
	bundle *tokens.Bundle
}

// New creates a [Controller]. Surface may be nil for commands that never touch the control plane.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := shared.WithLogger(opts.Logger, "component", "app")

	return &Controller{
		auth:      opts.Auth,
		store:     opts.Store,
		manager:   opts.Manager,
		surface:   opts.Surface,
		scheduler: schedule.New(opts.Auth, opts.Store, opts.Logger, append([]schedule.Option{schedule.WithClock(opts.Now)}, opts.Schedule...)...),
		logger:    logger,
		now:       opts.Now,
		addr:      opts.CallbackAddr,
	}
}

// Token returns the live access token. The player and the control plane call it for every request.
func (c *Controller) Token(context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bundle == nil || c.bundle.AccessToken == "" {
		return "", shared.ErrNotAuthenticated
	}
	return c.bundle.AccessToken, nil
}

// Bundle returns a copy of the live bundle.
func (c *Controller) Bundle() (tokens.Bundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bundle == nil {
		return tokens.Bundle{}, false
	}
	return *c.bundle, true
}

// LoggedIn reports whether a bundle is live.
func (c *Controller) LoggedIn() bool {
	_, ok := c.Bundle()
	return ok
}

func (c *Controller) setBundle(b *tokens.Bundle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundle = b
}

// renewed is the scheduler callback. A renewal that lands after logout is dropped.
func (c *Controller) renewed(b tokens.Bundle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bundle == nil {
		return
	}
	c.bundle = &b
	c.logger.Debug("access token renewed", "expires_in", b.ExpiresIn)
}

// Manager returns the playback session.
func (c *Controller) Manager() *session.Manager { return c.manager }

// Surface returns the control surface, or nil.
func (c *Controller) Surface() *control.Surface { return c.surface }

// Scheduler returns the refresh scheduler.
func (c *Controller) Scheduler() *schedule.Scheduler { return c.scheduler }

// Bootstrap restores a persisted login and starts the session with it.
//
// A valid bundle starts the session directly. An expired bundle with a refresh token is renewed before
// anything else happens; if that fails the persisted bundle is cleared and the user stays logged out. An
// expired bundle without a refresh token leaves the user logged out.
func (c *Controller) Bootstrap(ctx context.Context) error {
	c.actions.Lock()
	defer c.actions.Unlock()

	b, ok, err := c.restore(ctx)
	if !ok {
		return err
	}
	return c.begin(ctx, b)
}

// Restore makes the persisted login live without arming refreshes or creating a player. One-shot commands
// use it to borrow the saved credentials.
func (c *Controller) Restore(ctx context.Context) error {
	c.actions.Lock()
	defer c.actions.Unlock()

	b, ok, err := c.restore(ctx)
	if !ok {
		if err == nil {
			err = shared.ErrNotAuthenticated
		}
		return err
	}
	c.setBundle(&b)
	return nil
}

// restore loads the persisted bundle, renewing it when expired.
func (c *Controller) restore(ctx context.Context) (tokens.Bundle, bool, error) {
	saved, ok := c.store.Load()
	if !ok {
		c.logger.Debug("no saved login")
		return tokens.Bundle{}, false, nil
	}

	if !tokens.IsExpired(saved, c.now(), tokens.DefaultSkew) {
		if p, ok := c.store.(cookiePersister); ok {
			p.PersistCookies()
		}
		return saved, true, nil
	}

	if !saved.HasRefreshToken() {
		c.logger.Info("saved login expired without a refresh token")
		return tokens.Bundle{}, false, nil
	}

	c.logger.Info("saved login expired; refreshing")
	renewed, err := c.auth.Refresh(ctx, saved.RefreshToken)
	if err != nil {
		c.logger.Warn("refresh of saved login failed", "error", err)
		if cerr := c.store.Clear(); cerr != nil {
			c.logger.Warn("failed to clear saved login", "error", cerr)
		}
		return tokens.Bundle{}, false, err
	}
	if err := c.store.Save(renewed); err != nil {
		c.logger.Warn("failed to persist refreshed login", "error", err)
	}
	return renewed, true, nil
}

// begin installs b, arms the refresh chain and starts the player.
func (c *Controller) begin(ctx context.Context, b tokens.Bundle) error {
	c.setBundle(&b)
	c.scheduler.Schedule(b, c.renewed)

	if err := c.manager.Init(ctx, c.Token); err != nil {
		c.manager.ReportError(err)
		return err
	}
	return nil
}

// Login starts a PKCE attempt and opens the authorization page.
func (c *Controller) Login(ctx context.Context) (*auth.Attempt, error) {
	c.actions.Lock()
	defer c.actions.Unlock()

	attempt, err := c.auth.BeginAuth(ctx)
	if err != nil {
		c.manager.ReportError(err)
		return attempt, err
	}
	c.manager.ClearError()
	return attempt, nil
}

// CompleteLogin exchanges the redirect's code, saves the bundle and starts the session.
func (c *Controller) CompleteLogin(ctx context.Context, state, code string) error {
	c.actions.Lock()
	defer c.actions.Unlock()

	b, err := c.auth.ExchangeCode(ctx, state, code)
	if err != nil {
		c.manager.ReportError(err)
		return err
	}
	if err := c.store.Save(b); err != nil {
		c.logger.Warn("failed to persist login", "error", err)
	}
	c.logger.Info("logged in", "expires_in", b.ExpiresIn)

	// The login stands even when no player could be attached; begin already surfaced why.
	if err := c.begin(ctx, b); err != nil {
		c.logger.Warn("player did not start after login", "error", err)
	}
	return nil
}

// PendingLogin is a login attempt waiting for its redirect.
type PendingLogin struct {
	attempt *auth.Attempt
	srv     *server.CallbackServer
}

// URL returns the authorization page of the attempt.
func (p *PendingLogin) URL() string { return p.attempt.URL }

// Wait blocks until the redirect completes the login or ctx ends.
func (p *PendingLogin) Wait(ctx context.Context) error { return p.srv.Wait(ctx) }

// StartLogin starts the callback listener, then begins an attempt and opens its authorization page.
//
// When only the navigation failed, the returned login is still usable and the error says so; the caller
// should show [PendingLogin.URL] instead.
func (c *Controller) StartLogin(ctx context.Context) (*PendingLogin, error) {
	h := server.NewCallbackHandler(c.auth.Pending, c.CompleteLogin)
	srv, err := server.StartCallbackServer(c.addr, h, c.logger)
	if err != nil {
		c.manager.ReportError(err)
		return nil, err
	}

	attempt, err := c.Login(ctx)
	if attempt == nil {
		if cerr := srv.Close(); cerr != nil {
			c.logger.Warn("error shutting down server", "error", cerr)
		}
		return nil, err
	}
	return &PendingLogin{attempt: attempt, srv: srv}, err
}

// Logout forgets the login everywhere and restores session defaults.
func (c *Controller) Logout(context.Context) error {
	c.actions.Lock()
	defer c.actions.Unlock()

	c.scheduler.Cancel()
	c.setBundle(nil)
	err := c.store.Clear()
	if err != nil {
		c.logger.Warn("failed to clear saved login", "error", err)
	}
	c.manager.Reset()
	c.logger.Info("logged out")
	return err
}

// Do runs one user action. Any previous error is hidden first and a failure becomes the single visible
// message.
func (c *Controller) Do(ctx context.Context, action func(context.Context) error) error {
	c.actions.Lock()
	defer c.actions.Unlock()

	c.manager.ClearError()
	err := action(ctx)
	if err != nil {
		c.showError(err)
	}
	return err
}

func (c *Controller) showError(err error) {
	var cpe *control.ControlPlaneError
	switch {
	case errors.As(err, &cpe) && cpe.Unauthorized():
		c.manager.SetError(MsgSessionExpired)
	case errors.Is(err, shared.ErrAudioLocked):
		// the gate already shows its own message
	default:
		c.manager.ReportError(err)
	}
}

// transport runs a playback command, refusing it while the device is not ready.
func (c *Controller) transport(ctx context.Context, action func(context.Context) error) error {
	if c.surface == nil {
		return shared.ErrNotAuthenticated
	}
	return c.Do(ctx, func(ctx context.Context) error {
		if !c.manager.Ready() {
			return errNotReady
		}
		return action(ctx)
	})
}

// TogglePlay plays when paused and pauses otherwise.
func (c *Controller) TogglePlay(ctx context.Context) error {
	return c.transport(ctx, func(ctx context.Context) error {
		return c.surface.Toggle(ctx, c.manager.Playback().Paused)
	})
}

// Next skips forward.
func (c *Controller) Next(ctx context.Context) error {
	return c.transport(ctx, func(ctx context.Context) error { return c.surface.Next(ctx) })
}

// Previous skips back.
func (c *Controller) Previous(ctx context.Context) error {
	return c.transport(ctx, func(ctx context.Context) error { return c.surface.Previous(ctx) })
}

// Transfer moves playback to the session's device. Without a player it reconnects instead, and the
// transfer follows once the device reports ready.
func (c *Controller) Transfer(ctx context.Context) error {
	return c.Do(ctx, func(ctx context.Context) error {
		if c.manager.Player() == nil {
			if !c.LoggedIn() {
				return shared.ErrNotAuthenticated
			}
			return c.manager.Init(ctx, c.Token)
		}
		if !c.manager.Ready() {
			return errNotReady
		}
		return c.manager.Transfer(ctx)
	})
}

// Unlock runs the audio unlock gate.
func (c *Controller) Unlock(ctx context.Context) error {
	return c.Do(ctx, func(ctx context.Context) error {
		if !c.manager.EnsureUnlocked(ctx) {
			return shared.ErrAudioLocked
		}
		return nil
	})
}

// AdjustVolume moves the volume by delta and returns the new level.
func (c *Controller) AdjustVolume(ctx context.Context, delta float64) float64 {
	c.actions.Lock()
	defer c.actions.Unlock()
	return c.manager.AdjustVolume(ctx, delta)
}

// TransferTo makes another Connect device active.
func (c *Controller) TransferTo(ctx context.Context, deviceID string) error {
	if c.surface == nil {
		return shared.ErrNotAuthenticated
	}
	return c.Do(ctx, func(ctx context.Context) error {
		return c.surface.Transfer(ctx, deviceID)
	})
}

// Devices lists the account's Connect devices.
func (c *Controller) Devices(ctx context.Context) ([]control.Device, error) {
	if c.surface == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return c.surface.Devices(ctx)
}

// Snapshot returns what the UI renders.
func (c *Controller) Snapshot() session.View { return c.manager.View() }

// Updates signals view changes.
func (c *Controller) Updates() <-chan struct{} { return c.manager.Updates() }

// Gesture forwards a user gesture to the session.
func (c *Controller) Gesture(ctx context.Context) {
	c.manager.Gesture(ctx)
}

// Visible reports that the UI returned to the foreground.
func (c *Controller) Visible(ctx context.Context) {
	c.manager.Visible(ctx)
}

// Close stops background work without touching the persisted login.
func (c *Controller) Close() {
	c.scheduler.Cancel()
	c.manager.Reset()
}
