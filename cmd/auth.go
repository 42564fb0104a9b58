package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/spx/internal/schedule"
	"github.com/desertthunder/spx/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin runs the PKCE login: it listens for the redirect, opens the authorization page and waits.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	st, err := r.build(stackOpts{NoBrowser: cmd.Bool("no-browser")})
	if err != nil {
		return err
	}
	defer st.Close()

	pending, err := st.ctrl.StartLogin(ctx)
	if pending == nil {
		return err
	}
	if err != nil {
		r.logger.Warn("could not open browser", "error", err)
	}

	r.writePlain("Open this URL to authorize spx:\n\n  %s\n\n", pending.URL())
	r.writePlain("Waiting for the redirect on %s ...\n", r.callbackAddr())

	waitCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()
	if err := pending.Wait(waitCtx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	r.logger.Info("authentication successful")
	return r.writePlain("✓ Logged in to Spotify\n")
}

type authStatus struct {
	LoggedIn        bool       `json:"logged_in"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	RefreshIn       string     `json:"refresh_in,omitempty"`
}

// AuthStatus reports the stored login. An expired login is renewed first, like at startup.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	st, err := r.build(stackOpts{})
	if err != nil {
		return err
	}
	defer st.Close()

	status := authStatus{}
	if err := st.ctrl.Restore(ctx); err != nil && !errors.Is(err, shared.ErrNotAuthenticated) {
		r.logger.Warn("stored login could not be renewed", "error", err)
	}
	if b, ok := st.ctrl.Bundle(); ok {
		expires := b.ExpiresAt(0)
		status = authStatus{
			LoggedIn:        true,
			ExpiresAt:       &expires,
			HasRefreshToken: b.HasRefreshToken(),
			RefreshIn:       schedule.Delay(b, time.Now()).Round(time.Second).String(),
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, cmd.Bool("pretty"))
	}
	return r.writeAuthStatus(status)
}

func (r *Runner) writeAuthStatus(status authStatus) error {
	if !status.LoggedIn {
		return r.writePlain("✗ Not logged in. Run 'spx auth login'.\n")
	}

	r.writePlain("✓ Logged in to Spotify\n")
	r.writePlain("Expires: %s\n", status.ExpiresAt.Local().Format(time.RFC1123))
	if status.HasRefreshToken {
		r.writePlain("Refresh: in %s\n", status.RefreshIn)
	} else {
		r.writePlain("Refresh: unavailable (log in again when it expires)\n")
	}
	return nil
}

// AuthLogout clears the stored login.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	st, err := r.build(stackOpts{})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ctrl.Logout(ctx); err != nil {
		return fmt.Errorf("failed to clear saved login: %w", err)
	}
	return r.writePlain("✓ Logged out\n")
}
