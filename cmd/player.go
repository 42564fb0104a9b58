package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/spx/internal/control"
	"github.com/desertthunder/spx/internal/formatter"
	"github.com/desertthunder/spx/internal/shared"
	"github.com/urfave/cli/v3"
)

// withSurface runs fn against the control surface using the stored login.
func (r *Runner) withSurface(ctx context.Context, fn func(context.Context, *stack) error) error {
	st, err := r.build(stackOpts{})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ctrl.Restore(ctx); err != nil {
		return fmt.Errorf("%w: run 'spx auth login' first (%v)", shared.ErrNotAuthenticated, err)
	}
	return fn(ctx, st)
}

// PlayerPlay resumes playback on the active device.
func (r *Runner) PlayerPlay(ctx context.Context, cmd *cli.Command) error {
	return r.withSurface(ctx, func(ctx context.Context, st *stack) error {
		if err := st.ctrl.Surface().Play(ctx); err != nil {
			return err
		}
		return r.writePlain("▶ Playing\n")
	})
}

// PlayerPause pauses the active device.
func (r *Runner) PlayerPause(ctx context.Context, cmd *cli.Command) error {
	return r.withSurface(ctx, func(ctx context.Context, st *stack) error {
		if err := st.ctrl.Surface().Pause(ctx); err != nil {
			return err
		}
		return r.writePlain("⏸ Paused\n")
	})
}

// PlayerNext skips forward.
func (r *Runner) PlayerNext(ctx context.Context, cmd *cli.Command) error {
	return r.withSurface(ctx, func(ctx context.Context, st *stack) error {
		if err := st.ctrl.Surface().Next(ctx); err != nil {
			return err
		}
		return r.writePlain("⏭ Next track\n")
	})
}

// PlayerPrevious skips back.
func (r *Runner) PlayerPrevious(ctx context.Context, cmd *cli.Command) error {
	return r.withSurface(ctx, func(ctx context.Context, st *stack) error {
		if err := st.ctrl.Surface().Previous(ctx); err != nil {
			return err
		}
		return r.writePlain("⏮ Previous track\n")
	})
}

// parsePercent reads a 0-100 volume argument.
func parsePercent(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" {
		return 0, fmt.Errorf("%w: volume percent", shared.ErrMissingArgument)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 100 {
		return 0, fmt.Errorf("%w: volume must be 0-100, got %q", shared.ErrInvalidArgument, s)
	}
	return float64(n) / 100, nil
}

// PlayerVolume sets the active device's volume.
func (r *Runner) PlayerVolume(ctx context.Context, cmd *cli.Command) error {
	v, err := parsePercent(cmd.StringArg("percent"))
	if err != nil {
		return err
	}
	return r.withSurface(ctx, func(ctx context.Context, st *stack) error {
		got, err := st.ctrl.Surface().SetVolume(ctx, v)
		if err != nil {
			return err
		}
		return r.writePlain("Volume: %d%%\n", int(got*100+0.5))
	})
}

// PlayerTransfer moves playback to the given device.
func (r *Runner) PlayerTransfer(ctx context.Context, cmd *cli.Command) error {
	deviceID := cmd.StringArg("device-id")
	if deviceID == "" {
		return fmt.Errorf("%w: device-id (see 'spx player devices')", shared.ErrMissingArgument)
	}
	return r.withSurface(ctx, func(ctx context.Context, st *stack) error {
		if err := st.ctrl.Surface().Transfer(ctx, deviceID); err != nil {
			return err
		}
		return r.writePlain("✓ Playback moved to %s\n", deviceID)
	})
}

// PlayerStatus prints the current playback.
func (r *Runner) PlayerStatus(ctx context.Context, cmd *cli.Command) error {
	return r.withSurface(ctx, func(ctx context.Context, st *stack) error {
		np, err := st.ctrl.Surface().Status(ctx)
		if err != nil {
			return err
		}

		if dir := cmd.String("markdown"); dir != "" {
			result, err := formatter.WriteMarkdownStatus(st.client, np, dir)
			if err != nil {
				return err
			}
			r.logger.Info("wrote status", "files", result.Files)
			return r.writePlain("✓ Wrote %s\n", strings.Join(result.Files, ", "))
		}
		if cmd.Bool("json") {
			return r.writeJSON(np, cmd.Bool("pretty"))
		}
		return r.writeBytes(formatter.NowPlayingToText(np))
	})
}

// PlayerDevices lists the user's Connect devices.
func (r *Runner) PlayerDevices(ctx context.Context, cmd *cli.Command) error {
	return r.withSurface(ctx, func(ctx context.Context, st *stack) error {
		devices, err := st.ctrl.Surface().Devices(ctx)
		if err != nil {
			return err
		}
		return r.writeDevices(devices, cmd.Bool("csv"), cmd.Bool("json"), cmd.Bool("pretty"))
	})
}

func (r *Runner) writeDevices(devices []control.Device, asCSV, asJSON, pretty bool) error {
	switch {
	case asCSV:
		data, err := formatter.DevicesToCSV(devices)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	case asJSON:
		return r.writeJSON(devices, pretty)
	default:
		r.writePlainHeader(fmt.Sprintf("Devices (%d)", len(devices)))
		return r.writeBytes(formatter.DevicesToText(devices))
	}
}
