// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

func prettyFlag() cli.Flag {
	return &cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output", Value: true}
}

// setupCommand handles first-run configuration and storage setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a config.toml from the bundled template",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   defaultConfigPath,
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the credential database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   defaultConfigPath,
					},
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the latest migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles the Spotify login lifecycle.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Log in to Spotify and manage the stored session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize spx with Spotify (PKCE)",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the redirect",
						Value: 5 * time.Minute,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the stored session, refreshing it when expired",
				Flags:  []cli.Flag{jsonFlag(), prettyFlag()},
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored session",
				Action: r.AuthLogout,
			},
		},
	}
}

// playerCommand issues one-shot commands against the active Spotify Connect device.
func playerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "player",
		Aliases: []string{"p"},
		Usage:   "Control playback on the active device",
		Commands: []*cli.Command{
			{Name: "play", Usage: "Resume playback", Action: r.PlayerPlay},
			{Name: "pause", Usage: "Pause playback", Action: r.PlayerPause},
			{Name: "next", Usage: "Skip to the next track", Action: r.PlayerNext},
			{Name: "prev", Aliases: []string{"previous"}, Usage: "Skip to the previous track", Action: r.PlayerPrevious},
			{
				Name:  "volume",
				Usage: "Set the volume (0-100)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "percent"},
				},
				Action: r.PlayerVolume,
			},
			{
				Name:  "transfer",
				Usage: "Move playback to a device",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "device-id"},
				},
				Action: r.PlayerTransfer,
			},
			{
				Name:  "status",
				Usage: "Show what is playing",
				Flags: []cli.Flag{
					jsonFlag(),
					prettyFlag(),
					&cli.StringFlag{
						Name:  "markdown",
						Usage: "Write README.md and the cover image into this directory",
					},
				},
				Action: r.PlayerStatus,
			},
			{
				Name:  "devices",
				Usage: "List Spotify Connect devices",
				Flags: []cli.Flag{
					jsonFlag(),
					prettyFlag(),
					&cli.BoolFlag{Name: "csv", Usage: "Output CSV"},
				},
				Action: r.PlayerDevices,
			},
		},
	}
}

// tuiCommand launches the interactive player.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Launch the interactive player",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the TUI owns the terminal",
				Value: "~/.spx/spx-tui.log",
			},
		},
		Action: r.TUI,
	}
}
