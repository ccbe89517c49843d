// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output JSON",
		},
	}
}

// setupCommand initializes the database, config file, and local session.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize database, run migrations, and create the local session",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "email",
				Usage: "Email address for the local session",
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "Backend access token for the local session",
			},
		},
		Action: r.Setup,
	}
}

// connectCommand runs the OAuth connect handshake.
func connectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Link your Spotify account via OAuth",
		Flags: []cli.Flag{
			configFlag(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for browser authorization",
			},
		},
		Action: r.Connect,
	}
}

// disconnectCommand severs the Spotify connection.
func disconnectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Unlink your Spotify account and discard stored tokens",
		Flags: []cli.Flag{
			configFlag(),
		},
		Action: r.Disconnect,
	}
}

// statusCommand reports the current connection state.
func statusCommand(r *Runner) *cli.Command {
	flags := []cli.Flag{
		configFlag(),
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Bypass the check cooldown and probe the stored connection",
		},
	}
	flags = append(flags, outputFlags()...)

	return &cli.Command{
		Name:   "status",
		Usage:  "Show Spotify connection status",
		Flags:  flags,
		Action: r.Status,
	}
}

// refreshCommand forces a token refresh.
func refreshCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Refresh the Spotify access token now",
		Flags: []cli.Flag{
			configFlag(),
		},
		Action: r.Refresh,
	}
}

// syncCommand runs a liked-songs sync.
func syncCommand(r *Runner) *cli.Command {
	flags := []cli.Flag{
		configFlag(),
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Re-sync the full library instead of only new tracks",
		},
	}
	flags = append(flags, outputFlags()...)

	return &cli.Command{
		Name:   "sync",
		Usage:  "Sync liked songs to the mako backend",
		Flags:  flags,
		Action: r.Sync,
	}
}

// monitorCommand reports or watches connection health.
func monitorCommand(r *Runner) *cli.Command {
	flags := []cli.Flag{
		configFlag(),
		&cli.BoolFlag{
			Name:  "watch",
			Usage: "Keep monitoring and print each health cycle until interrupted",
		},
	}
	flags = append(flags, outputFlags()...)

	return &cli.Command{
		Name:    "monitor",
		Aliases: []string{"health"},
		Usage:   "Run a health check against the Spotify connection",
		Flags:   flags,
		Action:  r.Monitor,
	}
}

// tuiCommand returns the top-level TUI command for interactive connection management.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive dashboard for the Spotify connection",
		Flags: []cli.Flag{
			configFlag(),
		},
		Action: r.TUI,
	}
}
