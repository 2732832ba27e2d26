// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

// generateCommand runs the engine on a prompt
func generateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Aliases:   []string{"gen"},
		Usage:     "Generate a playlist from a prompt",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "target",
				Aliases: []string{"n"},
				Usage:   "Number of tracks (defaults to engine.default_target)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: txt, json, csv or markdown",
				Value:   "txt",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the playlist to a file instead of stdout",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Playlist name used for exports and publishing (defaults to the prompt)",
			},
			&cli.StringFlag{
				Name:  "market",
				Usage: "Catalog market (defaults to catalog.market)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Artist to leave out (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "priority",
				Usage: "Artist to favour when balancing (repeatable)",
			},
			&cli.IntFlag{
				Name:  "max-per-artist",
				Usage: "Cap on tracks per artist",
			},
			&cli.BoolFlag{
				Name:  "allow-consecutive",
				Usage: "Allow the same artist twice in a row",
			},
			&cli.BoolFlag{
				Name:  "shuffle",
				Usage: "Shuffle the final order",
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Create the playlist on Spotify (needs credentials.spotify.refresh_token)",
			},
			&cli.BoolFlag{
				Name:  "public",
				Usage: "Make a published playlist public",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Do not log progress",
			},
		},
		Action: r.Generate,
	}
}

// resolveCommand resolves artist names against the catalog
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve artist names to catalog artists",
		ArgsUsage: "<name> [name...]",
		Flags: append(outputFlags(),
			&cli.StringFlag{
				Name:  "market",
				Usage: "Catalog market (defaults to catalog.market)",
			},
		),
		Action: r.Resolve,
	}
}

// consensusCommand collects tracks shared across public playlists
func consensusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "consensus",
		Usage:     "Collect tracks that recur across playlists matching a query",
		ArgsUsage: "<query>",
		Flags: append(outputFlags(),
			&cli.IntFlag{
				Name:  "playlists",
				Usage: "Playlists to sample",
				Value: 20,
			},
			&cli.IntFlag{
				Name:  "min",
				Usage: "Minimum playlists a track must appear in (0 picks the default for the query)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum entries to print",
				Value: 50,
			},
			&cli.StringFlag{
				Name:  "market",
				Usage: "Catalog market (defaults to catalog.market)",
			},
		),
		Action: r.Consensus,
	}
}

// toolsCommand prints the tool catalog handed to the planner
func toolsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "Show the tool catalog",
		Flags: append(outputFlags(),
			&cli.BoolFlag{
				Name:  "prompt",
				Usage: "Print the planner system prompt",
			},
		),
		Action: r.Tools,
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config file from the bundled template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles Spotify authorization for publishing
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize mixtape to create playlists on Spotify",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the authorization URL instead of opening a browser",
			},
		},
		Action: r.Auth,
	}
}

// serveCommand exposes the engine over HTTP
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the generation API and metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Generate requests per second allowed (0 disables limiting)",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "burst",
				Usage: "Generate request burst",
				Value: 3,
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for interactive generation.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for playlist generation",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "target",
				Aliases: []string{"n"},
				Usage:   "Number of tracks (defaults to engine.default_target)",
			},
		},
		Action: r.TUI,
	}
}

// cacheCommand manages the sqlite resolution cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the artist resolution cache (sqlite driver)",
		Commands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show cached resolution count",
				Action: r.CacheStats,
			},
			{
				Name:   "prune",
				Usage:  "Delete expired resolutions",
				Action: r.CachePrune,
			},
			{
				Name:   "clear",
				Usage:  "Delete every cached resolution",
				Action: r.CacheClear,
			},
		},
	}
}

// runsCommand lists recorded run summaries
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recent generation runs recorded in the database",
		Flags: append(outputFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum runs to list",
				Value: 20,
			},
		),
		Action: r.Runs,
	}
}
