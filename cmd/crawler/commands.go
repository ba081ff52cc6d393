package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "crawler",
		Usage:   "Enrich music metadata from Spotify, Last.fm, Deezer and MusicBrainz",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML configuration file",
				Sources: cli.EnvVars("CRAWLER_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			resolveCommand(),
			searchCommand(),
			sourcesCommand(),
			historyCommand(),
			cacheCommand(),
			watchCommand(),
			maintenanceCommand(),
			backupCommand(),
		},
	}
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve a catalog or a directory of audio files against every active source",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "catalog",
				Usage: "JSON catalog of master entities",
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Directory of tagged audio files to build master tracks from",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Directory names to skip while scanning",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Where to write the enriched catalog (defaults to --catalog, or stdout)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print reports as JSON",
			},
		},
		Action: runResolve,
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Print the scored candidates one source returns for an entity",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "query",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "source",
				Aliases:  []string{"s"},
				Usage:    "Source to query",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "Entity kind: track, artist, album or genre",
				Value:   "track",
			},
			&cli.StringFlag{
				Name:    "artist",
				Aliases: []string{"a"},
				Usage:   "Credited artists of the track or album",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of candidates to read",
				Value: 20,
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key to use instead of the configured one",
				Sources: cli.EnvVars("CRAWLER_SEARCH_API_KEY"),
			},
		},
		Action: runSearch,
	}
}

func sourcesCommand() *cli.Command {
	return &cli.Command{
		Name:   "sources",
		Usage:  "List configured sources, their order, limits and credentials",
		Action: runSources,
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent per-source resolution outcomes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run", Usage: "Only show one resolution run"},
			&cli.StringFlag{Name: "source", Usage: "Only show one source"},
			&cli.StringFlag{Name: "status", Usage: "Only show one status (merged, no_match, skipped, failed)"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of entries", Value: 50},
			&cli.BoolFlag{Name: "summary", Usage: "Print counts per source instead of entries"},
			&cli.DurationFlag{Name: "prune", Usage: "Delete entries older than this before listing"},
			&cli.BoolFlag{Name: "json", Usage: "Print entries as JSON"},
		},
		Action: runHistory,
	}
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the HTTP response cache",
		Commands: []*cli.Command{
			{
				Name:   "purge",
				Usage:  "Delete expired responses",
				Action: runCachePurge,
			},
			{
				Name:  "clear",
				Usage: "Delete every cached response, optionally for one host",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "host", Usage: "Only clear responses from this host"},
				},
				Action: runCacheClear,
			},
		},
	}
}

func maintenanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "maintenance",
		Usage: "Purge expired responses and old history, then optimize the database",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "history-age", Usage: "Delete history older than this (0 keeps everything)"},
			&cli.BoolFlag{Name: "vacuum", Usage: "Rebuild the database file afterwards"},
			&cli.BoolFlag{Name: "status", Usage: "Only print database status"},
		},
		Action: runMaintenance,
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Resolve a directory of audio files and keep the catalog current as files change",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Usage:    "Directory of tagged audio files",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "Catalog file to keep up to date",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Directory names to skip",
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet period before a burst of changes is rescanned",
				Value: 5 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "poll",
				Usage: "Polling interval where filesystem events are unavailable",
				Value: time.Minute,
			},
		},
		Action: runWatch,
	}
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Snapshot the database and prune old snapshots",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "Backup directory (defaults to backups/ next to the database)"},
			&cli.IntFlag{Name: "keep", Usage: "Keep at most this many backups (0 keeps all)"},
			&cli.DurationFlag{Name: "max-age", Usage: "Delete backups older than this (0 keeps all)"},
			&cli.BoolFlag{Name: "list", Usage: "Only list existing backups"},
		},
		Action: runBackup,
	}
}
