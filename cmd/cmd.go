// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

func prettyFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "pretty",
		Usage: "Pretty-print JSON output",
		Value: true,
	}
}

// setupCommand handles setup operations for the database, config file and secret key.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write a config file from the built-in template",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "with-key",
						Usage: "Generate a secret key into the new file",
						Value: true,
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "key",
				Usage:  "Print a new base64 secret key for credential encryption",
				Action: r.SetupKey,
			},
			{
				Name:  "migrations",
				Usage: "Show migration status or roll back the latest migration",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration",
					},
				},
				Action: r.SetupMigrations,
			},
		},
	}
}

// jobCommand handles submitting and steering import jobs
func jobCommand(r *Runner) *cli.Command {
	idArg := []cli.Argument{&cli.StringArg{Name: "id"}}

	return &cli.Command{
		Name:    "job",
		Aliases: []string{"jobs"},
		Usage:   "Submit and manage import jobs",
		Commands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "Submit shared album links for import",
				ArgsUsage: "<link>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "target",
						Aliases:  []string{"t"},
						Usage:    "Immich server base URL",
						Sources:  cli.EnvVars("IMMICH_URL"),
						Required: true,
					},
					&cli.StringFlag{
						Name:    "api-key",
						Usage:   "Immich API key",
						Sources: cli.EnvVars("IMMICH_API_KEY"),
					},
					&cli.StringFlag{
						Name:    "email",
						Usage:   "Immich account email (with --password)",
						Sources: cli.EnvVars("IMMICH_EMAIL"),
					},
					&cli.StringFlag{
						Name:    "password",
						Usage:   "Immich account password (with --email)",
						Sources: cli.EnvVars("IMMICH_PASSWORD"),
					},
					&cli.StringSliceFlag{
						Name:    "link",
						Aliases: []string{"l"},
						Usage:   "Shared album link; may be repeated",
					},
					&cli.StringFlag{
						Name:  "links-file",
						Usage: "File with one album link per line",
					},
					&cli.BoolFlag{
						Name:  "create-album",
						Usage: "Link uploads into a target album named after the source",
					},
					&cli.BoolFlag{
						Name:  "skip-duplicates",
						Usage: "Skip items whose content was already uploaded by this job",
					},
					&cli.IntFlag{
						Name:  "download-concurrency",
						Usage: "Items processed at once",
					},
					&cli.IntFlag{
						Name:  "upload-concurrency",
						Usage: "Uploads in flight at once",
					},
					&cli.BoolFlag{
						Name:  "persist-staging",
						Usage: "Keep downloaded files under the staging directory",
					},
					&cli.BoolFlag{
						Name:  "no-queue",
						Usage: "Store the job without enqueueing it (run it later with 'immport run')",
					},
					jsonFlag(),
				},
				Action: r.JobSubmit,
			},
			{
				Name:      "status",
				Usage:     "Show a job's status, progress and recent log",
				Arguments: idArg,
				Flags:     []cli.Flag{jsonFlag(), prettyFlag()},
				Action:    r.JobStatus,
			},
			{
				Name:  "list",
				Usage: "List jobs in submission order",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only jobs with this status",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to return",
						Value: 50,
					},
					jsonFlag(),
					prettyFlag(),
				},
				Action: r.JobList,
			},
			{
				Name:      "cancel",
				Usage:     "Request cancellation; the job stops at the next item",
				Arguments: idArg,
				Action:    r.JobCancel,
			},
			{
				Name:      "pause",
				Usage:     "Pause a job that is not running",
				Arguments: idArg,
				Action:    r.JobPause,
			},
			{
				Name:      "resume",
				Usage:     "Re-queue a paused, cancelled or failed job",
				Arguments: idArg,
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "no-queue", Usage: "Only mark the job QUEUED"}},
				Action:    r.JobResume,
			},
			{
				Name:      "retry-failed",
				Usage:     "Reset failed albums and re-queue the job",
				Arguments: idArg,
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "no-queue", Usage: "Only mark the job QUEUED"}},
				Action:    r.JobRetryFailed,
			},
			{
				Name:      "report",
				Usage:     "Export the per-item outcome of a job",
				Arguments: idArg,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, json, csv or md",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the report to this file instead of stdout",
					},
				},
				Action: r.JobReport,
			},
		},
	}
}

// runCommand runs one job in the foreground
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a stored job in this process and print its progress",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags:     []cli.Flag{jsonFlag()},
		Action:    r.RunJob,
	}
}

// workerCommand starts the queue consumer
func workerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Consume import jobs from the work queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Listen address for /metrics (defaults to metrics.addr)",
			},
		},
		Action: r.Worker,
	}
}

// targetCommand checks credentials against the target server
func targetCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "target",
		Usage: "Target server operations",
		Commands: []*cli.Command{
			{
				Name:  "whoami",
				Usage: "Verify credentials and show the authenticated user",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "target",
						Aliases:  []string{"t"},
						Usage:    "Immich server base URL",
						Sources:  cli.EnvVars("IMMICH_URL"),
						Required: true,
					},
					&cli.StringFlag{
						Name:    "api-key",
						Usage:   "Immich API key",
						Sources: cli.EnvVars("IMMICH_API_KEY"),
					},
					&cli.StringFlag{
						Name:    "email",
						Usage:   "Immich account email",
						Sources: cli.EnvVars("IMMICH_EMAIL"),
					},
					&cli.StringFlag{
						Name:    "password",
						Usage:   "Immich account password",
						Sources: cli.EnvVars("IMMICH_PASSWORD"),
					},
					jsonFlag(),
				},
				Action: r.TargetWhoami,
			},
		},
	}
}
