package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/spt/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(NewRunner(RunnerOpts{Logger: logger}))
	if err := app.Run(ctx, os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}

func newApp(runner *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spt",
		Usage:   "Control Spotify playback through a local session proxy",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("SPT_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Before:   runner.Load,
		Commands: runner.register(),
	}
}
