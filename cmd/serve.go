package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/spt/internal/server"
	"github.com/desertthunder/spt/internal/services"
	"github.com/desertthunder/spt/internal/session"
	"github.com/desertthunder/spt/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the session proxy until it has been idle for the configured timeout.
//
// Missing required configuration is fatal here rather than at request time.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	provider, err := services.NewSpotifyService(r.config.Spotify, r.httpClient)
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}

	srv := server.New(r.config.Server, session.Options{
		Provider:          provider,
		OpenBrowser:       shared.OpenBrowser,
		AuthTimeout:       time.Duration(r.config.Spotify.AuthTimeout) * time.Second,
		RequestsPerSecond: r.config.Spotify.RequestsPerSecond,
		Logger:            r.logger,
	}, r.logger)

	r.logger.Info("starting proxy", "addr", r.config.Server.Addr(), "timeout", r.config.Server.InactivityTimeout())
	if err := srv.Run(ctx); err != nil {
		return err
	}
	r.logger.Info("proxy stopped")
	return nil
}

// ConfigInit writes the example configuration to the --config path.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	return r.writePlain("%s\n", r.palette.OK("wrote "+r.configPath))
}

// ConfigCheck reports whether serve would start with the current configuration.
func (r *Runner) ConfigCheck(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		if werr := r.writePlain("%s\n", r.palette.Err(err.Error())); werr != nil {
			r.logger.Warn("failed to write output", "err", werr)
		}
		return err
	}
	return r.writePlain("%s\n", r.palette.OK("configuration is complete"))
}
