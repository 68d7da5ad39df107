package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spt/internal/services"
	"github.com/desertthunder/spt/internal/shared"
	"github.com/desertthunder/spt/internal/ui"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	api         *services.APIService
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	palette     *ui.Palette
	startServer func(configPath string) error
	retryDelay  time.Duration
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	API         *services.APIService
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	StartServer func(configPath string) error // launches `spt serve` in the background
	RetryDelay  time.Duration
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.StartServer == nil {
		opts.StartServer = spawnServer
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}

	return &Runner{
		config:      opts.Config,
		api:         opts.API,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		palette:     ui.Default,
		startServer: opts.StartServer,
		retryDelay:  opts.RetryDelay,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, initCommand, pingCommand, statusCommand, apiCommand, configCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Load reads the configuration file (when present), applies environment overrides and
// sets the log level. It runs before every command.
func (r *Runner) Load(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	r.configPath = cmd.String("config")

	if r.config == nil {
		if _, err := os.Stat(r.configPath); err == nil {
			config, err := shared.LoadConfig(r.configPath)
			if err != nil {
				return ctx, err
			}
			r.config = config
		} else {
			r.config = shared.DefaultConfig()
		}
	}

	if err := r.config.ApplyEnv(os.Getenv); err != nil {
		return ctx, err
	}

	level := cmd.String("log-level")
	if level == "" {
		level = r.config.Server.LogLevel
	}
	if err := shared.SetLogLevel(r.logger, level); err != nil {
		return ctx, fmt.Errorf("%w: log level %q", shared.ErrInvalidArgument, level)
	}

	if r.api == nil {
		r.api = services.NewAPIService(r.config.Client.BaseURL, r.httpClient)
	}

	return ctx, nil
}

// ensureServer pings the proxy and starts it in the background when it is down, retrying
// up to the configured number of times.
func (r *Runner) ensureServer(ctx context.Context) error {
	retries := 0
	if r.config != nil {
		retries = r.config.Client.MaxRetries
	}

	for attempt := 0; ; attempt++ {
		if err := r.api.Ping(ctx); err == nil {
			r.logger.Debug("found proxy running", "addr", r.api.BaseURL())
			return nil
		}
		if attempt >= retries {
			return fmt.Errorf("%w at %s", shared.ErrServerUnavailable, r.api.BaseURL())
		}
		if attempt == 0 {
			r.logger.Info("proxy is down, starting it", "addr", r.api.BaseURL())
			if err := r.startServer(r.configPath); err != nil {
				return fmt.Errorf("%w: failed to start proxy: %v", shared.ErrServerUnavailable, err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryDelay * time.Duration(attempt+1)):
		}
	}
}

// spawnServer re-executes this binary as a detached `spt serve`.
func spawnServer(configPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	args := []string{"serve"}
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}

	cmd := exec.Command(exe, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
