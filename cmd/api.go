package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/spt/internal/services"
	"github.com/desertthunder/spt/internal/shared"
	"github.com/urfave/cli/v3"
)

// Init allocates a client id, starting the proxy when it is not running.
func (r *Runner) Init(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureServer(ctx); err != nil {
		return err
	}

	id, err := r.api.Init(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]uint64{"client_id": id}, false)
	}
	return r.writePlain("%d\n", id)
}

// Ping reports whether the proxy answers. It never starts the proxy.
func (r *Runner) Ping(ctx context.Context, cmd *cli.Command) error {
	if err := r.api.Ping(ctx); err != nil {
		if werr := r.writePlain("%s\n", r.palette.Err("proxy is not running at "+r.api.BaseURL())); werr != nil {
			r.logger.Warn("failed to write output", "err", werr)
		}
		return fmt.Errorf("%w: %v", shared.ErrServerUnavailable, err)
	}
	return r.writePlain("%s\n", r.palette.OK("proxy is running at "+r.api.BaseURL()))
}

// Status prints the proxy's diagnostic payload.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	resp, err := r.api.Get(ctx, "/status", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServerUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK || !resp.IsJSON {
		return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if err := r.writePlain("%s\n", r.palette.Title("spt proxy "+r.api.BaseURL())); err != nil {
		return err
	}
	return r.writeJSON(resp.JSONData, true)
}

// APIGet forwards a GET for the given client.
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	req, clientID, err := buildRequest(cmd, http.MethodGet)
	if err != nil {
		return err
	}
	return r.forward(ctx, cmd, clientID, req)
}

// APISend returns an action that forwards method with the --data body.
func (r *Runner) APISend(method string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		req, clientID, err := buildRequest(cmd, method)
		if err != nil {
			return err
		}

		if data := cmd.String("data"); data != "" {
			var obj map[string]any
			if err := json.Unmarshal([]byte(data), &obj); err != nil {
				return fmt.Errorf("%w: data must be a JSON object: %v", shared.ErrInvalidInput, err)
			}
			req.Body = []byte(data)
		}
		return r.forward(ctx, cmd, clientID, req)
	}
}

func (r *Runner) forward(ctx context.Context, cmd *cli.Command, clientID uint64, req services.Request) error {
	if err := r.ensureServer(ctx); err != nil {
		return err
	}

	r.logger.Debug("forwarding", "method", req.Method, "path", req.Path, "client_id", clientID)

	resp, err := r.api.Forward(ctx, clientID, req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(resp.Body))
		if m, ok := resp.JSONData.(map[string]any); ok {
			if e, ok := m["error"].(string); ok {
				msg = e
			}
		}
		return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, msg)
	}

	if !resp.IsJSON {
		return r.writeJSON(map[string]any{}, false)
	}
	return r.writeJSON(resp.JSONData, !cmd.Bool("json"))
}

// buildRequest reads the path argument, --client-id and --query flags shared by every api subcommand.
func buildRequest(cmd *cli.Command, method string) (services.Request, uint64, error) {
	path := strings.TrimSpace(cmd.StringArg("path"))
	if path == "" {
		return services.Request{}, 0, fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}

	clientID, err := strconv.ParseUint(cmd.String("client-id"), 10, 64)
	if err != nil || clientID == 0 {
		return services.Request{}, 0, fmt.Errorf("%w: client-id %q", shared.ErrInvalidArgument, cmd.String("client-id"))
	}

	query, err := parseQuery(cmd.StringSlice("query"))
	if err != nil {
		return services.Request{}, 0, err
	}

	return services.Request{Method: method, Path: path, Query: query}, clientID, nil
}

func parseQuery(pairs []string) (url.Values, error) {
	q := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: query %q, expected key=value", shared.ErrInvalidArgument, pair)
		}
		q.Add(key, value)
	}
	return q, nil
}
