package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spt/internal/server"
	"github.com/desertthunder/spt/internal/services"
	"github.com/desertthunder/spt/internal/session"
	"github.com/desertthunder/spt/internal/shared"
	tu "github.com/desertthunder/spt/internal/testing"
)

// clearEnv blanks every override [shared.Config.ApplyEnv] reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		shared.EnvBaseURL, shared.EnvClientID, shared.EnvScope, shared.EnvCallbackURL,
		shared.EnvServerPort, shared.EnvServerTimeout, shared.EnvServerBaseURL,
		shared.EnvMaxRetries, shared.EnvAuthTimeout, shared.EnvRequestsPerSec,
	} {
		t.Setenv(key, "")
	}
}

// proxyFixture runs the real proxy handler against a mock provider and returns a runner
// pointed at it.
func proxyFixture(t *testing.T, provider *tu.MockProvider) (*Runner, *bytes.Buffer) {
	t.Helper()
	clearEnv(t)

	var ts *httptest.Server
	srv := server.New(shared.DefaultConfig().Server, session.Options{
		Provider: provider,
		OpenBrowser: func(target string) error {
			u, _ := url.Parse(target)
			go func() {
				resp, err := http.Get(ts.URL + "/auth/cb?code=xyz&state=" + u.Query().Get("state"))
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}, shared.NewLogger(&bytes.Buffer{}))
	ts = httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	config := shared.DefaultConfig()
	config.Client.BaseURL = ts.URL
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(&bytes.Buffer{}),
		Output: output,
		StartServer: func(string) error {
			t.Error("proxy is running, nothing should be started")
			return nil
		},
	})
	return runner, output
}

func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	return newApp(r).Run(context.Background(), append([]string{"spt"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			api := services.NewAPIService("http://127.0.0.1:1", httpClient)

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				API:        api,
				RetryDelay: time.Second,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.api != api {
				t.Error("expected api to be set")
			}
			if runner.retryDelay != time.Second {
				t.Errorf("expected retry delay 1s, got %v", runner.retryDelay)
			}
		})

		t.Run("with nothing provided uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil || runner.httpClient == nil || runner.startServer == nil {
				t.Error("expected defaults to be filled in")
			}
			if runner.output != os.Stdout {
				t.Error("expected stdout output")
			}
			if runner.retryDelay != 500*time.Millisecond {
				t.Errorf("expected default retry delay, got %v", runner.retryDelay)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			if err := runner.writePlain("test"); err == nil {
				t.Fatal("expected error from failing writer")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		commands := NewRunner(RunnerOpts{}).register()

		names := map[string]bool{}
		for _, cmd := range commands {
			names[cmd.Name] = true
		}
		for _, want := range []string{"serve", "init", "ping", "status", "api", "config"} {
			if !names[want] {
				t.Errorf("expected %s command to be registered", want)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("reads the config file", func(t *testing.T) {
		clearEnv(t)
		ping := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"ok"}`))
		}))
		defer ping.Close()

		path := filepath.Join(t.TempDir(), "config.toml")
		os.WriteFile(path, []byte("[client]\nbase_url = \""+ping.URL+"\"\n"), 0644)

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{}), Output: output})
		if err := run(t, runner, "--config", path, "ping"); err != nil {
			t.Fatalf("ping failed: %v", err)
		}
		if runner.configPath != path {
			t.Errorf("expected config path %s, got %s", path, runner.configPath)
		}
		if runner.api.BaseURL() != ping.URL {
			t.Errorf("expected api to target %s, got %s", ping.URL, runner.api.BaseURL())
		}
		if !strings.Contains(output.String(), "proxy is running") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("missing file falls back to defaults and env", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(shared.EnvServerBaseURL, "http://127.0.0.1:1")

		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{}), Output: &bytes.Buffer{}})
		err := run(t, runner, "--config", filepath.Join(t.TempDir(), "none.toml"), "ping")
		if !errors.Is(err, shared.ErrServerUnavailable) {
			t.Errorf("expected ErrServerUnavailable, got %v", err)
		}
		if runner.config.Server.Port != 3030 {
			t.Errorf("expected default config, got %+v", runner.config.Server)
		}
		if runner.api.BaseURL() != "http://127.0.0.1:1" {
			t.Errorf("expected env override, got %s", runner.api.BaseURL())
		}
	})

	t.Run("log level flag", func(t *testing.T) {
		clearEnv(t)
		logger := shared.NewLogger(&bytes.Buffer{})
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), Logger: logger, Output: &bytes.Buffer{}})

		err := run(t, runner, "--config", "unused.toml", "--log-level", "debug", "config", "check")
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected placeholder client id to fail validation, got %v", err)
		}
		if logger.GetLevel() != log.DebugLevel {
			t.Errorf("expected debug level, got %v", logger.GetLevel())
		}

		err = run(t, runner, "--log-level", "chatty", "config", "check")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("output failure keeps the command error and is logged", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(shared.EnvServerBaseURL, "http://127.0.0.1:1")
		logs := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(logs), Output: &tu.FWriter{}})
		missing := filepath.Join(t.TempDir(), "none.toml")

		if err := run(t, runner, "--config", missing, "config", "check"); !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
		if err := run(t, runner, "--config", missing, "ping"); !errors.Is(err, shared.ErrServerUnavailable) {
			t.Errorf("expected ErrServerUnavailable, got %v", err)
		}
		if got := strings.Count(logs.String(), "failed to write output"); got != 2 {
			t.Errorf("expected two logged write failures, got %d in %q", got, logs.String())
		}
	})

	t.Run("config init writes the example", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "config.toml")
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{}), Output: &bytes.Buffer{}})

		if err := run(t, runner, "--config", path, "config", "init"); err != nil {
			t.Fatalf("config init failed: %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(tu.MustReadFile(t, path), "[spotify]") {
			t.Error("expected example config contents")
		}
	})
}

func TestEnsureServer(t *testing.T) {
	newRunner := func(t *testing.T, up *atomic.Bool, start func(string) error, retries int) *Runner {
		t.Helper()
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !up.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"status":"ok"}`))
		}))
		t.Cleanup(ts.Close)

		config := shared.DefaultConfig()
		config.Client.MaxRetries = retries
		return NewRunner(RunnerOpts{
			Config:      config,
			API:         services.NewAPIService(ts.URL, nil),
			Logger:      shared.NewLogger(&bytes.Buffer{}),
			Output:      &bytes.Buffer{},
			StartServer: start,
			RetryDelay:  time.Millisecond,
		})
	}

	t.Run("running proxy is used as is", func(t *testing.T) {
		up := &atomic.Bool{}
		up.Store(true)
		runner := newRunner(t, up, func(string) error {
			t.Error("should not start")
			return nil
		}, 3)

		if err := runner.ensureServer(context.Background()); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("starts the proxy once and retries", func(t *testing.T) {
		up := &atomic.Bool{}
		starts := &atomic.Int32{}
		runner := newRunner(t, up, func(string) error {
			starts.Add(1)
			up.Store(true)
			return nil
		}, 3)

		if err := runner.ensureServer(context.Background()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if starts.Load() != 1 {
			t.Errorf("expected one start, got %d", starts.Load())
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		up := &atomic.Bool{}
		starts := &atomic.Int32{}
		runner := newRunner(t, up, func(string) error {
			starts.Add(1)
			return nil
		}, 2)

		err := runner.ensureServer(context.Background())
		if !errors.Is(err, shared.ErrServerUnavailable) {
			t.Errorf("expected ErrServerUnavailable, got %v", err)
		}
		if starts.Load() != 1 {
			t.Errorf("expected a single start attempt, got %d", starts.Load())
		}
	})

	t.Run("start failure", func(t *testing.T) {
		up := &atomic.Bool{}
		runner := newRunner(t, up, func(string) error { return errors.New("exec format error") }, 3)

		if err := runner.ensureServer(context.Background()); !errors.Is(err, shared.ErrServerUnavailable) {
			t.Errorf("expected ErrServerUnavailable, got %v", err)
		}
	})
}

func TestCommands(t *testing.T) {
	t.Run("init prints the client id", func(t *testing.T) {
		runner, output := proxyFixture(t, &tu.MockProvider{})

		if err := run(t, runner, "init"); err != nil {
			t.Fatalf("init failed: %v", err)
		}
		if err := run(t, runner, "init", "--json"); err != nil {
			t.Fatalf("init failed: %v", err)
		}
		if output.String() != "1\n{\"client_id\":2}\n" {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("status", func(t *testing.T) {
		runner, output := proxyFixture(t, &tu.MockProvider{})
		run(t, runner, "init")
		output.Reset()

		if err := run(t, runner, "status"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), `"sessions": 1`) {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("api get forwards and prints JSON", func(t *testing.T) {
		provider := &tu.MockProvider{}
		var gotQuery atomic.Value
		provider.DoFunc = func(ctx context.Context, token string, req services.Request) (*services.APIResponse, error) {
			gotQuery.Store(req.Query.Encode())
			return tu.JSONResponse(http.StatusOK, map[string]any{"is_playing": true}), nil
		}
		runner, output := proxyFixture(t, provider)
		run(t, runner, "init")
		output.Reset()

		if err := run(t, runner, "api", "get", "--client-id", "1", "--query", "market=US", "--json", "me/player"); err != nil {
			t.Fatalf("api get failed: %v", err)
		}
		if output.String() != "{\"is_playing\":true}\n" {
			t.Errorf("unexpected output %q", output.String())
		}
		if gotQuery.Load() != "market=US" {
			t.Errorf("unexpected forwarded query %v", gotQuery.Load())
		}
	})

	t.Run("api put sends data and prints an empty object for 204", func(t *testing.T) {
		provider := &tu.MockProvider{}
		var gotBody atomic.Value
		provider.DoFunc = func(ctx context.Context, token string, req services.Request) (*services.APIResponse, error) {
			gotBody.Store(string(req.Body))
			return &services.APIResponse{StatusCode: http.StatusNoContent}, nil
		}
		runner, output := proxyFixture(t, provider)
		run(t, runner, "init")
		output.Reset()

		if err := run(t, runner, "api", "put", "--client-id", "1", "--data", `{"volume_percent":30}`, "me/player/volume"); err != nil {
			t.Fatalf("api put failed: %v", err)
		}
		if output.String() != "{}\n" {
			t.Errorf("unexpected output %q", output.String())
		}

		var body map[string]any
		json.Unmarshal([]byte(gotBody.Load().(string)), &body)
		if body["volume_percent"] != float64(30) || body["client_id"] != nil {
			t.Errorf("unexpected forwarded body %v", body)
		}
	})

	t.Run("unknown client is reported", func(t *testing.T) {
		runner, _ := proxyFixture(t, &tu.MockProvider{})

		err := run(t, runner, "api", "get", "--client-id", "9", "me")
		if !errors.Is(err, shared.ErrAPIRequest) || !strings.Contains(err.Error(), "403") {
			t.Errorf("expected 403 API error, got %v", err)
		}
	})

	t.Run("invalid arguments", func(t *testing.T) {
		runner, _ := proxyFixture(t, &tu.MockProvider{})

		tt := []struct {
			name string
			args []string
			want error
		}{
			{name: "bad client id", args: []string{"api", "get", "--client-id", "abc", "me"}, want: shared.ErrInvalidArgument},
			{name: "missing path", args: []string{"api", "get", "--client-id", "1"}, want: shared.ErrMissingArgument},
			{name: "bad query", args: []string{"api", "get", "--client-id", "1", "--query", "novalue", "me"}, want: shared.ErrInvalidArgument},
			{name: "bad data", args: []string{"api", "post", "--client-id", "1", "--data", "[1]", "me/player/next"}, want: shared.ErrInvalidInput},
		}
		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				if err := run(t, runner, tc.args...); !errors.Is(err, tc.want) {
					t.Errorf("expected %v, got %v", tc.want, err)
				}
			})
		}
	})
}

func TestParseQuery(t *testing.T) {
	q, err := parseQuery([]string{"limit=5", "market=US", "ids=a,b", "empty="})
	if err != nil {
		t.Fatalf("parseQuery failed: %v", err)
	}
	if q.Get("limit") != "5" || q.Get("ids") != "a,b" || !q.Has("empty") {
		t.Errorf("unexpected query %v", q)
	}
	if _, err := parseQuery([]string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}
}
