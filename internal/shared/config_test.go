package shared

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Server.Port != 3030 {
			t.Errorf("expected server port 3030, got %d", config.Server.Port)
		}
		if config.Server.TimeoutSeconds != 600 {
			t.Errorf("expected timeout 600, got %d", config.Server.TimeoutSeconds)
		}
		if config.Spotify.BaseURL != "https://api.spotify.com/v1" {
			t.Errorf("unexpected base url %s", config.Spotify.BaseURL)
		}
		if config.Spotify.RedirectURI != "http://127.0.0.1:3030/auth/cb" {
			t.Errorf("unexpected redirect uri %s", config.Spotify.RedirectURI)
		}
		if config.Client.BaseURL != "http://127.0.0.1:3030" {
			t.Errorf("unexpected client base url %s", config.Client.BaseURL)
		}
		if config.Spotify.AuthTimeout != 0 {
			t.Errorf("expected unbounded auth wait, got %d", config.Spotify.AuthTimeout)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}
		if *config != *DefaultConfig() {
			t.Error("created config doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		testConfig := `[spotify]
client_id = "test_client_id"
scope = "user-read-playback-state"

[server]
port = 4040
timeout_seconds = 30
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Spotify.ClientID != "test_client_id" {
			t.Errorf("expected client_id test_client_id, got %s", config.Spotify.ClientID)
		}
		if config.Server.Port != 4040 {
			t.Errorf("expected port 4040, got %d", config.Server.Port)
		}
		if config.Server.InactivityTimeout() != 30*time.Second {
			t.Errorf("expected 30s timeout, got %v", config.Server.InactivityTimeout())
		}
		if config.Spotify.BaseURL != "https://api.spotify.com/v1" {
			t.Errorf("expected unset keys to keep defaults, got base url %q", config.Spotify.BaseURL)
		}
	})

	t.Run("LoadConfig errors", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("expected error for missing file")
		}

		configPath := filepath.Join(t.TempDir(), "bad.toml")
		os.WriteFile(configPath, []byte("[server\nport = "), 0644)
		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		env := map[string]string{
			EnvBaseURL:        "http://upstream.test/v1",
			EnvClientID:       "env-client",
			EnvScope:          "streaming",
			EnvCallbackURL:    "http://127.0.0.1:9999/auth/cb",
			EnvServerPort:     "9999",
			EnvServerTimeout:  "60",
			EnvServerBaseURL:  "http://127.0.0.1:9999",
			EnvMaxRetries:     "5",
			EnvAuthTimeout:    "120",
			EnvRequestsPerSec: "2.5",
		}
		config := DefaultConfig()
		if err := config.ApplyEnv(func(k string) string { return env[k] }); err != nil {
			t.Fatalf("ApplyEnv failed: %v", err)
		}

		if config.Spotify.BaseURL != "http://upstream.test/v1" {
			t.Errorf("base url not applied: %s", config.Spotify.BaseURL)
		}
		if config.Spotify.ClientID != "env-client" {
			t.Errorf("client id not applied: %s", config.Spotify.ClientID)
		}
		if config.Spotify.Scope != "streaming" {
			t.Errorf("scope not applied: %s", config.Spotify.Scope)
		}
		if config.Spotify.RedirectURI != "http://127.0.0.1:9999/auth/cb" {
			t.Errorf("callback not applied: %s", config.Spotify.RedirectURI)
		}
		if config.Server.Port != 9999 || config.Server.TimeoutSeconds != 60 {
			t.Errorf("server settings not applied: %+v", config.Server)
		}
		if config.Client.BaseURL != "http://127.0.0.1:9999" || config.Client.MaxRetries != 5 {
			t.Errorf("client settings not applied: %+v", config.Client)
		}
		if config.Spotify.AuthTimeout != 120 || config.Spotify.RequestsPerSecond != 2.5 {
			t.Errorf("limits not applied: %+v", config.Spotify)
		}
	})

	t.Run("ApplyEnv leaves unset values", func(t *testing.T) {
		config := DefaultConfig()
		if err := config.ApplyEnv(func(string) string { return "" }); err != nil {
			t.Fatalf("ApplyEnv failed: %v", err)
		}
		if *config != *DefaultConfig() {
			t.Error("expected config to be unchanged")
		}
	})

	t.Run("ApplyEnv rejects malformed numbers", func(t *testing.T) {
		for _, key := range []string{EnvServerPort, EnvRequestsPerSec} {
			config := DefaultConfig()
			err := config.ApplyEnv(func(k string) string {
				if k == key {
					return "lots"
				}
				return ""
			})
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("%s: expected ErrInvalidConfig, got %v", key, err)
			}
		}
	})

	t.Run("Validate", func(t *testing.T) {
		t.Run("placeholder client id is missing", func(t *testing.T) {
			err := DefaultConfig().Validate()
			if !errors.Is(err, ErrMissingConfig) {
				t.Fatalf("expected ErrMissingConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), "spotify.client_id") {
				t.Errorf("expected client_id to be named, got %v", err)
			}
		})

		t.Run("lists every missing field", func(t *testing.T) {
			config := &Config{}
			err := config.Validate()
			for _, field := range []string{"spotify.base_url", "spotify.redirect_uri", "spotify.scope", "server.port", "server.timeout_seconds"} {
				if !strings.Contains(err.Error(), field) {
					t.Errorf("expected %s in %v", field, err)
				}
			}
		})

		t.Run("complete config", func(t *testing.T) {
			config := DefaultConfig()
			config.Spotify.ClientID = "abc"
			if err := config.Validate(); err != nil {
				t.Errorf("expected valid config, got %v", err)
			}
		})

		t.Run("out of range", func(t *testing.T) {
			config := DefaultConfig()
			config.Spotify.ClientID = "abc"
			config.Server.Port = 70000
			if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}

			config.Server.Port = 3030
			config.Spotify.RequestsPerSecond = -1
			if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("host must be loopback", func(t *testing.T) {
			tt := []struct {
				host string
				ok   bool
			}{
				{host: "", ok: true},
				{host: "127.0.0.1", ok: true},
				{host: "127.0.0.53", ok: true},
				{host: "localhost", ok: true},
				{host: "::1", ok: true},
				{host: "0.0.0.0", ok: false},
				{host: "::", ok: false},
				{host: "192.168.1.10", ok: false},
				{host: "example.com", ok: false},
			}
			for _, tc := range tt {
				config := DefaultConfig()
				config.Spotify.ClientID = "abc"
				config.Server.Host = tc.host
				err := config.Validate()
				if tc.ok && err != nil {
					t.Errorf("%q: expected valid, got %v", tc.host, err)
				}
				if !tc.ok && !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("%q: expected ErrInvalidConfig, got %v", tc.host, err)
				}
			}
		})
	})

	t.Run("Addr", func(t *testing.T) {
		if got := (ServerConfig{Port: 3030}).Addr(); got != "127.0.0.1:3030" {
			t.Errorf("expected loopback default, got %s", got)
		}
		if got := (ServerConfig{Host: "localhost", Port: 1}).Addr(); got != "localhost:1" {
			t.Errorf("unexpected addr %s", got)
		}
		if got := (ServerConfig{Host: "::1", Port: 3030}).Addr(); got != "[::1]:3030" {
			t.Errorf("unexpected addr %s", got)
		}
	})
}
