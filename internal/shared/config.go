package shared

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables recognized by [Config.ApplyEnv].
const (
	EnvBaseURL        = "SPT_API_BASE_URL"
	EnvClientID       = "SPT_API_CLIENT_ID"
	EnvScope          = "SPT_API_SCOPE"
	EnvCallbackURL    = "SERVER_CALLBACK_URL"
	EnvServerPort     = "SERVER_PORT"
	EnvServerTimeout  = "SERVER_TIMEOUT_SECONDS"
	EnvServerBaseURL  = "SERVER_BASE_URL"
	EnvMaxRetries     = "MAX_SERVER_RETRIES"
	EnvAuthTimeout    = "SPT_AUTH_TIMEOUT_SECONDS"
	EnvRequestsPerSec = "SPT_REQUESTS_PER_SECOND"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Server  ServerConfig  `toml:"server"`
	Client  ClientConfig  `toml:"client"`
}

// SpotifyConfig contains the upstream provider settings.
//
// The proxy authenticates as a public client (PKCE), so no client secret is held.
type SpotifyConfig struct {
	BaseURL           string  `toml:"base_url"`
	ClientID          string  `toml:"client_id"`
	RedirectURI       string  `toml:"redirect_uri"`
	Scope             string  `toml:"scope"`
	AuthURL           string  `toml:"auth_url"`
	TokenURL          string  `toml:"token_url"`
	AuthTimeout       int     `toml:"auth_timeout_seconds"` // 0 waits for the browser login indefinitely
	RequestsPerSecond float64 `toml:"requests_per_second"`  // 0 disables the per-client limiter
}

// ServerConfig contains settings for the local proxy process.
type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	LogLevel       string `toml:"log_level"`
}

// ClientConfig contains settings used by the command-line client when talking to the proxy.
type ClientConfig struct {
	BaseURL    string `toml:"base_url"`
	MaxRetries int    `toml:"max_retries"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides configuration values with any non-empty environment variables.
//
// getenv is usually [os.Getenv]; tests pass a map lookup.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
		}
		*dst = n
		return nil
	}

	setString(EnvBaseURL, &c.Spotify.BaseURL)
	setString(EnvClientID, &c.Spotify.ClientID)
	setString(EnvScope, &c.Spotify.Scope)
	setString(EnvCallbackURL, &c.Spotify.RedirectURI)
	setString(EnvServerBaseURL, &c.Client.BaseURL)

	for key, dst := range map[string]*int{
		EnvServerPort:    &c.Server.Port,
		EnvServerTimeout: &c.Server.TimeoutSeconds,
		EnvMaxRetries:    &c.Client.MaxRetries,
		EnvAuthTimeout:   &c.Spotify.AuthTimeout,
	} {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}

	if v := strings.TrimSpace(getenv(EnvRequestsPerSec)); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, EnvRequestsPerSec, v)
		}
		c.Spotify.RequestsPerSecond = rps
	}

	return nil
}

// Validate reports every required option that is missing or out of range.
//
// A failure here is fatal at startup.
func (c *Config) Validate() error {
	var missing []string
	if c.Spotify.BaseURL == "" {
		missing = append(missing, "spotify.base_url")
	}
	if c.Spotify.ClientID == "" || c.Spotify.ClientID == "your_spotify_client_id" {
		missing = append(missing, "spotify.client_id")
	}
	if c.Spotify.RedirectURI == "" {
		missing = append(missing, "spotify.redirect_uri")
	}
	if c.Spotify.Scope == "" {
		missing = append(missing, "spotify.scope")
	}
	if c.Server.Port <= 0 {
		missing = append(missing, "server.port")
	}
	if c.Server.TimeoutSeconds <= 0 {
		missing = append(missing, "server.timeout_seconds")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	if c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Spotify.AuthTimeout < 0 || c.Spotify.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: negative auth timeout or request rate", ErrInvalidConfig)
	}
	if !isLoopback(c.Server.Host) {
		return fmt.Errorf("%w: server.host %q is not a loopback address", ErrInvalidConfig, c.Server.Host)
	}

	return nil
}

// isLoopback accepts an empty host (the default), localhost and loopback IPs.
func isLoopback(host string) bool {
	if host == "" || strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Addr returns the loopback listen address for the proxy.
func (s ServerConfig) Addr() string {
	host := s.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// InactivityTimeout returns the idle window after which the proxy exits.
func (s ServerConfig) InactivityTimeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}
