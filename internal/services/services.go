// package services defines interface Provider for the upstream music service and
// the HTTP client used to talk to the local proxy.
package services

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
)

// Provider defines the upstream music service the proxy authenticates against and forwards to.
type Provider interface {
	// AuthURL builds the browser authorization URL carrying state and a PKCE challenge for verifier.
	AuthURL(state, verifier string) string

	// Exchange trades an authorization code for access and refresh tokens.
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)

	// Refresh obtains a new access token with a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// Do issues a bearer-authenticated request and returns the raw response.
	Do(ctx context.Context, token string, req Request) (*APIResponse, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// Request is an HTTP-like call to forward upstream.
type Request struct {
	Method string
	Path   string // relative to the provider base URL, e.g. "me/player"
	Query  url.Values
	Body   []byte // JSON, may be empty
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}
