// Spotify Web API implementation of [Provider]
//
// Authorization uses the PKCE authorization code flow for public clients:
// https://developer.spotify.com/documentation/web-api/tutorials/code-pkce-flow
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/spt/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// SpotifyService implements [Provider] for the Spotify Web API.
// Uses [oauth2] for the authorization URL, code exchange and refresh grants.
type SpotifyService struct {
	config     *oauth2.Config
	baseURL    string
	httpClient *http.Client
}

// NewSpotifyService creates a Spotify provider from the configured credentials.
//
// Auth and token URLs default to accounts.spotify.com when unset.
func NewSpotifyService(creds shared.SpotifyConfig, client *http.Client) (*SpotifyService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingConfig)
	}
	if creds.BaseURL == "" {
		return nil, fmt.Errorf("%w: missing base_url", shared.ErrMissingConfig)
	}
	if creds.RedirectURI == "" {
		return nil, fmt.Errorf("%w: missing redirect_uri", shared.ErrMissingConfig)
	}
	if client == nil {
		client = http.DefaultClient
	}

	authURL, tokenURL := creds.AuthURL, creds.TokenURL
	if authURL == "" {
		authURL = spotifyAuthURL
	}
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}

	config := &oauth2.Config{
		ClientID:    creds.ClientID,
		RedirectURL: creds.RedirectURI,
		Scopes:      strings.Fields(creds.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &SpotifyService{
		config:     config,
		baseURL:    strings.TrimRight(creds.BaseURL, "/"),
		httpClient: client,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the authorization URL for user login.
//
// state is echoed back on the redirect; the S256 challenge is derived from verifier.
func (s *SpotifyService) AuthURL(state, verifier string) string {
	return s.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code and its PKCE verifier for tokens.
func (s *SpotifyService) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	return s.config.Exchange(s.clientContext(ctx), code, oauth2.VerifierOption(verifier))
}

// Refresh performs a refresh_token grant.
//
// The returned token keeps refreshToken when the provider does not rotate it.
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := s.config.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

// Do performs a bearer-authenticated request to the Web API and returns the raw response.
//
// Non-2xx statuses are not errors here; callers map them.
func (s *SpotifyService) Do(ctx context.Context, token string, req Request) (*APIResponse, error) {
	endpoint := s.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

func (s *SpotifyService) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// readResponse drains resp into an [APIResponse], decoding the body when it is JSON.
func readResponse(resp *http.Response) (*APIResponse, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &jsonData); err == nil {
			apiResp.IsJSON = true
			apiResp.JSONData = jsonData
		}
	}

	return apiResp, nil
}

// StripParam returns a copy of q without key.
func StripParam(q url.Values, key string) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		if k == key {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}
