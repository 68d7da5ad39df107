// API service for making raw HTTP requests to the local spt proxy
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// ForwardPrefix is the proxy route under which upstream paths are forwarded.
const ForwardPrefix = "/api/spt-fwd/"

// APIService provides methods for making raw HTTP requests to the local proxy.
type APIService struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIService creates a new API service instance for the local proxy.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3030"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    baseURL,
		httpClient: client,
	}
}

// BaseURL returns the proxy address this client targets.
func (a *APIService) BaseURL() string {
	return a.baseURL
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string, query url.Values) (*APIResponse, error) {
	fullURL := a.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return a.do(req)
}

// Send performs a request with the given JSON data and returns the raw response.
func (a *APIService) Send(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	fullURL := a.baseURL + path

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return a.do(req)
}

// Ping checks that the proxy is up.
func (a *APIService) Ping(ctx context.Context) error {
	resp, err := a.Get(ctx, "/ping", nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping returned status %d", resp.StatusCode)
	}
	return nil
}

// Init asks the proxy for a fresh client id.
func (a *APIService) Init(ctx context.Context) (uint64, error) {
	resp, err := a.Get(ctx, "/init", nil)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("init returned status %d", resp.StatusCode)
	}

	var payload struct {
		ClientID json.Number `json:"client_id"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return 0, fmt.Errorf("failed to decode init response: %w", err)
	}

	id, err := strconv.ParseUint(payload.ClientID.String(), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid client_id %q in init response", payload.ClientID)
	}
	return id, nil
}

// Forward sends an upstream call for clientID through the proxy.
//
// GET carries client_id as a query parameter; other methods carry it in the JSON body.
func (a *APIService) Forward(ctx context.Context, clientID uint64, req Request) (*APIResponse, error) {
	path := ForwardPrefix + trimSlash(req.Path)

	if req.Method == "" || req.Method == http.MethodGet {
		q := StripParam(req.Query, "client_id")
		q.Set("client_id", strconv.FormatUint(clientID, 10))
		return a.Get(ctx, path, q)
	}

	body := map[string]any{}
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return nil, fmt.Errorf("request body must be a JSON object: %w", err)
		}
	}
	body["client_id"] = clientID

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	if len(req.Query) > 0 {
		path += "?" + req.Query.Encode()
	}
	return a.Send(ctx, req.Method, path, data)
}

func (a *APIService) do(req *http.Request) (*APIResponse, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

func trimSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}
