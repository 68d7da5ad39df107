// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/spt/internal/services"
	"golang.org/x/oauth2"
)

// MockProvider is a test double for [services.Provider]. Unset funcs succeed with fixed tokens.
type MockProvider struct {
	ExchangeFunc func(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	RefreshFunc  func(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	DoFunc       func(ctx context.Context, token string, req services.Request) (*services.APIResponse, error)

	Exchanges atomic.Int32
	Refreshes atomic.Int32
	Calls     atomic.Int32

	mu    sync.Mutex
	codes []string
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) AuthURL(state, verifier string) string {
	q := url.Values{"state": {state}, "code_challenge_method": {"S256"}}
	return "https://auth.example.com/authorize?" + q.Encode()
}

func (m *MockProvider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	m.Exchanges.Add(1)
	m.mu.Lock()
	m.codes = append(m.codes, code)
	m.mu.Unlock()

	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code, verifier)
	}
	return NewToken("access-"+code, "refresh-"+code), nil
}

func (m *MockProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	m.Refreshes.Add(1)
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return NewToken("refreshed", ""), nil
}

func (m *MockProvider) Do(ctx context.Context, token string, req services.Request) (*services.APIResponse, error) {
	m.Calls.Add(1)
	if m.DoFunc != nil {
		return m.DoFunc(ctx, token, req)
	}
	return JSONResponse(http.StatusOK, map[string]any{"ok": true}), nil
}

// Codes returns the authorization codes passed to Exchange, in order.
func (m *MockProvider) Codes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.codes...)
}

// NewToken builds a bearer token valid for an hour of wall-clock time.
func NewToken(access, refresh string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: refresh,
		Expiry:       time.Now().Add(time.Hour),
	}
}

// JSONResponse builds a decoded [services.APIResponse].
func JSONResponse(status int, data any) *services.APIResponse {
	return &services.APIResponse{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": {"application/json"}},
		IsJSON:     true,
		JSONData:   data,
	}
}

// FakeClock is a manually advanced clock. Sleep returns at once after moving time forward.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Slept returns the total duration passed to Sleep.
func (c *FakeClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// Eventually polls cond until it holds or two seconds pass.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
