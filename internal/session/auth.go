package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spt/internal/services"
	"golang.org/x/oauth2"
)

// State is a position in a session's authentication lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAwaitingBrowserCode
	StateAuthenticated
	StateExpired
	StateRefreshing
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingBrowserCode:
		return "awaiting_browser_code"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	case StateRefreshing:
		return "refreshing"
	case StateInvalid:
		return "invalid"
	}
	return "unknown"
}

type credential struct {
	accessToken  string
	expiry       time.Time // may already be in the past
	refreshToken string
}

// Authenticator drives one session from unauthenticated to holding a valid bearer token.
//
// At most one refresh or browser flow runs at a time; callers arriving during a flow
// wait for it and reuse its result.
type Authenticator struct {
	id          uint64
	provider    services.Provider
	openBrowser func(string) error
	rendezvous  *Rendezvous
	clock       Clock
	authTimeout time.Duration
	logger      *log.Logger

	flow sync.Mutex

	mu    sync.RWMutex
	cred  credential
	state State
}

// State reports the current lifecycle state. An authenticated session whose token has
// lapsed reports [StateExpired].
func (a *Authenticator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state == StateAuthenticated && !a.clock.Now().Before(a.cred.expiry) {
		return StateExpired
	}
	return a.state
}

// EnsureValid returns an unexpired access token, refreshing it or running the browser
// login as needed.
//
// The browser wait is detached from ctx cancellation: a caller that goes away does not
// abort a login the user may still complete.
func (a *Authenticator) EnsureValid(ctx context.Context) (string, error) {
	if token, ok := a.current(); ok {
		return token, nil
	}

	a.flow.Lock()
	defer a.flow.Unlock()

	if token, ok := a.current(); ok {
		return token, nil
	}

	a.mu.RLock()
	refreshToken := a.cred.refreshToken
	a.mu.RUnlock()

	if refreshToken != "" {
		token, err := a.refresh(ctx, refreshToken)
		if err == nil {
			return token, nil
		}
		a.logger.Warn("failed to refresh access token, falling back to browser login", "err", err)
		a.reset(StateUnauthenticated)
	}

	return a.authorize(ctx)
}

// Invalidate drops the access token after the provider rejected it. The refresh token
// is kept so the next [Authenticator.EnsureValid] can refresh silently.
//
// Only the rejected token is dropped: if another caller already replaced it, the newer
// token stays.
func (a *Authenticator) Invalidate(rejected string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cred.accessToken != rejected {
		return
	}
	a.cred.accessToken = ""
	a.cred.expiry = time.Time{}
	if a.cred.refreshToken != "" {
		a.state = StateExpired
	} else {
		a.state = StateUnauthenticated
	}
}

func (a *Authenticator) current() (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.cred.accessToken == "" || !a.clock.Now().Before(a.cred.expiry) {
		return "", false
	}
	return a.cred.accessToken, true
}

func (a *Authenticator) refresh(ctx context.Context, refreshToken string) (string, error) {
	a.setState(StateRefreshing)
	a.logger.Info("refreshing access token")

	tok, err := a.provider.Refresh(context.WithoutCancel(ctx), refreshToken)
	if err != nil {
		return "", classifyTokenError(err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	if err := a.store(tok); err != nil {
		return "", err
	}

	a.logger.Info("access token refreshed")
	return tok.AccessToken, nil
}

func (a *Authenticator) authorize(ctx context.Context) (string, error) {
	if a.rendezvous.Discard() {
		a.logger.Debug("discarded stale authorization code")
	}

	verifier := oauth2.GenerateVerifier()
	authURL := a.provider.AuthURL(strconv.FormatUint(a.id, 10), verifier)

	a.setState(StateAwaitingBrowserCode)
	a.logger.Info("opening browser for authorization")

	if err := a.openBrowser(authURL); err != nil {
		a.reset(StateUnauthenticated)
		return "", fmt.Errorf("%w: %v", ErrBrowser, err)
	}

	flowCtx := context.WithoutCancel(ctx)
	waitCtx := flowCtx
	if a.authTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(flowCtx, a.authTimeout)
		defer cancel()
	}

	code, err := a.rendezvous.Wait(waitCtx)
	if err != nil {
		a.reset(StateInvalid)
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrAuthTimeout, a.authTimeout)
		}
		return "", err
	}

	a.logger.Debug("received callback authorization code")

	tok, err := a.provider.Exchange(flowCtx, code, verifier)
	if err != nil {
		a.reset(StateInvalid)
		a.logger.Error("failed to exchange authorization code", "err", err)
		return "", classifyTokenError(err)
	}
	if tok.RefreshToken == "" {
		a.reset(StateInvalid)
		return "", fmt.Errorf("%w: token response has no refresh_token", ErrResponseData)
	}
	if err := a.store(tok); err != nil {
		a.reset(StateInvalid)
		return "", err
	}

	a.logger.Info("authenticated")
	return tok.AccessToken, nil
}

// store saves tok, translating its wall-clock expiry onto the session clock.
func (a *Authenticator) store(tok *oauth2.Token) error {
	if tok.AccessToken == "" {
		return ErrNoAccessToken
	}
	if tok.Expiry.IsZero() {
		return fmt.Errorf("%w: token response has no expires_in", ErrResponseData)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cred = credential{
		accessToken:  tok.AccessToken,
		expiry:       a.clock.Now().Add(time.Until(tok.Expiry)),
		refreshToken: tok.RefreshToken,
	}
	a.state = StateAuthenticated
	return nil
}

// reset clears both tokens and moves to state.
func (a *Authenticator) reset(state State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cred = credential{}
	a.state = state
}

func (a *Authenticator) setState(state State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
}
