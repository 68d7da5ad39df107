package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spt/internal/services"
	"github.com/desertthunder/spt/internal/shared"
	"golang.org/x/time/rate"
)

// Options configures every session created by a [Registry].
type Options struct {
	Provider          services.Provider
	OpenBrowser       func(url string) error // defaults to [shared.OpenBrowser]
	AuthTimeout       time.Duration          // 0 waits for the browser login indefinitely
	RequestsPerSecond float64                // 0 disables the per-session limiter
	Clock             Clock
	Logger            *log.Logger
}

// Result is a forwarded call's outcome: the status to relay and the decoded JSON body.
type Result struct {
	StatusCode int
	Data       any
}

// Session is one independently authenticated client of the proxy.
type Session struct {
	id         uint64
	auth       *Authenticator
	backoff    *Backoff
	limiter    *rate.Limiter
	rendezvous *Rendezvous
	provider   services.Provider
	clock      Clock
	logger     *log.Logger
}

func newSession(id uint64, opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	logger = shared.WithLogger(logger, "client_id", id)

	openBrowser := opts.OpenBrowser
	if openBrowser == nil {
		openBrowser = shared.OpenBrowser
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	rv := newRendezvous()
	return &Session{
		id: id,
		auth: &Authenticator{
			id:          id,
			provider:    opts.Provider,
			openBrowser: openBrowser,
			rendezvous:  rv,
			clock:       clock,
			authTimeout: opts.AuthTimeout,
			logger:      logger,
		},
		backoff:    newBackoff(clock),
		limiter:    limiter,
		rendezvous: rv,
		provider:   opts.Provider,
		clock:      clock,
		logger:     logger,
	}
}

func (s *Session) ID() uint64 { return s.id }

// State reports the authentication state.
func (s *Session) State() State { return s.auth.State() }

// BackoffDeadline returns the instant before which upstream calls are held back.
func (s *Session) BackoffDeadline() time.Time { return s.backoff.Deadline() }

// EnsureValid returns a usable access token, logging in if required.
func (s *Session) EnsureValid(ctx context.Context) (string, error) {
	return s.auth.EnsureValid(ctx)
}

// Deliver hands an authorization code from the redirect callback to this session's login.
func (s *Session) Deliver(code string) {
	s.rendezvous.Deliver(code)
}

// Deny wakes a waiting login with the provider's error description.
func (s *Session) Deny(reason string) {
	s.rendezvous.Fail(fmt.Errorf("%w: %s", ErrAuthDenied, reason))
}

// Forward issues req upstream on behalf of this session.
//
// Steps: ensure a valid token, wait out any backoff deadline, call upstream, map the
// status. A 401 drops the token and re-validates once before failing with
// [ErrInvalidAccessToken]; a 429 records a deadline for the next call and fails with
// [ErrRateLimited]. Neither retries the call itself.
func (s *Session) Forward(ctx context.Context, req services.Request) (*Result, error) {
	token, err := s.auth.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.backoff.Wait(ctx); err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("sending request", "method", req.Method, "path", req.Path)

	resp, err := s.provider.Do(ctx, token, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		s.logger.Info("received response", "path", req.Path, "status", resp.StatusCode)
	} else {
		s.logger.Warn("received response", "path", req.Path, "status", resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if !resp.IsJSON {
			return nil, fmt.Errorf("%w: body is not JSON", ErrResponseParse)
		}
		s.backoff.Reset()
		return &Result{StatusCode: http.StatusOK, Data: resp.JSONData}, nil
	case http.StatusNoContent:
		s.backoff.Reset()
		return &Result{StatusCode: http.StatusNoContent, Data: map[string]any{}}, nil
	case http.StatusUnauthorized:
		s.auth.Invalidate(token)
		if _, err := s.auth.EnsureValid(ctx); err != nil {
			return nil, fmt.Errorf("%w: re-authentication failed: %w", ErrInvalidAccessToken, err)
		}
		return nil, ErrInvalidAccessToken
	case http.StatusTooManyRequests:
		wait, ok := ParseRetryAfter(resp.Headers, s.clock.Now())
		if !ok {
			wait = DefaultBackoff
		}
		until := s.backoff.Extend(wait)
		s.logger.Warn("rate limited", "retry_after", wait, "until", until)
		return nil, &StatusError{Code: resp.StatusCode, RetryAfter: wait}
	default:
		return nil, &StatusError{Code: resp.StatusCode}
	}
}
