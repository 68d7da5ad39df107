package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	ErrRequest            = fmt.Errorf("error occurred while making the request")
	ErrResponseParse      = fmt.Errorf("error occurred while parsing the response")
	ErrResponseData       = fmt.Errorf("missing or invalid data in the response")
	ErrNoAccessToken      = fmt.Errorf("no access token was found")
	ErrInvalidAccessToken = fmt.Errorf("invalid access token")
	ErrRateLimited        = fmt.Errorf("too many requests")
	ErrBrowser            = fmt.Errorf("error occurred while interacting with browser")
	ErrAuthDenied         = fmt.Errorf("authorization was denied")
	ErrAuthTimeout        = fmt.Errorf("timed out waiting for browser authorization")
	ErrUnknownSession     = fmt.Errorf("unknown client")
	ErrIDOverflow         = fmt.Errorf("client id counter overflow")
)

// StatusError is an upstream response whose status code has no dedicated handling.
//
// 401 and 429 match [ErrInvalidAccessToken] and [ErrRateLimited] under [errors.Is].
type StatusError struct {
	Code       int
	RetryAfter time.Duration // set for 429
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.Code)
	if text == "" {
		text = "unexpected status"
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("upstream returned %d %s (retry after %s)", e.Code, text, e.RetryAfter)
	}
	return fmt.Sprintf("upstream returned %d %s", e.Code, text)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	case ErrInvalidAccessToken:
		return e.Code == http.StatusUnauthorized
	}
	return false
}

// StatusCode maps an error returned by the session layer to the HTTP status sent to the caller.
//
// Provider 4xx/5xx statuses pass through unchanged. Anything internal becomes 500.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var se *StatusError
	switch {
	case errors.Is(err, ErrUnknownSession):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidAccessToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &se):
		if se.Code >= 400 && se.Code < 600 {
			return se.Code
		}
	}
	return http.StatusInternalServerError
}

// classifyTokenError turns an error from the OAuth token endpoint into one of the package's error kinds.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return fmt.Errorf("token endpoint: %w", &StatusError{Code: re.Response.StatusCode})
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}

	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	if errors.As(err, &syn) || errors.As(err, &typ) || strings.Contains(err.Error(), "cannot parse") {
		return fmt.Errorf("%w: %v", ErrResponseParse, err)
	}

	return fmt.Errorf("%w: %v", ErrResponseData, err)
}
