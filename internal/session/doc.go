// Package session holds per-client OAuth state for the proxy and forwards authenticated calls upstream.
//
// # Registry
//
// [Registry] assigns sequential client ids starting at 1 and owns every [Session]. Membership is
// guarded by one lock held only for map access; each session synchronizes its own state.
//
// # Authentication
//
// [Authenticator] moves a session through [State] values:
//
//	unauthenticated → awaiting_browser_code → authenticated → expired → refreshing → invalid
//
// A valid token is returned without network calls. An expired one is refreshed; if that fails, or
// there is no refresh token, a PKCE browser login starts and the caller parks on the session's
// [Rendezvous] until the redirect callback delivers a code. Concurrent callers on one session share a
// single refresh or login.
//
// # Backoff
//
// A 429 records a not-before deadline ([Backoff]) from Retry-After, or [DefaultBackoff]. The next call
// on the same session sleeps until it passes; other sessions are unaffected.
package session
