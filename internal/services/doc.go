// Package services defines the [Provider] interface for the upstream music service and the client for
// the local proxy.
//
// # Spotify Implementation
//
// [SpotifyService] implements [Provider] with [oauth2] as a public PKCE client: the authorization URL
// carries an S256 challenge, code exchange sends the verifier, and refresh uses a token source seeded
// with only the refresh token. Token endpoint errors are returned untouched so callers can classify
// them ([oauth2.RetrieveError] carries the status).
//
// [SpotifyService.Do] attaches the bearer token and returns an [APIResponse] for any status; mapping
// statuses to errors is the caller's job.
//
// # Local Proxy Client
//
// [APIService] is used by the command-line client to reach the proxy: ping, init and forwarded calls
// under [ForwardPrefix]. GET calls name the client in the query string, other methods in the JSON body.
package services
