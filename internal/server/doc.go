// Package server provides the HTTP surface of the local session proxy.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] is applied in the order it is added; the first one added runs outermost.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns internally.
//
// # Routes
//
//	GET  /init                      → allocate a client, {"client_id": n}
//	GET  /ping                      → liveness, {"status": "ok"}
//	GET  /status                    → session count and idle window
//	GET  /auth/cb?code=&state=<id>  → OAuth redirect target, always HTML
//	*    /api/spt-fwd/<path>        → forwarded upstream call for client_id
//
// # OAuth Callback Handler
//
// [CallbackHandler] receives the provider redirect. The state parameter carries the client id; the
// code is handed to that session's rendezvous, waking only the login blocked on it.
//
// # Forwarding
//
// [ForwardHandler] resolves client_id to a session and calls [session.Session.Forward]. Errors are
// written as {"error": "..."} with the status from [session.StatusCode].
//
// # Idle Shutdown
//
// [IdleSupervisor] records activity from every request (see [Activity]) and from the registry. When a
// full inactivity window passes without any, [Server.Run] shuts the HTTP server down and returns.
package server
