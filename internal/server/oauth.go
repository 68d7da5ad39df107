package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spt/internal/session"
)

// CallbackHandler receives the provider's OAuth redirect and hands the authorization code
// to the session named by the state parameter.
//
// Implements the Handler interface for registration with a Router.
type CallbackHandler struct {
	registry *session.Registry
	logger   *log.Logger
}

// NewCallbackHandler creates a callback handler resolving sessions through registry.
func NewCallbackHandler(registry *session.Registry, logger *log.Logger) *CallbackHandler {
	return &CallbackHandler{registry: registry, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"GET /auth/cb"}
}

// ServeHTTP handles the OAuth callback request.
//
// An unknown or malformed state gets a generic failure page and touches no session. A
// redirect carrying an error instead of a code wakes the waiting login with that error.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	id, err := strconv.ParseUint(query.Get("state"), 10, 64)
	if err != nil {
		h.logger.Warn("callback with malformed state")
		writePage(w, http.StatusBadRequest, "Authorization Failed", "Something went wrong. Please retry from the terminal.")
		return
	}

	sess, ok := h.registry.Get(id)
	if !ok {
		h.logger.Warn("callback for unknown client", "client_id", id)
		writePage(w, http.StatusBadRequest, "Authorization Failed", "Something went wrong. Please retry from the terminal.")
		return
	}

	code := query.Get("code")
	if code == "" {
		reason := strings.TrimSpace(query.Get("error") + " " + query.Get("error_description"))
		if reason == "" {
			reason = "no authorization code"
		}
		sess.Deny(reason)
		writePage(w, http.StatusBadRequest, "Authorization Failed", "Authorization was not granted. You can close this window.")
		return
	}

	sess.Deliver(code)
	writePage(w, http.StatusOK, "✓ Authorization Received", "You can close this window and return to the terminal.")
}

func writePage(w http.ResponseWriter, status int, title, message string) {
	color := "#1DB954"
	if status != http.StatusOK {
		color = "#E22134"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
    <title>%[1]s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: %[3]s; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%[1]s</h1>
        <p>%[2]s</p>
    </div>
</body>
</html>
`, title, message, color)
}
