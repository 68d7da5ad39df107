package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spt/internal/services"
	"github.com/desertthunder/spt/internal/session"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	id, err := s.registry.Create()
	if err != nil {
		s.logger.Error("failed to create client", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.logger.Info("created client", "client_id", id)
	writeJSON(w, http.StatusOK, map[string]uint64{"client_id": id})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"sessions":             s.registry.Len(),
		"idle_timeout_seconds": int(s.idle.Window().Seconds()),
	})
}

// ForwardHandler relays /api/spt-fwd/<path> calls to the upstream provider on behalf of a
// client session.
//
// GET calls name the client with a client_id query parameter; PUT, POST and DELETE may
// carry it in the JSON body instead. The field is stripped before forwarding.
type ForwardHandler struct {
	registry *session.Registry
	logger   *log.Logger
}

// NewForwardHandler creates a forwarding handler resolving sessions through registry.
func NewForwardHandler(registry *session.Registry, logger *log.Logger) *ForwardHandler {
	return &ForwardHandler{registry: registry, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *ForwardHandler) Routes() []string {
	routes := []string{}
	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete} {
		routes = append(routes, m+" "+services.ForwardPrefix)
	}
	return routes
}

// ServeHTTP resolves the session and forwards the call.
//
// A body over 1 MiB is answered with 413, and a missing or unknown client_id with 403 and
// an empty object, before any session work happens.
func (h *ForwardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var raw []byte
	if r.Method != http.MethodGet && r.Body != nil {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
			return
		}
		raw = data
	}

	fields := map[string]json.RawMessage{}
	isObject := len(raw) > 0 && json.Unmarshal(raw, &fields) == nil

	id, ok := parseClientID(r.URL.Query().Get("client_id"))
	if !ok && isObject {
		id, ok = parseClientID(strings.Trim(string(fields["client_id"]), `"`))
	}
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]any{})
		return
	}

	sess, found := h.registry.Get(id)
	if !found {
		writeJSON(w, http.StatusForbidden, map[string]any{})
		return
	}

	req := services.Request{
		Method: r.Method,
		Path:   strings.TrimPrefix(r.URL.Path, services.ForwardPrefix),
		Query:  services.StripParam(r.URL.Query(), "client_id"),
		Body:   raw,
	}
	if isObject {
		delete(fields, "client_id")
		req.Body = nil
		if len(fields) > 0 {
			body, err := json.Marshal(fields)
			if err != nil {
				h.logger.Error("failed to re-encode request body", "client_id", id, "err", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			req.Body = body
		}
	}

	if req.Path == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "missing upstream path"})
		return
	}

	result, err := sess.Forward(r.Context(), req)
	if err != nil {
		status := session.StatusCode(err)
		if status >= 500 && !errors.As(err, new(*session.StatusError)) {
			h.logger.Error("forward failed", "client_id", id, "path", req.Path, "err", err)
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, result.StatusCode, result.Data)
}

func parseClientID(v string) (uint64, bool) {
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// writeJSON writes data with status. A 204 carries no body on the wire; clients read it as {}.
func writeJSON(w http.ResponseWriter, status int, data any) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug("failed to write response", "err", err)
	}
}
