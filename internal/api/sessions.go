package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/myquery/myquery/internal/mcp"
	"github.com/myquery/myquery/internal/session"
)

const maxActionBodyBytes = 8 << 20

func handleAction(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dispatcher == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "MCP_NOT_CONFIGURED", "session dispatcher is not configured", false, nil)
		return
	}

	var request mcp.Request
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid action request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(string(request.Action)) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "ACTION_REQUIRED", "action is required", false, nil)
		return
	}

	writeJSON(w, http.StatusOK, deps.Dispatcher.Handle(r.Context(), request))
}

func handleGetContext(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dispatcher == nil {
		writeSessionNotFound(w, r)
		return
	}
	snapshot, ok := deps.Dispatcher.Sessions().Context(r.PathValue("session_id"))
	if !ok {
		writeSessionNotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dispatcher == nil {
		writeSessionNotFound(w, r)
		return
	}
	sessionID := r.PathValue("session_id")
	if err := deps.Dispatcher.Sessions().Delete(sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeSessionNotFound(w, r)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_DELETE_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Session deleted", "session_id": sessionID})
}

func handleListSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sessions := []session.Summary{}
	if deps.Dispatcher != nil {
		sessions = deps.Dispatcher.Sessions().List()
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func writeSessionNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", false,
		map[string]any{"session_id": r.PathValue("session_id")})
}
