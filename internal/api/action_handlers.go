package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voicebrain/voicebrain/internal/models"
)

// actionsHandler handles GET /actions?user_id=&status=.
func (s *Server) actionsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.actionsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id is required"))
		return
	}
	status := models.ActionStatus(r.URL.Query().Get("status"))
	if status != "" && !models.IsValidActionStatus(status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidActionStatus.Error()))
		return
	}

	items, err := s.st.ListActionItems(userID, status)
	if err != nil {
		slog.Error("Server.actionsHandler: failed to list actions", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list action items"))
		return
	}
	slog.Debug("Server.actionsHandler: returning actions", "userID", userID, "count", len(items))
	writeJSONResponse(w, http.StatusOK, models.Success(items))
}

// actionHandler routes PATCH /actions/{id} through the state machine and maps
// its sentinel errors onto HTTP statuses.
func (s *Server) actionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.actionHandler: processing request", "method", r.Method, "path", r.URL.Path)

	actionID := strings.TrimPrefix(r.URL.Path, "/actions/")
	if actionID == "" || strings.Contains(actionID, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown action endpoint"))
		return
	}
	if r.Method != http.MethodPatch {
		w.Header().Set("Allow", http.MethodPatch)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req models.ActionTransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.actionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.actionHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	action, err := s.machine.Transition(r.Context(), req.UserID, actionID, req.Status, req.RejectionReason)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrActionNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Action item not found"))
		case errors.Is(err, models.ErrInvalidTransition):
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		case errors.Is(err, models.ErrRejectionReasonRequired), errors.Is(err, models.ErrInvalidActionStatus):
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.actionHandler: transition failed", "error", err, "actionID", actionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to transition action item"))
		}
		return
	}

	slog.Info("Server.actionHandler: action transitioned", "actionID", actionID, "status", action.Status)
	writeJSONResponse(w, http.StatusOK, models.Success(action))
}
