package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voicebrain/voicebrain/internal/models"
	"github.com/voicebrain/voicebrain/internal/util"
)

// contextHandler handles the context collection (POST /context,
// GET /context?user_id=).
func (s *Server) contextHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.contextHandler: processing request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodPost:
		s.createContextItemHandler(w, r)
	case http.MethodGet:
		s.listContextItemsHandler(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// createContextItemHandler handles POST /context.
func (s *Server) createContextItemHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateContextItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createContextItemHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.createContextItemHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	now := time.Now()
	item := models.ContextItem{
		ID:          util.GenerateContextItemID(),
		UserID:      req.UserID,
		ContextType: req.ContextType,
		Name:        req.Name,
		Aliases:     req.Aliases,
		Metadata:    req.Metadata,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.st.SaveContextItem(item); err != nil {
		slog.Error("Server.createContextItemHandler: failed to save context item", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save context item"))
		return
	}

	slog.Info("Server.createContextItemHandler: context item created", "itemID", item.ID, "userID", item.UserID, "type", item.ContextType, "name", item.Name)
	writeJSONResponse(w, http.StatusCreated, models.Success(item))
}

// listContextItemsHandler handles GET /context?user_id=.
func (s *Server) listContextItemsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id is required"))
		return
	}
	items, err := s.st.ListContextItems(userID)
	if err != nil {
		slog.Error("Server.listContextItemsHandler: failed to list context items", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list context items"))
		return
	}
	slog.Debug("Server.listContextItemsHandler: returning context items", "userID", userID, "count", len(items))
	writeJSONResponse(w, http.StatusOK, models.Success(items))
}

// contextItemHandler routes DELETE /context/{id}. Deletion deactivates the
// item so past classifications keep their provenance.
func (s *Server) contextItemHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.contextItemHandler: processing request", "method", r.Method, "path", r.URL.Path)

	itemID := strings.TrimPrefix(r.URL.Path, "/context/")
	if itemID == "" || strings.Contains(itemID, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown context endpoint"))
		return
	}
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", http.MethodDelete)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id is required"))
		return
	}

	item, err := s.st.GetContextItem(itemID)
	if err != nil {
		slog.Error("Server.contextItemHandler: failed to load context item", "error", err, "itemID", itemID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load context item"))
		return
	}
	if item == nil || item.UserID != userID {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Context item not found"))
		return
	}

	if err := s.st.DeactivateContextItem(itemID); err != nil {
		if errors.Is(err, models.ErrContextItemNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Context item not found"))
			return
		}
		slog.Error("Server.contextItemHandler: failed to deactivate context item", "error", err, "itemID", itemID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to deactivate context item"))
		return
	}

	slog.Info("Server.contextItemHandler: context item deactivated", "itemID", itemID, "userID", userID)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"id": itemID, "is_active": false}))
}
