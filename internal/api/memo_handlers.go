package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voicebrain/voicebrain/internal/classify"
	"github.com/voicebrain/voicebrain/internal/models"
	"github.com/voicebrain/voicebrain/internal/util"
)

// memosHandler handles the memo collection (POST /memos, GET /memos?user_id=).
func (s *Server) memosHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.memosHandler: processing request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodPost:
		s.createMemoHandler(w, r)
	case http.MethodGet:
		s.listMemosHandler(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// createMemoHandler handles POST /memos. A memo arrives either already
// transcribed or as an audio reference; audio memos get a transcription job,
// transcribed memos are ready for classification immediately.
func (s *Server) createMemoHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMemoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createMemoHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.createMemoHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	now := time.Now()
	memo := models.VoiceMemo{
		ID:                   util.GenerateMemoID(),
		UserID:               req.UserID,
		Title:                req.Title,
		AudioURI:             req.AudioURI,
		Transcript:           req.Transcript,
		ClassificationStatus: models.ClassificationStatusNotStarted,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if memo.Title == "" {
		memo.Title = "Voice memo " + now.Format("2006-01-02")
	}
	if req.Transcript != "" {
		memo.ProcessingStatus = models.ProcessingStatusCompleted
	} else {
		memo.ProcessingStatus = models.ProcessingStatusPending
	}

	if err := s.st.SaveVoiceMemo(memo); err != nil {
		slog.Error("Server.createMemoHandler: failed to save memo", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save memo"))
		return
	}

	if memo.ProcessingStatus == models.ProcessingStatusPending {
		if _, err := classify.EnqueueTranscription(s.jobs, memo.ID); err != nil {
			slog.Error("Server.createMemoHandler: failed to enqueue transcription", "error", err, "memoID", memo.ID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to enqueue transcription"))
			return
		}
	}

	slog.Info("Server.createMemoHandler: memo created", "memoID", memo.ID, "userID", memo.UserID, "processingStatus", memo.ProcessingStatus)
	writeJSONResponse(w, http.StatusCreated, models.Success(memo))
}

// listMemosHandler handles GET /memos?user_id=.
func (s *Server) listMemosHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id is required"))
		return
	}
	memos, err := s.st.ListVoiceMemos(userID)
	if err != nil {
		slog.Error("Server.listMemosHandler: failed to list memos", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list memos"))
		return
	}
	slog.Debug("Server.listMemosHandler: returning memos", "userID", userID, "count", len(memos))
	writeJSONResponse(w, http.StatusOK, models.Success(memos))
}

// memoSubHandler routes /memos/{id} and /memos/{id}/classify.
func (s *Server) memoSubHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	path := strings.TrimPrefix(r.URL.Path, "/memos/")
	segments := strings.Split(path, "/")

	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown memo endpoint"))
		return
	}
	memoID := segments[0]

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getMemoHandler(w, r, memoID)
		default:
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 2 && segments[1] == "classify" {
		switch r.Method {
		case http.MethodPost:
			s.classifyMemoHandler(w, r, memoID)
		default:
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown memo endpoint"))
}

// memoDetail is the GET /memos/{id} payload: the memo plus its latest
// classification and that classification's action items.
type memoDetail struct {
	Memo           models.VoiceMemo       `json:"memo"`
	Classification *models.Classification `json:"classification,omitempty"`
	Actions        []models.ActionItem    `json:"actions,omitempty"`
}

// getMemoHandler handles GET /memos/{id}?user_id=.
func (s *Server) getMemoHandler(w http.ResponseWriter, r *http.Request, memoID string) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id is required"))
		return
	}
	memo, err := s.st.GetVoiceMemo(memoID)
	if err != nil {
		slog.Error("Server.getMemoHandler: failed to load memo", "error", err, "memoID", memoID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load memo"))
		return
	}
	if memo == nil || memo.UserID != userID {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Memo not found"))
		return
	}

	detail := memoDetail{Memo: *memo}
	if memo.ClassificationID != "" {
		c, err := s.st.GetClassification(memo.ClassificationID)
		if err != nil {
			slog.Error("Server.getMemoHandler: failed to load classification", "error", err, "classificationID", memo.ClassificationID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load classification"))
			return
		}
		detail.Classification = c
		if c != nil {
			items, err := s.st.ListActionItemsForClassification(c.ID)
			if err != nil {
				slog.Error("Server.getMemoHandler: failed to load actions", "error", err, "classificationID", c.ID)
				writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load action items"))
				return
			}
			detail.Actions = items
		}
	}

	writeJSONResponse(w, http.StatusOK, models.Success(detail))
}

// classifyMemoHandler handles POST /memos/{id}/classify. The classification
// itself runs in the job runner; this endpoint only checks preconditions and
// enqueues. A dedupe key collapses repeated requests while a run is queued.
func (s *Server) classifyMemoHandler(w http.ResponseWriter, r *http.Request, memoID string) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.classifyMemoHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id is required"))
		return
	}

	memo, err := s.st.GetVoiceMemo(memoID)
	if err != nil {
		slog.Error("Server.classifyMemoHandler: failed to load memo", "error", err, "memoID", memoID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load memo"))
		return
	}
	if memo == nil || memo.UserID != req.UserID {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Memo not found"))
		return
	}
	if memo.ProcessingStatus != models.ProcessingStatusCompleted || memo.Transcript == "" {
		slog.Warn("Server.classifyMemoHandler: transcript not ready", "memoID", memoID, "processingStatus", memo.ProcessingStatus)
		writeJSONResponse(w, http.StatusConflict, models.Error(models.ErrTranscriptionNotReady.Error()))
		return
	}

	jobID, err := classify.EnqueueClassification(s.jobs, memoID)
	if err != nil {
		slog.Error("Server.classifyMemoHandler: failed to enqueue classification", "error", err, "memoID", memoID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to enqueue classification"))
		return
	}

	slog.Info("Server.classifyMemoHandler: classification enqueued", "memoID", memoID, "jobID", jobID)
	writeJSONResponse(w, http.StatusAccepted, models.Queued("Classification enqueued", map[string]string{"job_id": jobID, "memo_id": memoID}))
}
