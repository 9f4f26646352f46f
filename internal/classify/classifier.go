package classify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voicebrain/voicebrain/internal/models"
	"github.com/voicebrain/voicebrain/internal/store"
	"github.com/voicebrain/voicebrain/internal/util"
)

// CompletionClient is the model interface the classifier depends on.
// Implemented by genai.Client.
type CompletionClient interface {
	GenerateClassification(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// Classifier runs the classification pipeline for one memo at a time.
// Instances are safe for concurrent use; runs for different memos share no
// state beyond the store.
type Classifier struct {
	st  store.Store
	ai  CompletionClient
	tax models.Taxonomy
}

// NewClassifier creates a Classifier.
func NewClassifier(st store.Store, ai CompletionClient, tax models.Taxonomy) *Classifier {
	return &Classifier{st: st, ai: ai, tax: tax}
}

// ClassifyMemo classifies a transcribed memo: renders prompts from a context
// snapshot, invokes the model, strictly parses the response, and persists the
// classification with its derived action items. Re-classifying a memo appends
// a new classification row; history is never overwritten.
//
// The memo always ends in a terminal classification status. On failure after
// the run has started, the memo is marked failed and the error surfaced;
// retry is a deliberate caller action.
func (c *Classifier) ClassifyMemo(ctx context.Context, memoID string) (*models.Classification, error) {
	memo, err := c.st.GetVoiceMemo(memoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memo %s: %w", memoID, err)
	}
	if memo == nil {
		return nil, models.ErrMemoNotFound
	}
	// Precondition failure: memo status is untouched so the caller can retry
	// once transcription finishes.
	if memo.ProcessingStatus != models.ProcessingStatusCompleted || memo.Transcript == "" {
		return nil, models.ErrTranscriptionNotReady
	}

	memo.ClassificationStatus = models.ClassificationStatusProcessing
	memo.UpdatedAt = time.Now()
	if err := c.st.SaveVoiceMemo(*memo); err != nil {
		return nil, fmt.Errorf("failed to mark memo %s processing: %w", memoID, err)
	}

	contextItems, err := c.st.ListActiveContextItems(memo.UserID)
	if err != nil {
		return nil, c.fail(memo, fmt.Errorf("failed to load context for user %s: %w", memo.UserID, err))
	}

	systemPrompt := BuildSystemPrompt(c.tax, contextItems)
	userPrompt := BuildUserPrompt(memo.Transcript, memo.Title)

	start := time.Now()
	raw, err := c.ai.GenerateClassification(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, c.fail(memo, fmt.Errorf("model call failed for memo %s: %w", memoID, err))
	}
	duration := time.Since(start)

	output, err := ParseClassifierOutput(raw, c.tax)
	if err != nil {
		if se, ok := err.(*SchemaError); ok {
			slog.Error("Classifier.ClassifyMemo: schema violation", "memoID", memoID, "reason", se.Reason, "raw", se.Raw)
		}
		return nil, c.fail(memo, err)
	}

	classification := models.Classification{
		ID:                   util.GenerateClassificationID(),
		VoiceMemoID:          memo.ID,
		UserID:               memo.UserID,
		Entity:               output.Entity,
		Activity:             output.Activity,
		ActionType:           output.ActionType,
		Confidence:           output.Confidence,
		Summary:              output.Summary,
		People:               output.People,
		PropheticWords:       output.PropheticWords,
		HasPropheticContent:  output.HasPropheticContent,
		Discoveries:          output.Discoveries,
		ProcessingModel:      c.ai.Model(),
		ProcessingDurationMs: duration.Milliseconds(),
		CreatedAt:            time.Now(),
	}
	if err := c.st.SaveClassification(classification); err != nil {
		return nil, c.fail(memo, fmt.Errorf("failed to persist classification for memo %s: %w", memoID, err))
	}

	for _, draft := range output.ActionItems {
		action := buildActionItem(classification, draft)
		if err := c.st.SaveActionItem(action); err != nil {
			return nil, c.fail(memo, fmt.Errorf("failed to persist action item for memo %s: %w", memoID, err))
		}
	}

	// Discovery merging is non-fatal: the classification and its action items
	// stay committed even if a merge fails.
	MergeDiscoveries(c.st, memo.UserID, output.Discoveries)

	memo.ClassificationStatus = models.ClassificationStatusCompleted
	memo.ClassificationID = classification.ID
	if models.IsDefaultMemoTitle(memo.Title) && output.TitleSuggestion != "" {
		memo.Title = output.TitleSuggestion
	}
	memo.UpdatedAt = time.Now()
	if err := c.st.SaveVoiceMemo(*memo); err != nil {
		return nil, fmt.Errorf("failed to finalize memo %s: %w", memoID, err)
	}

	slog.Info("Classifier.ClassifyMemo: memo classified",
		"memoID", memo.ID, "classificationID", classification.ID,
		"entity", classification.Entity, "activity", classification.Activity,
		"actionItems", len(output.ActionItems), "durationMs", classification.ProcessingDurationMs)
	return &classification, nil
}

// fail marks the memo's classification as failed and passes the error
// through. A memo must never be left in processing.
func (c *Classifier) fail(memo *models.VoiceMemo, cause error) error {
	memo.ClassificationStatus = models.ClassificationStatusFailed
	memo.UpdatedAt = time.Now()
	if err := c.st.SaveVoiceMemo(*memo); err != nil {
		slog.Error("Classifier.fail: could not mark memo failed", "memoID", memo.ID, "error", err)
	}
	return cause
}

// buildActionItem turns a classifier draft into a persistable action item,
// applying the tier-based initial status rule: red starts pending and waits
// for a human, yellow and green are auto-completed at creation.
func buildActionItem(c models.Classification, draft models.ActionItemDraft) models.ActionItem {
	now := time.Now()
	action := models.ActionItem{
		ID:               util.GenerateActionID(),
		ClassificationID: c.ID,
		VoiceMemoID:      c.VoiceMemoID,
		UserID:           c.UserID,
		Tier:             draft.Tier,
		ActionType:       draft.ActionType,
		Title:            draft.Title,
		Description:      draft.Description,
		RelatedEntity:    draft.RelatedEntity,
		RelatedPeople:    draft.RelatedPeople,
		DeliveryPayload:  draft.DeliveryPayload,
		Status:           models.InitialStatusForTier(draft.Tier),
		Priority:         models.PriorityForTier(draft.Tier),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if action.Status == models.ActionStatusAutoCompleted {
		action.CompletedAt = &now
	}
	return action
}
