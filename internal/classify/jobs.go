// Durable job kinds and handlers for the memo pipeline. Each memo flows
// through one transcribe_memo job followed by one classify_memo job, so the
// pipeline survives process restarts.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voicebrain/voicebrain/internal/models"
	"github.com/voicebrain/voicebrain/internal/store"
	"github.com/voicebrain/voicebrain/internal/transcribe"
)

// Job kind constants for the memo pipeline.
const (
	JobKindTranscribeMemo = "transcribe_memo"
	JobKindClassifyMemo   = "classify_memo"
)

// MemoJobPayload is the JSON payload for both pipeline job kinds.
type MemoJobPayload struct {
	MemoID string `json:"memo_id"`
}

// TranscribeDedupeKey dedupes transcription jobs per memo.
func TranscribeDedupeKey(memoID string) string {
	return "transcribe:" + memoID
}

// ClassifyDedupeKey dedupes classification jobs per memo.
func ClassifyDedupeKey(memoID string) string {
	return "classify:" + memoID
}

// EnqueueTranscription enqueues a transcription job for a memo.
func EnqueueTranscription(repo store.JobRepo, memoID string) (string, error) {
	payload, err := json.Marshal(MemoJobPayload{MemoID: memoID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcribe payload: %w", err)
	}
	return repo.EnqueueJob(JobKindTranscribeMemo, time.Now(), string(payload), TranscribeDedupeKey(memoID))
}

// EnqueueClassification enqueues a classification job for a memo.
func EnqueueClassification(repo store.JobRepo, memoID string) (string, error) {
	payload, err := json.Marshal(MemoJobPayload{MemoID: memoID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal classify payload: %w", err)
	}
	return repo.EnqueueJob(JobKindClassifyMemo, time.Now(), string(payload), ClassifyDedupeKey(memoID))
}

// RegisterJobHandlers registers the pipeline job handlers with the runner.
// The transcriber may be nil when the deployment only accepts pre-transcribed
// memos; transcription jobs then fail fast.
func RegisterJobHandlers(runner *store.JobRunner, st store.Store, repo store.JobRepo, classifier *Classifier, transcriber transcribe.Transcriber) {
	runner.RegisterHandler(JobKindTranscribeMemo, makeTranscribeHandler(st, repo, transcriber))
	runner.RegisterHandler(JobKindClassifyMemo, makeClassifyHandler(classifier))
}

func makeTranscribeHandler(st store.Store, repo store.JobRepo, transcriber transcribe.Transcriber) store.JobHandler {
	return func(ctx context.Context, payload string) error {
		var p MemoJobPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("invalid transcribe_memo payload: %w", err)
		}

		memo, err := st.GetVoiceMemo(p.MemoID)
		if err != nil {
			return fmt.Errorf("failed to load memo %s: %w", p.MemoID, err)
		}
		if memo == nil {
			slog.Warn("JobHandler.transcribe_memo: memo no longer exists, skipping", "memoID", p.MemoID)
			return nil
		}

		// Idempotency: an already transcribed memo just moves on to
		// classification.
		if memo.ProcessingStatus == models.ProcessingStatusCompleted && memo.Transcript != "" {
			slog.Info("JobHandler.transcribe_memo: already transcribed, enqueueing classification", "memoID", memo.ID)
			_, err := EnqueueClassification(repo, memo.ID)
			return err
		}

		if transcriber == nil {
			return markTranscriptionFailed(st, memo, errors.New("no transcriber configured"))
		}
		if memo.AudioURI == "" {
			return markTranscriptionFailed(st, memo, errors.New("memo has no audio URI and no transcript"))
		}

		memo.ProcessingStatus = models.ProcessingStatusProcessing
		memo.UpdatedAt = time.Now()
		if err := st.SaveVoiceMemo(*memo); err != nil {
			return fmt.Errorf("failed to mark memo %s processing: %w", memo.ID, err)
		}

		slog.Info("JobHandler.transcribe_memo: transcribing", "memoID", memo.ID, "audioURI", memo.AudioURI)
		result, err := transcriber.TranscribeURI(ctx, memo.AudioURI)
		if err != nil {
			// Mark failed so the status is truthful between retries; the
			// runner retries with backoff and the handler resets to processing.
			markErr := markTranscriptionFailedKeepError(st, memo)
			if markErr != nil {
				slog.Error("JobHandler.transcribe_memo: could not mark memo failed", "memoID", memo.ID, "error", markErr)
			}
			return fmt.Errorf("transcription failed for memo %s: %w", memo.ID, err)
		}

		memo.Transcript = result.Text
		if len(result.Segments) > 0 {
			if subtitles, err := json.Marshal(result.Segments); err == nil {
				memo.Subtitles = string(subtitles)
			} else {
				slog.Error("JobHandler.transcribe_memo: subtitle encoding failed", "memoID", memo.ID, "error", err)
			}
		}
		memo.ProcessingStatus = models.ProcessingStatusCompleted
		memo.UpdatedAt = time.Now()
		if err := st.SaveVoiceMemo(*memo); err != nil {
			return fmt.Errorf("failed to save transcript for memo %s: %w", memo.ID, err)
		}

		slog.Info("JobHandler.transcribe_memo: transcription complete", "memoID", memo.ID, "chars", len(memo.Transcript))
		_, err = EnqueueClassification(repo, memo.ID)
		return err
	}
}

func makeClassifyHandler(classifier *Classifier) store.JobHandler {
	return func(ctx context.Context, payload string) error {
		var p MemoJobPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("invalid classify_memo payload: %w", err)
		}

		_, err := classifier.ClassifyMemo(ctx, p.MemoID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, models.ErrTranscriptionNotReady):
			// Transient ordering issue: let the runner retry with backoff.
			return err
		case errors.Is(err, models.ErrMemoNotFound):
			slog.Warn("JobHandler.classify_memo: memo no longer exists, skipping", "memoID", p.MemoID)
			return nil
		default:
			// The memo is already marked failed. Model and schema failures
			// are retried manually by the user, not hammered in a loop.
			slog.Error("JobHandler.classify_memo: classification failed, awaiting manual retry", "memoID", p.MemoID, "error", err)
			return nil
		}
	}
}

func markTranscriptionFailed(st store.Store, memo *models.VoiceMemo, cause error) error {
	slog.Error("JobHandler.transcribe_memo: unrecoverable", "memoID", memo.ID, "error", cause)
	return markTranscriptionFailedKeepError(st, memo)
}

func markTranscriptionFailedKeepError(st store.Store, memo *models.VoiceMemo) error {
	memo.ProcessingStatus = models.ProcessingStatusFailed
	memo.UpdatedAt = time.Now()
	return st.SaveVoiceMemo(*memo)
}
