package classify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/voicebrain/voicebrain/internal/models"
	"github.com/voicebrain/voicebrain/internal/store"
	"github.com/voicebrain/voicebrain/internal/transcribe"
)

type mockTranscriber struct {
	result *transcribe.Result
	err    error
}

func (m *mockTranscriber) TranscribeURI(ctx context.Context, uri string) (*transcribe.Result, error) {
	return m.result, m.err
}

func (m *mockTranscriber) Close() error { return nil }

func memoPayload(t *testing.T, memoID string) string {
	t.Helper()
	b, err := json.Marshal(MemoJobPayload{MemoID: memoID})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestTranscribeHandler_Success(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	memo := models.VoiceMemo{
		ID: "memo_1", UserID: "user1", Title: "Voice memo",
		AudioURI:             "gs://bucket/memo_1.wav",
		ProcessingStatus:     models.ProcessingStatusPending,
		ClassificationStatus: models.ClassificationStatusNotStarted,
		CreatedAt:            now, UpdatedAt: now,
	}
	st.SaveVoiceMemo(memo)

	tr := &mockTranscriber{result: &transcribe.Result{
		Text:     "Tell Maria about the gala.",
		Segments: []transcribe.Segment{{Text: "Tell Maria about the gala.", StartSec: 0, EndSec: 2.5}},
	}}
	handler := makeTranscribeHandler(st, st, tr)

	if err := handler(context.Background(), memoPayload(t, "memo_1")); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	got, _ := st.GetVoiceMemo("memo_1")
	if got.ProcessingStatus != models.ProcessingStatusCompleted {
		t.Errorf("expected completed, got %q", got.ProcessingStatus)
	}
	if got.Transcript != "Tell Maria about the gala." {
		t.Errorf("transcript not saved: %q", got.Transcript)
	}
	if got.Subtitles == "" {
		t.Error("subtitles not saved")
	}

	// A classification job was chained with a per-memo dedupe key.
	jobs, err := st.ClaimDueJobs(time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Kind != JobKindClassifyMemo {
		t.Fatalf("expected one classify job, got %+v", jobs)
	}
	if jobs[0].DedupeKey != ClassifyDedupeKey("memo_1") {
		t.Errorf("unexpected dedupe key: %q", jobs[0].DedupeKey)
	}
}

func TestTranscribeHandler_AlreadyTranscribedChainsClassification(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	st.SaveVoiceMemo(models.VoiceMemo{
		ID: "memo_1", UserID: "user1",
		Transcript:           "already here",
		ProcessingStatus:     models.ProcessingStatusCompleted,
		ClassificationStatus: models.ClassificationStatusNotStarted,
		CreatedAt:            now, UpdatedAt: now,
	})
	handler := makeTranscribeHandler(st, st, nil)

	if err := handler(context.Background(), memoPayload(t, "memo_1")); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	jobs, _ := st.ClaimDueJobs(time.Now(), 10)
	if len(jobs) != 1 || jobs[0].Kind != JobKindClassifyMemo {
		t.Fatalf("expected classify job, got %+v", jobs)
	}
}

func TestTranscribeHandler_FailureMarksMemoAndRetries(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	st.SaveVoiceMemo(models.VoiceMemo{
		ID: "memo_1", UserID: "user1",
		AudioURI:             "gs://bucket/memo_1.wav",
		ProcessingStatus:     models.ProcessingStatusPending,
		ClassificationStatus: models.ClassificationStatusNotStarted,
		CreatedAt:            now, UpdatedAt: now,
	})
	handler := makeTranscribeHandler(st, st, &mockTranscriber{err: errors.New("speech unavailable")})

	err := handler(context.Background(), memoPayload(t, "memo_1"))
	if err == nil {
		t.Fatal("expected error so the job runner retries")
	}
	got, _ := st.GetVoiceMemo("memo_1")
	if got.ProcessingStatus != models.ProcessingStatusFailed {
		t.Errorf("expected failed between retries, got %q", got.ProcessingStatus)
	}
}

func TestTranscribeHandler_MissingMemoIsSkipped(t *testing.T) {
	st := store.NewInMemoryStore()
	handler := makeTranscribeHandler(st, st, nil)
	if err := handler(context.Background(), memoPayload(t, "memo_gone")); err != nil {
		t.Errorf("missing memo should not error the job: %v", err)
	}
}

func TestClassifyHandler_PermanentFailureDoesNotRetry(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	st.SaveVoiceMemo(models.VoiceMemo{
		ID: "memo_1", UserID: "user1",
		Transcript:           "some transcript",
		ProcessingStatus:     models.ProcessingStatusCompleted,
		ClassificationStatus: models.ClassificationStatusNotStarted,
		CreatedAt:            now, UpdatedAt: now,
	})
	classifier := NewClassifier(st, &mockCompletion{err: errors.New("model down")}, models.DefaultTaxonomy())
	handler := makeClassifyHandler(classifier)

	// Model failures are terminal for the job: the memo is marked failed and
	// waits for a manual retry instead of hammering the provider.
	if err := handler(context.Background(), memoPayload(t, "memo_1")); err != nil {
		t.Fatalf("expected nil so the job completes, got %v", err)
	}
	got, _ := st.GetVoiceMemo("memo_1")
	if got.ClassificationStatus != models.ClassificationStatusFailed {
		t.Errorf("expected failed, got %q", got.ClassificationStatus)
	}
}

func TestClassifyHandler_NotReadyRetries(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	st.SaveVoiceMemo(models.VoiceMemo{
		ID: "memo_1", UserID: "user1",
		ProcessingStatus:     models.ProcessingStatusProcessing,
		ClassificationStatus: models.ClassificationStatusNotStarted,
		CreatedAt:            now, UpdatedAt: now,
	})
	classifier := NewClassifier(st, &mockCompletion{resp: validOutput}, models.DefaultTaxonomy())
	handler := makeClassifyHandler(classifier)

	err := handler(context.Background(), memoPayload(t, "memo_1"))
	if !errors.Is(err, models.ErrTranscriptionNotReady) {
		t.Fatalf("expected ErrTranscriptionNotReady so the runner retries, got %v", err)
	}
}

func TestClassifyHandler_SuccessfulRun(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	st.SaveVoiceMemo(models.VoiceMemo{
		ID: "memo_1", UserID: "user1", Title: "Voice memo",
		Transcript:           "Tell Maria I felt God say she should start the ministry next month",
		ProcessingStatus:     models.ProcessingStatusCompleted,
		ClassificationStatus: models.ClassificationStatusNotStarted,
		CreatedAt:            now, UpdatedAt: now,
	})
	classifier := NewClassifier(st, &mockCompletion{resp: validOutput}, models.DefaultTaxonomy())
	handler := makeClassifyHandler(classifier)

	if err := handler(context.Background(), memoPayload(t, "memo_1")); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	got, _ := st.GetVoiceMemo("memo_1")
	if got.ClassificationStatus != models.ClassificationStatusCompleted {
		t.Errorf("expected completed, got %q", got.ClassificationStatus)
	}
}
