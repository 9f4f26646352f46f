package store

import (
	"testing"
	"time"
)

func TestSQLiteStore_EnqueueJobDedupe(t *testing.T) {
	s := newTestSQLiteStore(t)

	id1, err := s.EnqueueJob("classify_memo", time.Now(), `{"memo_id":"memo_1"}`, "classify:memo_1")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	id2, err := s.EnqueueJob("classify_memo", time.Now(), `{"memo_id":"memo_1"}`, "classify:memo_1")
	if err != nil {
		t.Fatalf("second EnqueueJob failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected dedupe to return existing job ID, got %q and %q", id1, id2)
	}

	// A completed job no longer blocks re-enqueue.
	if err := s.CompleteJob(id1); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	id3, err := s.EnqueueJob("classify_memo", time.Now(), `{"memo_id":"memo_1"}`, "classify:memo_1")
	if err != nil {
		t.Fatalf("third EnqueueJob failed: %v", err)
	}
	if id3 == id1 {
		t.Error("expected a new job after the previous one completed")
	}
}

func TestSQLiteStore_ClaimDueJobs(t *testing.T) {
	s := newTestSQLiteStore(t)

	now := time.Now()
	dueID, err := s.EnqueueJob("transcribe_memo", now.Add(-time.Minute), `{}`, "")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	if _, err := s.EnqueueJob("transcribe_memo", now.Add(time.Hour), `{}`, ""); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	jobs, err := s.ClaimDueJobs(now, 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != dueID {
		t.Fatalf("expected only the due job, got %+v", jobs)
	}
	if jobs[0].Status != JobStatusRunning {
		t.Errorf("claimed job should be running, got %q", jobs[0].Status)
	}

	// Claimed jobs are not claimable again.
	again, err := s.ClaimDueJobs(now, 10)
	if err != nil {
		t.Fatalf("second ClaimDueJobs failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no claimable jobs, got %d", len(again))
	}
}

func TestSQLiteStore_FailJobRetriesThenFails(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, err := s.EnqueueJob("classify_memo", time.Now(), `{}`, "")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	// max_attempts defaults to 3: two failures requeue, the third is terminal.
	for i := 0; i < 2; i++ {
		if err := s.FailJob(id, "model timeout", time.Now().Add(time.Minute)); err != nil {
			t.Fatalf("FailJob %d failed: %v", i, err)
		}
		job, _ := s.GetJob(id)
		if job.Status != JobStatusQueued {
			t.Fatalf("attempt %d: expected queued, got %q", i, job.Status)
		}
	}
	if err := s.FailJob(id, "model timeout", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("final FailJob failed: %v", err)
	}
	job, _ := s.GetJob(id)
	if job.Status != JobStatusFailed {
		t.Errorf("expected failed after max attempts, got %q", job.Status)
	}
	if job.LastError != "model timeout" {
		t.Errorf("last error not recorded: %q", job.LastError)
	}
}

func TestSQLiteStore_RequeueStaleRunningJobs(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, err := s.EnqueueJob("transcribe_memo", time.Now().Add(-time.Hour), `{}`, "")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	claimed, err := s.ClaimDueJobs(time.Now().Add(-30*time.Minute), 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim failed: %v (%d jobs)", err, len(claimed))
	}

	n, err := s.RequeueStaleRunningJobs(time.Now().Add(-10 * time.Minute))
	if err != nil {
		t.Fatalf("RequeueStaleRunningJobs failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 requeued job, got %d", n)
	}
	job, _ := s.GetJob(id)
	if job.Status != JobStatusQueued {
		t.Errorf("expected queued after requeue, got %q", job.Status)
	}
}

func TestInMemoryStore_JobRepoParity(t *testing.T) {
	s := NewInMemoryStore()

	id1, err := s.EnqueueJob("classify_memo", time.Now(), `{}`, "classify:memo_1")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	id2, _ := s.EnqueueJob("classify_memo", time.Now(), `{}`, "classify:memo_1")
	if id1 != id2 {
		t.Error("expected in-memory dedupe to match SQL behavior")
	}

	jobs, err := s.ClaimDueJobs(time.Now(), 10)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("claim failed: %v (%d jobs)", err, len(jobs))
	}
	if err := s.FailJob(id1, "boom", time.Now()); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}
	job, _ := s.GetJob(id1)
	if job.Status != JobStatusQueued || job.Attempt != 1 {
		t.Errorf("unexpected job after fail: %+v", job)
	}
}
