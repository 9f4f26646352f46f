// Package store provides storage backends for VoiceBrain.
//
// This file implements an in-memory store used in tests and for quick local
// development. It mirrors the ordering guarantees of the SQL backends.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/voicebrain/voicebrain/internal/models"
	"github.com/voicebrain/voicebrain/internal/util"
)

type InMemoryStore struct {
	mu              sync.Mutex
	contextItems    map[string]models.ContextItem
	voiceMemos      map[string]models.VoiceMemo
	classifications map[string]models.Classification
	actionItems     map[string]models.ActionItem
	jobs            map[string]Job
}

var (
	_ Store   = (*InMemoryStore)(nil)
	_ JobRepo = (*InMemoryStore)(nil)
)

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		contextItems:    make(map[string]models.ContextItem),
		voiceMemos:      make(map[string]models.VoiceMemo),
		classifications: make(map[string]models.Classification),
		actionItems:     make(map[string]models.ActionItem),
		jobs:            make(map[string]Job),
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) SaveContextItem(item models.ContextItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contextItems[item.ID] = item
	return nil
}

func (s *InMemoryStore) GetContextItem(id string) (*models.ContextItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.contextItems[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *InMemoryStore) ListContextItems(userID string) ([]models.ContextItem, error) {
	return s.listContextItems(userID, false), nil
}

func (s *InMemoryStore) ListActiveContextItems(userID string) ([]models.ContextItem, error) {
	return s.listContextItems(userID, true), nil
}

func (s *InMemoryStore) listContextItems(userID string, activeOnly bool) []models.ContextItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.ContextItem
	for _, item := range s.contextItems {
		if item.UserID != userID {
			continue
		}
		if activeOnly && !item.IsActive {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ContextType != items[j].ContextType {
			return items[i].ContextType < items[j].ContextType
		}
		return items[i].Name < items[j].Name
	})
	return items
}

func (s *InMemoryStore) UpsertDiscoveredContextItem(item models.ContextItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.contextItems {
		if existing.UserID == item.UserID &&
			existing.ContextType == item.ContextType &&
			existing.Name == item.Name {
			return false, nil
		}
	}
	s.contextItems[item.ID] = item
	return true, nil
}

func (s *InMemoryStore) DeactivateContextItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.contextItems[id]
	if !ok {
		return models.ErrContextItemNotFound
	}
	item.IsActive = false
	item.UpdatedAt = time.Now()
	s.contextItems[id] = item
	return nil
}

func (s *InMemoryStore) SaveVoiceMemo(memo models.VoiceMemo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceMemos[memo.ID] = memo
	return nil
}

func (s *InMemoryStore) GetVoiceMemo(id string) (*models.VoiceMemo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	memo, ok := s.voiceMemos[id]
	if !ok {
		return nil, nil
	}
	return &memo, nil
}

func (s *InMemoryStore) ListVoiceMemos(userID string) ([]models.VoiceMemo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var memos []models.VoiceMemo
	for _, memo := range s.voiceMemos {
		if memo.UserID == userID {
			memos = append(memos, memo)
		}
	}
	sort.Slice(memos, func(i, j int) bool {
		return memos[i].CreatedAt.After(memos[j].CreatedAt)
	})
	return memos, nil
}

func (s *InMemoryStore) SaveClassification(c models.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifications[c.ID] = c
	return nil
}

func (s *InMemoryStore) GetClassification(id string) (*models.Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classifications[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) ListClassificationsForMemo(memoID string) ([]models.Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.Classification
	for _, c := range s.classifications {
		if c.VoiceMemoID == memoID {
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (s *InMemoryStore) SaveActionItem(a models.ActionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionItems[a.ID] = a
	return nil
}

func (s *InMemoryStore) GetActionItem(id string) (*models.ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actionItems[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *InMemoryStore) ListActionItems(userID string, status models.ActionStatus) ([]models.ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.ActionItem
	for _, a := range s.actionItems {
		if a.UserID != userID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		items = append(items, a)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *InMemoryStore) ListActionItemsForClassification(classificationID string) ([]models.ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.ActionItem
	for _, a := range s.actionItems {
		if a.ClassificationID == classificationID {
			items = append(items, a)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *InMemoryStore) EnqueueJob(kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, j := range s.jobs {
			if j.DedupeKey == dedupeKey && j.Status != JobStatusDone && j.Status != JobStatusCanceled {
				return j.ID, nil
			}
		}
	}
	now := time.Now()
	job := Job{
		ID:          util.GenerateRandomID("job_", 32),
		Kind:        kind,
		RunAt:       runAt,
		PayloadJSON: payloadJSON,
		Status:      JobStatusQueued,
		MaxAttempts: 3,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[job.ID] = job
	return job.ID, nil
}

func (s *InMemoryStore) ClaimDueJobs(now time.Time, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Job
	for _, j := range s.jobs {
		if j.Status == JobStatusQueued && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		j := due[i]
		j.Status = JobStatusRunning
		lockedAt := now
		j.LockedAt = &lockedAt
		j.UpdatedAt = now
		s.jobs[j.ID] = j
		due[i] = j
	}
	return due, nil
}

func (s *InMemoryStore) CompleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	j.Status = JobStatusDone
	j.UpdatedAt = time.Now()
	s.jobs[id] = j
	return nil
}

func (s *InMemoryStore) FailJob(id string, errMsg string, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	j.Attempt++
	j.LastError = errMsg
	j.LockedAt = nil
	j.UpdatedAt = time.Now()
	if j.Attempt >= j.MaxAttempts {
		j.Status = JobStatusFailed
	} else {
		j.Status = JobStatusQueued
		j.RunAt = nextRunAt
	}
	s.jobs[id] = j
	return nil
}

func (s *InMemoryStore) CancelJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	j.Status = JobStatusCanceled
	j.LockedAt = nil
	j.UpdatedAt = time.Now()
	s.jobs[id] = j
	return nil
}

func (s *InMemoryStore) RequeueStaleRunningJobs(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.Status == JobStatusRunning && j.LockedAt != nil && j.LockedAt.Before(staleBefore) {
			j.Status = JobStatusQueued
			j.LockedAt = nil
			j.UpdatedAt = time.Now()
			s.jobs[id] = j
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetJob(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return &j, nil
}
