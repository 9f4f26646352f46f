package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voicebrain/voicebrain/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testContextItem(userID, name string) models.ContextItem {
	now := time.Now().UTC().Truncate(time.Second)
	return models.ContextItem{
		ID:          "ctx_" + name,
		UserID:      userID,
		ContextType: models.ContextTypePerson,
		Name:        name,
		Aliases:     []string{name + " alias"},
		Metadata:    map[string]interface{}{"role": "donor"},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSQLiteStore_ContextItemRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	item := testContextItem("user1", "Maria")
	if err := s.SaveContextItem(item); err != nil {
		t.Fatalf("SaveContextItem failed: %v", err)
	}

	got, err := s.GetContextItem(item.ID)
	if err != nil {
		t.Fatalf("GetContextItem failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetContextItem returned nil")
	}
	if got.Name != "Maria" || got.ContextType != models.ContextTypePerson {
		t.Errorf("unexpected item: %+v", got)
	}
	if len(got.Aliases) != 1 || got.Aliases[0] != "Maria alias" {
		t.Errorf("aliases not round-tripped: %v", got.Aliases)
	}
	if got.Metadata["role"] != "donor" {
		t.Errorf("metadata not round-tripped: %v", got.Metadata)
	}
}

func TestSQLiteStore_GetContextItemNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	got, err := s.GetContextItem("ctx_missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing item, got %+v", got)
	}
}

func TestSQLiteStore_ListActiveContextItemsOrdering(t *testing.T) {
	s := newTestSQLiteStore(t)

	b := testContextItem("user1", "Beta")
	a := testContextItem("user1", "Alpha")
	inactive := testContextItem("user1", "Gone")
	inactive.IsActive = false
	project := testContextItem("user1", "Website")
	project.ID = "ctx_website"
	project.ContextType = models.ContextTypeProject

	for _, item := range []models.ContextItem{b, a, inactive, project} {
		if err := s.SaveContextItem(item); err != nil {
			t.Fatalf("SaveContextItem failed: %v", err)
		}
	}

	items, err := s.ListActiveContextItems("user1")
	if err != nil {
		t.Fatalf("ListActiveContextItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 active items, got %d", len(items))
	}
	// person sorts before project, names alphabetical within type
	if items[0].Name != "Alpha" || items[1].Name != "Beta" || items[2].Name != "Website" {
		t.Errorf("unexpected ordering: %q, %q, %q", items[0].Name, items[1].Name, items[2].Name)
	}
}

func TestSQLiteStore_UpsertDiscoveredContextItemIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)

	item := testContextItem("user1", "Pastor John")
	inserted, err := s.UpsertDiscoveredContextItem(item)
	if err != nil {
		t.Fatalf("UpsertDiscoveredContextItem failed: %v", err)
	}
	if !inserted {
		t.Fatal("expected first upsert to insert")
	}

	dup := item
	dup.ID = "ctx_other"
	dup.Metadata = map[string]interface{}{"role": "changed"}
	inserted, err = s.UpsertDiscoveredContextItem(dup)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if inserted {
		t.Error("expected duplicate upsert to be ignored")
	}

	// Existing row must be untouched.
	got, err := s.GetContextItem(item.ID)
	if err != nil {
		t.Fatalf("GetContextItem failed: %v", err)
	}
	if got == nil || got.Metadata["role"] != "donor" {
		t.Errorf("existing item was modified: %+v", got)
	}
}

func TestSQLiteStore_DeactivateContextItem(t *testing.T) {
	s := newTestSQLiteStore(t)

	item := testContextItem("user1", "Maria")
	if err := s.SaveContextItem(item); err != nil {
		t.Fatalf("SaveContextItem failed: %v", err)
	}
	if err := s.DeactivateContextItem(item.ID); err != nil {
		t.Fatalf("DeactivateContextItem failed: %v", err)
	}
	got, _ := s.GetContextItem(item.ID)
	if got == nil || got.IsActive {
		t.Error("item should be inactive")
	}

	if err := s.DeactivateContextItem("ctx_missing"); err != models.ErrContextItemNotFound {
		t.Errorf("expected ErrContextItemNotFound, got %v", err)
	}
}

func TestSQLiteStore_VoiceMemoRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	memo := models.VoiceMemo{
		ID:                   "memo_1",
		UserID:               "user1",
		Title:                "Call with Maria",
		AudioURI:             "gs://bucket/memo1.m4a",
		ProcessingStatus:     models.ProcessingStatusPending,
		ClassificationStatus: models.ClassificationStatusNotStarted,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.SaveVoiceMemo(memo); err != nil {
		t.Fatalf("SaveVoiceMemo failed: %v", err)
	}

	memo.Transcript = "Maria called about the gala."
	memo.ProcessingStatus = models.ProcessingStatusCompleted
	if err := s.SaveVoiceMemo(memo); err != nil {
		t.Fatalf("update SaveVoiceMemo failed: %v", err)
	}

	got, err := s.GetVoiceMemo("memo_1")
	if err != nil {
		t.Fatalf("GetVoiceMemo failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetVoiceMemo returned nil")
	}
	if got.Transcript != "Maria called about the gala." {
		t.Errorf("transcript not updated: %q", got.Transcript)
	}
	if got.ProcessingStatus != models.ProcessingStatusCompleted {
		t.Errorf("processing status not updated: %q", got.ProcessingStatus)
	}
	if got.ClassificationID != "" {
		t.Errorf("unexpected classification ID: %q", got.ClassificationID)
	}
}

func TestSQLiteStore_ClassificationsAppendOnly(t *testing.T) {
	s := newTestSQLiteStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i, entity := range []string{"IHA", "Personal"} {
		c := models.Classification{
			ID:          "cls_" + entity,
			VoiceMemoID: "memo_1",
			UserID:      "user1",
			Entity:      entity,
			Activity:    models.ActivityFundraising,
			ActionType:  models.ActionTypeDeliver,
			Confidence:  models.ConfidenceScores{Entity: 0.9, Activity: 0.8, Action: 0.7},
			Summary:     "summary",
			People:      []models.Person{{Name: "Maria", IsKnown: true}},
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveClassification(c); err != nil {
			t.Fatalf("SaveClassification failed: %v", err)
		}
	}

	list, err := s.ListClassificationsForMemo("memo_1")
	if err != nil {
		t.Fatalf("ListClassificationsForMemo failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 classifications, got %d", len(list))
	}
	if list[0].Entity != "IHA" || list[1].Entity != "Personal" {
		t.Errorf("unexpected order: %q, %q", list[0].Entity, list[1].Entity)
	}
	if len(list[0].People) != 1 || list[0].People[0].Name != "Maria" {
		t.Errorf("people not round-tripped: %+v", list[0].People)
	}
}

func TestSQLiteStore_ActionItemsFilterByStatus(t *testing.T) {
	s := newTestSQLiteStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	pending := models.ActionItem{
		ID: "act_1", ClassificationID: "cls_1", VoiceMemoID: "memo_1", UserID: "user1",
		Tier: models.TierRed, ActionType: models.ActionTypeDeliver, Title: "Send thank you",
		Status: models.ActionStatusPending, Priority: 1,
		DeliveryPayload: map[string]interface{}{"channel": "sms", "recipient": "+15551234567"},
		CreatedAt:       now, UpdatedAt: now,
	}
	done := models.ActionItem{
		ID: "act_2", ClassificationID: "cls_1", VoiceMemoID: "memo_1", UserID: "user1",
		Tier: models.TierGreen, ActionType: models.ActionTypeDocument, Title: "File notes",
		Status: models.ActionStatusAutoCompleted, Priority: 3,
		CompletedAt: &now,
		CreatedAt:   now, UpdatedAt: now,
	}
	for _, a := range []models.ActionItem{pending, done} {
		if err := s.SaveActionItem(a); err != nil {
			t.Fatalf("SaveActionItem failed: %v", err)
		}
	}

	got, err := s.ListActionItems("user1", models.ActionStatusPending)
	if err != nil {
		t.Fatalf("ListActionItems failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "act_1" {
		t.Fatalf("expected only pending action, got %+v", got)
	}
	if got[0].DeliveryPayload["channel"] != "sms" {
		t.Errorf("delivery payload not round-tripped: %v", got[0].DeliveryPayload)
	}

	all, err := s.ListActionItems("user1", "")
	if err != nil {
		t.Fatalf("ListActionItems (all) failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(all))
	}
	// priority 1 sorts first
	if all[0].ID != "act_1" {
		t.Errorf("expected act_1 first, got %q", all[0].ID)
	}
	if all[1].CompletedAt == nil {
		t.Error("completed_at not round-tripped")
	}
}

func TestInMemoryStore_MatchesSQLiteSemantics(t *testing.T) {
	s := NewInMemoryStore()

	item := testContextItem("user1", "Maria")
	inserted, err := s.UpsertDiscoveredContextItem(item)
	if err != nil || !inserted {
		t.Fatalf("first upsert: inserted=%v err=%v", inserted, err)
	}
	dup := item
	dup.ID = "ctx_dup"
	inserted, err = s.UpsertDiscoveredContextItem(dup)
	if err != nil || inserted {
		t.Fatalf("duplicate upsert: inserted=%v err=%v", inserted, err)
	}

	missing, err := s.GetVoiceMemo("memo_missing")
	if err != nil || missing != nil {
		t.Errorf("expected nil,nil for missing memo, got %v, %v", missing, err)
	}
}

func newPostgresStoreOrSkip(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	s, err := NewPostgresStore(WithPostgresDSN(dsn))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore_VoiceMemoRoundTrip(t *testing.T) {
	s := newPostgresStoreOrSkip(t)
	s.db.Exec("DELETE FROM voice_memos WHERE id = 'memo_pg_test'")

	now := time.Now().UTC().Truncate(time.Second)
	memo := models.VoiceMemo{
		ID:                   "memo_pg_test",
		UserID:               "user1",
		Title:                "Postgres round trip",
		Transcript:           "hello",
		ProcessingStatus:     models.ProcessingStatusCompleted,
		ClassificationStatus: models.ClassificationStatusNotStarted,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.SaveVoiceMemo(memo); err != nil {
		t.Fatalf("SaveVoiceMemo failed: %v", err)
	}
	got, err := s.GetVoiceMemo("memo_pg_test")
	if err != nil {
		t.Fatalf("GetVoiceMemo failed: %v", err)
	}
	if got == nil || got.Transcript != "hello" {
		t.Errorf("memo not stored correctly: %+v", got)
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":   "postgres",
		"postgresql://u:p@localhost/db": "postgres",
		"host=localhost user=vb":        "postgres",
		"/var/lib/voicebrain/vb.db":     "sqlite3",
		"vb.db":                         "sqlite3",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}
