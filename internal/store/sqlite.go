// Package store provides storage backends for VoiceBrain.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/voicebrain/voicebrain/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time checks that SQLiteStore implements both interfaces.
var (
	_ Store   = (*SQLiteStore)(nil)
	_ JobRepo = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// SaveContextItem stores or updates a context item by ID.
func (s *SQLiteStore) SaveContextItem(item models.ContextItem) error {
	aliases, err := encodeAliases(item.Aliases)
	if err != nil {
		return err
	}
	metadata, err := encodeMetadata(item.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO context_items (id, user_id, context_type, name, aliases, metadata, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			context_type = excluded.context_type,
			name = excluded.name,
			aliases = excluded.aliases,
			metadata = excluded.metadata,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		item.ID, item.UserID, item.ContextType, item.Name, aliases, metadata,
		item.IsActive, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveContextItem failed", "error", err, "id", item.ID)
		return fmt.Errorf("failed to save context item %s: %w", item.ID, err)
	}
	slog.Debug("SQLiteStore.SaveContextItem succeeded", "id", item.ID, "type", item.ContextType, "name", item.Name)
	return nil
}

// GetContextItem retrieves a context item by ID. Returns nil if not found.
func (s *SQLiteStore) GetContextItem(id string) (*models.ContextItem, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, context_type, name, aliases, metadata, is_active, created_at, updated_at
		FROM context_items WHERE id = ?`, id)
	item, err := scanContextItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetContextItem failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get context item %s: %w", id, err)
	}
	return &item, nil
}

// ListContextItems returns all context items for a user, active or not.
func (s *SQLiteStore) ListContextItems(userID string) ([]models.ContextItem, error) {
	return s.queryContextItems(`
		SELECT id, user_id, context_type, name, aliases, metadata, is_active, created_at, updated_at
		FROM context_items WHERE user_id = ? ORDER BY context_type, name`, userID)
}

// ListActiveContextItems returns the user's active context ordered by type
// then name so prompt rendering is deterministic.
func (s *SQLiteStore) ListActiveContextItems(userID string) ([]models.ContextItem, error) {
	return s.queryContextItems(`
		SELECT id, user_id, context_type, name, aliases, metadata, is_active, created_at, updated_at
		FROM context_items WHERE user_id = ? AND is_active = 1 ORDER BY context_type, name`, userID)
}

func (s *SQLiteStore) queryContextItems(query string, args ...interface{}) ([]models.ContextItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore context item query failed", "error", err)
		return nil, fmt.Errorf("failed to query context items: %w", err)
	}
	defer rows.Close()

	var items []models.ContextItem
	for rows.Next() {
		item, err := scanContextItem(rows)
		if err != nil {
			slog.Error("SQLiteStore context item scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan context item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate context item rows: %w", err)
	}
	return items, nil
}

// UpsertDiscoveredContextItem inserts the item unless one with the same
// (user_id, context_type, name) exists. Existing rows are left untouched so
// user-curated context always wins over discovery.
func (s *SQLiteStore) UpsertDiscoveredContextItem(item models.ContextItem) (bool, error) {
	aliases, err := encodeAliases(item.Aliases)
	if err != nil {
		return false, err
	}
	metadata, err := encodeMetadata(item.Metadata)
	if err != nil {
		return false, err
	}
	result, err := s.db.Exec(`
		INSERT INTO context_items (id, user_id, context_type, name, aliases, metadata, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, context_type, name) DO NOTHING`,
		item.ID, item.UserID, item.ContextType, item.Name, aliases, metadata,
		item.IsActive, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.UpsertDiscoveredContextItem failed", "error", err, "name", item.Name)
		return false, fmt.Errorf("failed to upsert discovered context item %s: %w", item.Name, err)
	}
	n, _ := result.RowsAffected()
	slog.Debug("SQLiteStore.UpsertDiscoveredContextItem", "name", item.Name, "inserted", n > 0)
	return n > 0, nil
}

// DeactivateContextItem marks a context item inactive without deleting it.
func (s *SQLiteStore) DeactivateContextItem(id string) error {
	result, err := s.db.Exec(
		`UPDATE context_items SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore.DeactivateContextItem failed", "error", err, "id", id)
		return fmt.Errorf("failed to deactivate context item %s: %w", id, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return models.ErrContextItemNotFound
	}
	slog.Debug("SQLiteStore.DeactivateContextItem succeeded", "id", id)
	return nil
}

// SaveVoiceMemo stores or updates a voice memo by ID.
func (s *SQLiteStore) SaveVoiceMemo(memo models.VoiceMemo) error {
	_, err := s.db.Exec(`
		INSERT INTO voice_memos (id, user_id, title, audio_uri, transcript, subtitles, processing_status, classification_status, classification_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			audio_uri = excluded.audio_uri,
			transcript = excluded.transcript,
			subtitles = excluded.subtitles,
			processing_status = excluded.processing_status,
			classification_status = excluded.classification_status,
			classification_id = excluded.classification_id,
			updated_at = excluded.updated_at`,
		memo.ID, memo.UserID, memo.Title, nilIfEmpty(memo.AudioURI), nilIfEmpty(memo.Transcript),
		nilIfEmpty(memo.Subtitles), memo.ProcessingStatus, memo.ClassificationStatus,
		nilIfEmpty(memo.ClassificationID), memo.CreatedAt, memo.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveVoiceMemo failed", "error", err, "id", memo.ID)
		return fmt.Errorf("failed to save voice memo %s: %w", memo.ID, err)
	}
	slog.Debug("SQLiteStore.SaveVoiceMemo succeeded", "id", memo.ID, "classificationStatus", memo.ClassificationStatus)
	return nil
}

// GetVoiceMemo retrieves a voice memo by ID. Returns nil if not found.
func (s *SQLiteStore) GetVoiceMemo(id string) (*models.VoiceMemo, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, title, audio_uri, transcript, subtitles, processing_status, classification_status, classification_id, created_at, updated_at
		FROM voice_memos WHERE id = ?`, id)
	memo, err := scanVoiceMemo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetVoiceMemo failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get voice memo %s: %w", id, err)
	}
	return &memo, nil
}

// ListVoiceMemos returns a user's memos, newest first.
func (s *SQLiteStore) ListVoiceMemos(userID string) ([]models.VoiceMemo, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, audio_uri, transcript, subtitles, processing_status, classification_status, classification_id, created_at, updated_at
		FROM voice_memos WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		slog.Error("SQLiteStore.ListVoiceMemos query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query voice memos: %w", err)
	}
	defer rows.Close()

	var memos []models.VoiceMemo
	for rows.Next() {
		memo, err := scanVoiceMemo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voice memo row: %w", err)
		}
		memos = append(memos, memo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate voice memo rows: %w", err)
	}
	return memos, nil
}

// SaveClassification inserts a classification record. Classifications are
// append-only; re-classifying a memo adds a new row.
func (s *SQLiteStore) SaveClassification(c models.Classification) error {
	people, err := encodeJSON(c.People)
	if err != nil {
		return err
	}
	words, err := encodeJSON(c.PropheticWords)
	if err != nil {
		return err
	}
	discoveries, err := encodeJSON(c.Discoveries)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO classifications (id, voice_memo_id, user_id, entity, activity, action_type, confidence_entity, confidence_activity, confidence_action, brain_summary, people, prophetic_words, has_prophetic_content, discoveries, processing_model, processing_duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.VoiceMemoID, c.UserID, c.Entity, c.Activity, c.ActionType,
		c.Confidence.Entity, c.Confidence.Activity, c.Confidence.Action,
		nilIfEmpty(c.Summary), people, words, c.HasPropheticContent,
		discoveries, nilIfEmpty(c.ProcessingModel), c.ProcessingDurationMs, c.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveClassification failed", "error", err, "id", c.ID, "memoID", c.VoiceMemoID)
		return fmt.Errorf("failed to save classification %s: %w", c.ID, err)
	}
	slog.Debug("SQLiteStore.SaveClassification succeeded", "id", c.ID, "memoID", c.VoiceMemoID)
	return nil
}

// GetClassification retrieves a classification by ID. Returns nil if not found.
func (s *SQLiteStore) GetClassification(id string) (*models.Classification, error) {
	row := s.db.QueryRow(`
		SELECT id, voice_memo_id, user_id, entity, activity, action_type, confidence_entity, confidence_activity, confidence_action, brain_summary, people, prophetic_words, has_prophetic_content, discoveries, processing_model, processing_duration_ms, created_at
		FROM classifications WHERE id = ?`, id)
	c, err := scanClassification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetClassification failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get classification %s: %w", id, err)
	}
	return &c, nil
}

// ListClassificationsForMemo returns all classification runs for a memo,
// oldest first.
func (s *SQLiteStore) ListClassificationsForMemo(memoID string) ([]models.Classification, error) {
	rows, err := s.db.Query(`
		SELECT id, voice_memo_id, user_id, entity, activity, action_type, confidence_entity, confidence_activity, confidence_action, brain_summary, people, prophetic_words, has_prophetic_content, discoveries, processing_model, processing_duration_ms, created_at
		FROM classifications WHERE voice_memo_id = ? ORDER BY created_at ASC`, memoID)
	if err != nil {
		slog.Error("SQLiteStore.ListClassificationsForMemo query failed", "error", err, "memoID", memoID)
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}
	defer rows.Close()

	var list []models.Classification
	for rows.Next() {
		c, err := scanClassification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan classification row: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate classification rows: %w", err)
	}
	return list, nil
}

// SaveActionItem stores or updates an action item by ID.
func (s *SQLiteStore) SaveActionItem(a models.ActionItem) error {
	people, err := encodeJSON(a.RelatedPeople)
	if err != nil {
		return err
	}
	payload, err := encodeMetadata(a.DeliveryPayload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO action_items (id, classification_id, voice_memo_id, user_id, tier, action_type, title, description, related_entity, related_people, delivery_payload, status, priority, rejection_reason, approved_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			related_entity = excluded.related_entity,
			related_people = excluded.related_people,
			delivery_payload = excluded.delivery_payload,
			status = excluded.status,
			priority = excluded.priority,
			rejection_reason = excluded.rejection_reason,
			approved_at = excluded.approved_at,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		a.ID, a.ClassificationID, a.VoiceMemoID, a.UserID, a.Tier, a.ActionType,
		a.Title, nilIfEmpty(a.Description), nilIfEmpty(a.RelatedEntity), people, payload,
		a.Status, a.Priority, nilIfEmpty(a.RejectionReason), a.ApprovedAt, a.CompletedAt,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveActionItem failed", "error", err, "id", a.ID)
		return fmt.Errorf("failed to save action item %s: %w", a.ID, err)
	}
	slog.Debug("SQLiteStore.SaveActionItem succeeded", "id", a.ID, "status", a.Status, "tier", a.Tier)
	return nil
}

// GetActionItem retrieves an action item by ID. Returns nil if not found.
func (s *SQLiteStore) GetActionItem(id string) (*models.ActionItem, error) {
	row := s.db.QueryRow(`
		SELECT id, classification_id, voice_memo_id, user_id, tier, action_type, title, description, related_entity, related_people, delivery_payload, status, priority, rejection_reason, approved_at, completed_at, created_at, updated_at
		FROM action_items WHERE id = ?`, id)
	a, err := scanActionItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetActionItem failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get action item %s: %w", id, err)
	}
	return &a, nil
}

// ListActionItems returns a user's action items, optionally filtered by
// status, ordered by priority then recency.
func (s *SQLiteStore) ListActionItems(userID string, status models.ActionStatus) ([]models.ActionItem, error) {
	query := `
		SELECT id, classification_id, voice_memo_id, user_id, tier, action_type, title, description, related_entity, related_people, delivery_payload, status, priority, rejection_reason, approved_at, completed_at, created_at, updated_at
		FROM action_items WHERE user_id = ?`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY priority ASC, created_at DESC`
	return s.queryActionItems(query, args...)
}

// ListActionItemsForClassification returns the action items created by a
// classification run.
func (s *SQLiteStore) ListActionItemsForClassification(classificationID string) ([]models.ActionItem, error) {
	return s.queryActionItems(`
		SELECT id, classification_id, voice_memo_id, user_id, tier, action_type, title, description, related_entity, related_people, delivery_payload, status, priority, rejection_reason, approved_at, completed_at, created_at, updated_at
		FROM action_items WHERE classification_id = ? ORDER BY priority ASC, created_at ASC`, classificationID)
}

func (s *SQLiteStore) queryActionItems(query string, args ...interface{}) ([]models.ActionItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore action item query failed", "error", err)
		return nil, fmt.Errorf("failed to query action items: %w", err)
	}
	defer rows.Close()

	var items []models.ActionItem
	for rows.Next() {
		a, err := scanActionItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action item row: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate action item rows: %w", err)
	}
	return items, nil
}
