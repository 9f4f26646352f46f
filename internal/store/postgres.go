// Package store provides storage backends for VoiceBrain.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/voicebrain/voicebrain/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

var (
	_ Store   = (*PostgresStore)(nil)
	_ JobRepo = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

// SaveContextItem stores or updates a context item by ID.
func (s *PostgresStore) SaveContextItem(item models.ContextItem) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			context_type = EXCLUDED.context_type,
			name = EXCLUDED.name,
			aliases = EXCLUDED.aliases,
			metadata = EXCLUDED.metadata,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		item.ID, item.UserID, item.ContextType, item.Name, aliases, metadata,
		item.IsActive, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore.SaveContextItem failed", "error", err, "id", item.ID)
		return fmt.Errorf("failed to save context item %s: %w", item.ID, err)
	}
	slog.Debug("PostgresStore.SaveContextItem succeeded", "id", item.ID, "type", item.ContextType, "name", item.Name)
	return nil
}

// GetContextItem retrieves a context item by ID. Returns nil if not found.
func (s *PostgresStore) GetContextItem(id string) (*models.ContextItem, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, context_type, name, aliases, metadata, is_active, created_at, updated_at
		FROM context_items WHERE id = $1`, id)
	item, err := scanContextItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetContextItem failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get context item %s: %w", id, err)
	}
	return &item, nil
}

// ListContextItems returns all context items for a user, active or not.
func (s *PostgresStore) ListContextItems(userID string) ([]models.ContextItem, error) {
	return s.queryContextItems(`
		SELECT id, user_id, context_type, name, aliases, metadata, is_active, created_at, updated_at
		FROM context_items WHERE user_id = $1 ORDER BY context_type, name`, userID)
}

// ListActiveContextItems returns the user's active context ordered by type
// then name so prompt rendering is deterministic.
func (s *PostgresStore) ListActiveContextItems(userID string) ([]models.ContextItem, error) {
	return s.queryContextItems(`
		SELECT id, user_id, context_type, name, aliases, metadata, is_active, created_at, updated_at
		FROM context_items WHERE user_id = $1 AND is_active = TRUE ORDER BY context_type, name`, userID)
}

func (s *PostgresStore) queryContextItems(query string, args ...interface{}) ([]models.ContextItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore context item query failed", "error", err)
		return nil, fmt.Errorf("failed to query context items: %w", err)
	}
	defer rows.Close()

	var items []models.ContextItem
	for rows.Next() {
		item, err := scanContextItem(rows)
		if err != nil {
			slog.Error("PostgresStore context item scan failed", "error", err)
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
func (s *PostgresStore) UpsertDiscoveredContextItem(item models.ContextItem) (bool, error) {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, context_type, name) DO NOTHING`,
		item.ID, item.UserID, item.ContextType, item.Name, aliases, metadata,
		item.IsActive, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore.UpsertDiscoveredContextItem failed", "error", err, "name", item.Name)
		return false, fmt.Errorf("failed to upsert discovered context item %s: %w", item.Name, err)
	}
	n, _ := result.RowsAffected()
	slog.Debug("PostgresStore.UpsertDiscoveredContextItem", "name", item.Name, "inserted", n > 0)
	return n > 0, nil
}

// DeactivateContextItem marks a context item inactive without deleting it.
func (s *PostgresStore) DeactivateContextItem(id string) error {
	result, err := s.db.Exec(
		`UPDATE context_items SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore.DeactivateContextItem failed", "error", err, "id", id)
		return fmt.Errorf("failed to deactivate context item %s: %w", id, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return models.ErrContextItemNotFound
	}
	slog.Debug("PostgresStore.DeactivateContextItem succeeded", "id", id)
	return nil
}

// SaveVoiceMemo stores or updates a voice memo by ID.
func (s *PostgresStore) SaveVoiceMemo(memo models.VoiceMemo) error {
	_, err := s.db.Exec(`
		INSERT INTO voice_memos (id, user_id, title, audio_uri, transcript, subtitles, processing_status, classification_status, classification_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			audio_uri = EXCLUDED.audio_uri,
			transcript = EXCLUDED.transcript,
			subtitles = EXCLUDED.subtitles,
			processing_status = EXCLUDED.processing_status,
			classification_status = EXCLUDED.classification_status,
			classification_id = EXCLUDED.classification_id,
			updated_at = EXCLUDED.updated_at`,
		memo.ID, memo.UserID, memo.Title, nilIfEmpty(memo.AudioURI), nilIfEmpty(memo.Transcript),
		nilIfEmpty(memo.Subtitles), memo.ProcessingStatus, memo.ClassificationStatus,
		nilIfEmpty(memo.ClassificationID), memo.CreatedAt, memo.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore.SaveVoiceMemo failed", "error", err, "id", memo.ID)
		return fmt.Errorf("failed to save voice memo %s: %w", memo.ID, err)
	}
	slog.Debug("PostgresStore.SaveVoiceMemo succeeded", "id", memo.ID, "classificationStatus", memo.ClassificationStatus)
	return nil
}

// GetVoiceMemo retrieves a voice memo by ID. Returns nil if not found.
func (s *PostgresStore) GetVoiceMemo(id string) (*models.VoiceMemo, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, title, audio_uri, transcript, subtitles, processing_status, classification_status, classification_id, created_at, updated_at
		FROM voice_memos WHERE id = $1`, id)
	memo, err := scanVoiceMemo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetVoiceMemo failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get voice memo %s: %w", id, err)
	}
	return &memo, nil
}

// ListVoiceMemos returns a user's memos, newest first.
func (s *PostgresStore) ListVoiceMemos(userID string) ([]models.VoiceMemo, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, audio_uri, transcript, subtitles, processing_status, classification_status, classification_id, created_at, updated_at
		FROM voice_memos WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		slog.Error("PostgresStore.ListVoiceMemos query failed", "error", err, "userID", userID)
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
func (s *PostgresStore) SaveClassification(c models.Classification) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		c.ID, c.VoiceMemoID, c.UserID, c.Entity, c.Activity, c.ActionType,
		c.Confidence.Entity, c.Confidence.Activity, c.Confidence.Action,
		nilIfEmpty(c.Summary), people, words, c.HasPropheticContent,
		discoveries, nilIfEmpty(c.ProcessingModel), c.ProcessingDurationMs, c.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore.SaveClassification failed", "error", err, "id", c.ID, "memoID", c.VoiceMemoID)
		return fmt.Errorf("failed to save classification %s: %w", c.ID, err)
	}
	slog.Debug("PostgresStore.SaveClassification succeeded", "id", c.ID, "memoID", c.VoiceMemoID)
	return nil
}

// GetClassification retrieves a classification by ID. Returns nil if not found.
func (s *PostgresStore) GetClassification(id string) (*models.Classification, error) {
	row := s.db.QueryRow(`
		SELECT id, voice_memo_id, user_id, entity, activity, action_type, confidence_entity, confidence_activity, confidence_action, brain_summary, people, prophetic_words, has_prophetic_content, discoveries, processing_model, processing_duration_ms, created_at
		FROM classifications WHERE id = $1`, id)
	c, err := scanClassification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetClassification failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get classification %s: %w", id, err)
	}
	return &c, nil
}

// ListClassificationsForMemo returns all classification runs for a memo,
// oldest first.
func (s *PostgresStore) ListClassificationsForMemo(memoID string) ([]models.Classification, error) {
	rows, err := s.db.Query(`
		SELECT id, voice_memo_id, user_id, entity, activity, action_type, confidence_entity, confidence_activity, confidence_action, brain_summary, people, prophetic_words, has_prophetic_content, discoveries, processing_model, processing_duration_ms, created_at
		FROM classifications WHERE voice_memo_id = $1 ORDER BY created_at ASC`, memoID)
	if err != nil {
		slog.Error("PostgresStore.ListClassificationsForMemo query failed", "error", err, "memoID", memoID)
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
func (s *PostgresStore) SaveActionItem(a models.ActionItem) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			related_entity = EXCLUDED.related_entity,
			related_people = EXCLUDED.related_people,
			delivery_payload = EXCLUDED.delivery_payload,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			rejection_reason = EXCLUDED.rejection_reason,
			approved_at = EXCLUDED.approved_at,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.ClassificationID, a.VoiceMemoID, a.UserID, a.Tier, a.ActionType,
		a.Title, nilIfEmpty(a.Description), nilIfEmpty(a.RelatedEntity), people, payload,
		a.Status, a.Priority, nilIfEmpty(a.RejectionReason), a.ApprovedAt, a.CompletedAt,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore.SaveActionItem failed", "error", err, "id", a.ID)
		return fmt.Errorf("failed to save action item %s: %w", a.ID, err)
	}
	slog.Debug("PostgresStore.SaveActionItem succeeded", "id", a.ID, "status", a.Status, "tier", a.Tier)
	return nil
}

// GetActionItem retrieves an action item by ID. Returns nil if not found.
func (s *PostgresStore) GetActionItem(id string) (*models.ActionItem, error) {
	row := s.db.QueryRow(`
		SELECT id, classification_id, voice_memo_id, user_id, tier, action_type, title, description, related_entity, related_people, delivery_payload, status, priority, rejection_reason, approved_at, completed_at, created_at, updated_at
		FROM action_items WHERE id = $1`, id)
	a, err := scanActionItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetActionItem failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get action item %s: %w", id, err)
	}
	return &a, nil
}

// ListActionItems returns a user's action items, optionally filtered by
// status, ordered by priority then recency.
func (s *PostgresStore) ListActionItems(userID string, status models.ActionStatus) ([]models.ActionItem, error) {
	query := `
		SELECT id, classification_id, voice_memo_id, user_id, tier, action_type, title, description, related_entity, related_people, delivery_payload, status, priority, rejection_reason, approved_at, completed_at, created_at, updated_at
		FROM action_items WHERE user_id = $1`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY priority ASC, created_at DESC`
	return s.queryActionItems(query, args...)
}

// ListActionItemsForClassification returns the action items created by a
// classification run.
func (s *PostgresStore) ListActionItemsForClassification(classificationID string) ([]models.ActionItem, error) {
	return s.queryActionItems(`
		SELECT id, classification_id, voice_memo_id, user_id, tier, action_type, title, description, related_entity, related_people, delivery_payload, status, priority, rejection_reason, approved_at, completed_at, created_at, updated_at
		FROM action_items WHERE classification_id = $1 ORDER BY priority ASC, created_at ASC`, classificationID)
}

func (s *PostgresStore) queryActionItems(query string, args ...interface{}) ([]models.ActionItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore action item query failed", "error", err)
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
