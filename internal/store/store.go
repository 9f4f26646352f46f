// Package store provides storage backends for VoiceBrain.
//
// It includes SQLite and PostgreSQL implementations selected by DSN
// detection, plus an in-memory store used in tests.
package store

import (
	"strings"

	"github.com/voicebrain/voicebrain/internal/models"
)

// Store is the persistence interface for the voice-memo pipeline.
type Store interface {
	// Context items
	SaveContextItem(item models.ContextItem) error
	GetContextItem(id string) (*models.ContextItem, error)
	ListContextItems(userID string) ([]models.ContextItem, error)
	// ListActiveContextItems returns the user's active context ordered by
	// type then name, so prompt rendering over a snapshot is deterministic.
	ListActiveContextItems(userID string) ([]models.ContextItem, error)
	// UpsertDiscoveredContextItem inserts the item unless a row with the same
	// (user_id, context_type, name) already exists; existing rows are never
	// modified. Returns true if a new row was inserted.
	UpsertDiscoveredContextItem(item models.ContextItem) (bool, error)
	DeactivateContextItem(id string) error

	// Voice memos
	SaveVoiceMemo(memo models.VoiceMemo) error
	GetVoiceMemo(id string) (*models.VoiceMemo, error)
	ListVoiceMemos(userID string) ([]models.VoiceMemo, error)

	// Classifications (append-only)
	SaveClassification(c models.Classification) error
	GetClassification(id string) (*models.Classification, error)
	ListClassificationsForMemo(memoID string) ([]models.Classification, error)

	// Action items
	SaveActionItem(a models.ActionItem) error
	GetActionItem(id string) (*models.ActionItem, error)
	ListActionItems(userID string, status models.ActionStatus) ([]models.ActionItem, error)
	ListActionItemsForClassification(classificationID string) ([]models.ActionItem, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN configures the store to use an SQLite database file.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN configures the store to use a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports which driver a DSN belongs to: "postgres" for
// PostgreSQL connection strings, "sqlite3" for file paths.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}
