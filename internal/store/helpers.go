package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/voicebrain/voicebrain/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// encodeJSON marshals v to a JSON string for storage, or nil when v is nil.
func encodeJSON(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON column: %w", err)
	}
	return string(data), nil
}

// encodeAliases marshals an alias list, or nil when empty.
func encodeAliases(aliases []string) (interface{}, error) {
	if len(aliases) == 0 {
		return nil, nil
	}
	return encodeJSON(aliases)
}

// encodeMetadata marshals a metadata map, or nil when empty.
func encodeMetadata(metadata map[string]interface{}) (interface{}, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	return encodeJSON(metadata)
}

func scanContextItem(sc rowScanner) (models.ContextItem, error) {
	var item models.ContextItem
	var aliasesJSON, metadataJSON sql.NullString
	err := sc.Scan(
		&item.ID, &item.UserID, &item.ContextType, &item.Name,
		&aliasesJSON, &metadataJSON, &item.IsActive,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return item, err
	}
	if aliasesJSON.Valid && aliasesJSON.String != "" {
		if err := json.Unmarshal([]byte(aliasesJSON.String), &item.Aliases); err != nil {
			return item, fmt.Errorf("failed to decode context item aliases: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &item.Metadata); err != nil {
			return item, fmt.Errorf("failed to decode context item metadata: %w", err)
		}
	}
	return item, nil
}

func scanVoiceMemo(sc rowScanner) (models.VoiceMemo, error) {
	var memo models.VoiceMemo
	var audioURI, transcript, subtitles, classificationID sql.NullString
	err := sc.Scan(
		&memo.ID, &memo.UserID, &memo.Title, &audioURI, &transcript, &subtitles,
		&memo.ProcessingStatus, &memo.ClassificationStatus, &classificationID,
		&memo.CreatedAt, &memo.UpdatedAt,
	)
	if err != nil {
		return memo, err
	}
	memo.AudioURI = audioURI.String
	memo.Transcript = transcript.String
	memo.Subtitles = subtitles.String
	memo.ClassificationID = classificationID.String
	return memo, nil
}

func scanClassification(sc rowScanner) (models.Classification, error) {
	var c models.Classification
	var summary, peopleJSON, wordsJSON, discoveriesJSON, model sql.NullString
	err := sc.Scan(
		&c.ID, &c.VoiceMemoID, &c.UserID, &c.Entity, &c.Activity, &c.ActionType,
		&c.Confidence.Entity, &c.Confidence.Activity, &c.Confidence.Action,
		&summary, &peopleJSON, &wordsJSON, &c.HasPropheticContent,
		&discoveriesJSON, &model, &c.ProcessingDurationMs, &c.CreatedAt,
	)
	if err != nil {
		return c, err
	}
	c.Summary = summary.String
	c.ProcessingModel = model.String
	if peopleJSON.Valid && peopleJSON.String != "" {
		if err := json.Unmarshal([]byte(peopleJSON.String), &c.People); err != nil {
			return c, fmt.Errorf("failed to decode classification people: %w", err)
		}
	}
	if wordsJSON.Valid && wordsJSON.String != "" {
		if err := json.Unmarshal([]byte(wordsJSON.String), &c.PropheticWords); err != nil {
			return c, fmt.Errorf("failed to decode classification prophetic words: %w", err)
		}
	}
	if discoveriesJSON.Valid && discoveriesJSON.String != "" {
		if err := json.Unmarshal([]byte(discoveriesJSON.String), &c.Discoveries); err != nil {
			return c, fmt.Errorf("failed to decode classification discoveries: %w", err)
		}
	}
	return c, nil
}

func scanActionItem(sc rowScanner) (models.ActionItem, error) {
	var a models.ActionItem
	var description, relatedEntity, peopleJSON, payloadJSON, rejectionReason sql.NullString
	var approvedAt, completedAt sql.NullTime
	err := sc.Scan(
		&a.ID, &a.ClassificationID, &a.VoiceMemoID, &a.UserID,
		&a.Tier, &a.ActionType, &a.Title, &description, &relatedEntity,
		&peopleJSON, &payloadJSON, &a.Status, &a.Priority, &rejectionReason,
		&approvedAt, &completedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return a, err
	}
	a.Description = description.String
	a.RelatedEntity = relatedEntity.String
	a.RejectionReason = rejectionReason.String
	if approvedAt.Valid {
		a.ApprovedAt = &approvedAt.Time
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if peopleJSON.Valid && peopleJSON.String != "" {
		if err := json.Unmarshal([]byte(peopleJSON.String), &a.RelatedPeople); err != nil {
			return a, fmt.Errorf("failed to decode action related people: %w", err)
		}
	}
	if payloadJSON.Valid && payloadJSON.String != "" {
		if err := json.Unmarshal([]byte(payloadJSON.String), &a.DeliveryPayload); err != nil {
			return a, fmt.Errorf("failed to decode action delivery payload: %w", err)
		}
	}
	return a, nil
}

// scanJob scans a Job row.
func scanJob(sc rowScanner) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := sc.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}
