// Package models defines the core data structures for VoiceBrain.
//
// It includes the per-user context store items, voice memos, classifications,
// and extracted action items that are shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// ContextType defines the kind of fact a ContextItem remembers.
type ContextType string

const (
	// ContextTypeEntity is an organization or company the user works with.
	ContextTypeEntity ContextType = "entity"
	// ContextTypePerson is a person the user mentions in memos.
	ContextTypePerson ContextType = "person"
	// ContextTypeProject is a named project or initiative.
	ContextTypeProject ContextType = "project"
	// ContextTypeKeyword is a free-text keyword worth recognizing.
	ContextTypeKeyword ContextType = "keyword"
)

// IsValidContextType checks if the given context type is supported.
func IsValidContextType(ct ContextType) bool {
	switch ct {
	case ContextTypeEntity, ContextTypePerson, ContextTypeProject, ContextTypeKeyword:
		return true
	default:
		return false
	}
}

// Activity is the closed activity dimension of a classification.
type Activity string

const (
	ActivityRevenue       Activity = "Revenue"
	ActivityFundraising   Activity = "Fundraising"
	ActivityOperations    Activity = "Operations"
	ActivityRelationships Activity = "Relationships"
	ActivityStrategy      Activity = "Strategy"
	ActivityMinistry      Activity = "Ministry"
	ActivityContent       Activity = "Content"
)

// Activities lists every allowed activity value in rendering order.
var Activities = []Activity{
	ActivityRevenue, ActivityFundraising, ActivityOperations,
	ActivityRelationships, ActivityStrategy, ActivityMinistry, ActivityContent,
}

// IsValidActivity checks if the given activity is in the closed set.
func IsValidActivity(a Activity) bool {
	for _, v := range Activities {
		if a == v {
			return true
		}
	}
	return false
}

// ActionType is the closed action-type dimension shared by classifications
// and action items.
type ActionType string

const (
	ActionTypeDeliver  ActionType = "Deliver"
	ActionTypeDecide   ActionType = "Decide"
	ActionTypeDelegate ActionType = "Delegate"
	ActionTypeDocument ActionType = "Document"
	ActionTypeDevelop  ActionType = "Develop"
)

// ActionTypes lists every allowed action type in rendering order.
var ActionTypes = []ActionType{
	ActionTypeDeliver, ActionTypeDecide, ActionTypeDelegate,
	ActionTypeDocument, ActionTypeDevelop,
}

// IsValidActionType checks if the given action type is in the closed set.
func IsValidActionType(at ActionType) bool {
	for _, v := range ActionTypes {
		if at == v {
			return true
		}
	}
	return false
}

// Tier is the autonomy classification of an action item.
type Tier string

const (
	// TierRed marks external, irreversible actions that require human approval.
	TierRed Tier = "red"
	// TierYellow marks internal, reversible actions that auto-execute.
	TierYellow Tier = "yellow"
	// TierGreen marks pure-information actions that auto-execute.
	TierGreen Tier = "green"
)

// IsValidTier checks if the given tier is supported.
func IsValidTier(t Tier) bool {
	switch t {
	case TierRed, TierYellow, TierGreen:
		return true
	default:
		return false
	}
}

// ActionStatus represents the approval state of an action item.
type ActionStatus string

const (
	ActionStatusPending       ActionStatus = "pending"
	ActionStatusApproved      ActionStatus = "approved"
	ActionStatusRejected      ActionStatus = "rejected"
	ActionStatusCompleted     ActionStatus = "completed"
	ActionStatusAutoCompleted ActionStatus = "auto_completed"
)

// IsValidActionStatus checks if the given action status is supported.
func IsValidActionStatus(s ActionStatus) bool {
	switch s {
	case ActionStatusPending, ActionStatusApproved, ActionStatusRejected,
		ActionStatusCompleted, ActionStatusAutoCompleted:
		return true
	default:
		return false
	}
}

// InitialStatusForTier returns the status a freshly extracted action item
// starts in. Red-tier items wait for a human; yellow and green auto-complete.
func InitialStatusForTier(t Tier) ActionStatus {
	if t == TierRed {
		return ActionStatusPending
	}
	return ActionStatusAutoCompleted
}

// PriorityForTier derives the numeric priority stored on an action item.
func PriorityForTier(t Tier) int {
	switch t {
	case TierRed:
		return 1
	case TierYellow:
		return 2
	default:
		return 3
	}
}

// ProcessingStatus tracks the transcription lifecycle of a voice memo.
type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

// ClassificationStatus tracks the classification lifecycle of a voice memo.
type ClassificationStatus string

const (
	ClassificationStatusNotStarted ClassificationStatus = "not_started"
	ClassificationStatusProcessing ClassificationStatus = "processing"
	ClassificationStatusCompleted  ClassificationStatus = "completed"
	ClassificationStatusFailed     ClassificationStatus = "failed"
)

// Error variables for better error handling and testability
var (
	ErrMemoNotFound            = errors.New("voice memo not found")
	ErrContextItemNotFound     = errors.New("context item not found")
	ErrActionNotFound          = errors.New("action item not found")
	ErrInvalidTransition       = errors.New("invalid action status transition")
	ErrRejectionReasonRequired = errors.New("rejection_reason is required when rejecting an action")
	ErrTranscriptionNotReady   = errors.New("transcript is not ready for classification")
	ErrEmptyUserID             = errors.New("user_id cannot be empty")
	ErrEmptyContextName        = errors.New("context item name cannot be empty")
	ErrInvalidContextType      = errors.New("invalid context type")
	ErrInvalidActionStatus     = errors.New("invalid action status")
)

// ContextItem is a remembered fact the classifier should know about.
// The (UserID, ContextType, Name) triple is unique per user.
type ContextItem struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id"`
	ContextType ContextType            `json:"context_type"`
	Name        string                 `json:"name"`
	Aliases     []string               `json:"aliases,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	IsActive    bool                   `json:"is_active"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// VoiceMemo is one recorded/transcribed unit of input.
type VoiceMemo struct {
	ID                   string               `json:"id"`
	UserID               string               `json:"user_id"`
	Title                string               `json:"title"`
	AudioURI             string               `json:"audio_uri,omitempty"` // opaque reference, storage is external
	Transcript           string               `json:"transcript,omitempty"`
	Subtitles            string               `json:"subtitles,omitempty"` // timed caption segments as JSON
	ProcessingStatus     ProcessingStatus     `json:"processing_status"`
	ClassificationStatus ClassificationStatus `json:"classification_status"`
	ClassificationID     string               `json:"classification_id,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// defaultTitles are placeholder titles the classifier is allowed to overwrite
// with a model-suggested title.
var defaultTitles = []string{"voice memo", "new memo", "untitled", "untitled memo"}

// IsDefaultMemoTitle reports whether a memo title is a recognizable default
// placeholder rather than a user-chosen title.
func IsDefaultMemoTitle(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return true
	}
	for _, d := range defaultTitles {
		if t == d {
			return true
		}
	}
	// "Voice memo 2026-08-31" style auto-generated titles
	return strings.HasPrefix(t, "voice memo ")
}

// ConfidenceScores holds the per-dimension confidence of a classification.
// Scores are advisory only; nothing gates behavior on them.
type ConfidenceScores struct {
	Entity   float64 `json:"entity"`
	Activity float64 `json:"activity"`
	Action   float64 `json:"action"`
}

// Person is one person reference extracted from a transcript.
type Person struct {
	Name       string `json:"name"`
	EntityLink string `json:"entity_link,omitempty"`
	Role       string `json:"role,omitempty"`
	IsKnown    bool   `json:"is_known"`
}

// PropheticWord is a directed message detected in a transcript, addressed to
// a specific recipient.
type PropheticWord struct {
	Recipient      string `json:"recipient"`
	Content        string `json:"content"`
	TimestampLabel string `json:"timestamp_label,omitempty"`
}

// Discovery is a reference not found in the context store, fed back to grow it.
type Discovery struct {
	Type            ContextType `json:"type"`
	Name            string      `json:"name"`
	InferredContext string      `json:"inferred_context"`
}

// Classification is one immutable structured AI judgment about a memo.
// Re-classification creates a new row, never overwrites.
type Classification struct {
	ID                   string           `json:"id"`
	VoiceMemoID          string           `json:"voice_memo_id"`
	UserID               string           `json:"user_id"`
	Entity               string           `json:"entity"`
	Activity             Activity         `json:"activity"`
	ActionType           ActionType       `json:"action_type"`
	Confidence           ConfidenceScores `json:"confidence_scores"`
	Summary              string           `json:"brain_summary"`
	People               []Person         `json:"people,omitempty"`
	PropheticWords       []PropheticWord  `json:"prophetic_words,omitempty"`
	HasPropheticContent  bool             `json:"has_prophetic_content"`
	Discoveries          []Discovery      `json:"discoveries,omitempty"`
	ProcessingModel      string           `json:"processing_model"`
	ProcessingDurationMs int64            `json:"processing_duration_ms"`
	CreatedAt            time.Time        `json:"created_at"`
}

// ActionItem is one unit of follow-up work extracted from a classification.
type ActionItem struct {
	ID               string                 `json:"id"`
	ClassificationID string                 `json:"classification_id"`
	VoiceMemoID      string                 `json:"voice_memo_id"`
	UserID           string                 `json:"user_id"`
	Tier             Tier                   `json:"tier"`
	ActionType       ActionType             `json:"action_type"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description,omitempty"`
	RelatedEntity    string                 `json:"related_entity,omitempty"`
	RelatedPeople    []string               `json:"related_people,omitempty"`
	DeliveryPayload  map[string]interface{} `json:"delivery_payload,omitempty"`
	Status           ActionStatus           `json:"status"`
	Priority         int                    `json:"priority"`
	RejectionReason  string                 `json:"rejection_reason,omitempty"`
	ApprovedAt       *time.Time             `json:"approved_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}
