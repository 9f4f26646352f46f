// Package models defines API request payloads and their validation.
package models

import "errors"

// CreateMemoRequest is the payload for creating a voice memo.
// Either a transcript (already-transcribed memo) or an audio URI
// (transcription pending) must be supplied.
type CreateMemoRequest struct {
	UserID     string `json:"user_id"`
	Title      string `json:"title,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	AudioURI   string `json:"audio_uri,omitempty"`
}

// Validate validates a CreateMemoRequest.
func (r *CreateMemoRequest) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if r.Transcript == "" && r.AudioURI == "" {
		return errors.New("either transcript or audio_uri is required")
	}
	return nil
}

// ActionTransitionRequest is the payload for transitioning an action item.
type ActionTransitionRequest struct {
	UserID          string       `json:"user_id"`
	Status          ActionStatus `json:"status"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
}

// Validate validates an ActionTransitionRequest.
func (r *ActionTransitionRequest) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if !IsValidActionStatus(r.Status) {
		return ErrInvalidActionStatus
	}
	return nil
}

// CreateContextItemRequest is the payload for explicitly adding a context item.
type CreateContextItemRequest struct {
	UserID      string                 `json:"user_id"`
	ContextType ContextType            `json:"context_type"`
	Name        string                 `json:"name"`
	Aliases     []string               `json:"aliases,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Validate validates a CreateContextItemRequest.
func (r *CreateContextItemRequest) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if !IsValidContextType(r.ContextType) {
		return ErrInvalidContextType
	}
	if r.Name == "" {
		return ErrEmptyContextName
	}
	return nil
}
