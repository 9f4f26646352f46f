// Package actions implements the approval state machine for action items.
//
// This is the only place in the pipeline where a human is structurally
// required before anything externally visible happens: red-tier items arrive
// here as pending and must be approved before completion can deliver.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voicebrain/voicebrain/internal/messaging"
	"github.com/voicebrain/voicebrain/internal/models"
	"github.com/voicebrain/voicebrain/internal/store"
)

// allowedTransitions is the closed transition table. rejected, completed,
// and auto_completed are terminal.
var allowedTransitions = map[models.ActionStatus][]models.ActionStatus{
	models.ActionStatusPending:  {models.ActionStatusApproved, models.ActionStatusRejected},
	models.ActionStatusApproved: {models.ActionStatusCompleted},
}

func transitionAllowed(from, to models.ActionStatus) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Machine executes action status transitions. The messaging service is
// optional; without one, completing a Deliver action skips outbound delivery.
type Machine struct {
	st  store.Store
	msg messaging.Service
}

// NewMachine creates a Machine.
func NewMachine(st store.Store, msg messaging.Service) *Machine {
	return &Machine{st: st, msg: msg}
}

// Transition moves an action item to target on behalf of userID.
//
// Validation order: the action must exist and belong to the user
// (ErrActionNotFound), the transition must be in the allowed table
// (ErrInvalidTransition), and rejections require a reason
// (ErrRejectionReasonRequired). On approved completion of a Deliver action
// with an SMS payload, the message is sent before the transition commits; a
// delivery failure aborts the transition and the action stays approved.
func (m *Machine) Transition(ctx context.Context, userID, actionID string, target models.ActionStatus, rejectionReason string) (*models.ActionItem, error) {
	if !models.IsValidActionStatus(target) {
		return nil, models.ErrInvalidActionStatus
	}

	action, err := m.st.GetActionItem(actionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load action %s: %w", actionID, err)
	}
	// Ownership failures look identical to missing rows so action IDs cannot
	// be probed across users.
	if action == nil || action.UserID != userID {
		return nil, models.ErrActionNotFound
	}

	if !transitionAllowed(action.Status, target) {
		slog.Debug("Machine.Transition: rejected transition", "actionID", actionID, "from", action.Status, "to", target)
		return nil, models.ErrInvalidTransition
	}
	if target == models.ActionStatusRejected && rejectionReason == "" {
		return nil, models.ErrRejectionReasonRequired
	}

	now := time.Now()
	switch target {
	case models.ActionStatusApproved:
		action.ApprovedAt = &now
	case models.ActionStatusRejected:
		action.RejectionReason = rejectionReason
	case models.ActionStatusCompleted:
		if err := m.deliver(ctx, action); err != nil {
			return nil, err
		}
		action.CompletedAt = &now
	}
	action.Status = target
	action.UpdatedAt = now

	if err := m.st.SaveActionItem(*action); err != nil {
		return nil, fmt.Errorf("failed to save action %s: %w", actionID, err)
	}

	slog.Info("Machine.Transition: action transitioned", "actionID", action.ID, "userID", userID, "status", target)
	return action, nil
}

// deliver sends the outbound message for a Deliver action carrying an SMS
// payload. Non-Deliver actions and payloads for other channels complete
// without side effects.
func (m *Machine) deliver(ctx context.Context, action *models.ActionItem) error {
	if action.ActionType != models.ActionTypeDeliver || m.msg == nil {
		return nil
	}
	channel, _ := action.DeliveryPayload["channel"].(string)
	if channel != "sms" {
		return nil
	}
	recipient, _ := action.DeliveryPayload["recipient"].(string)
	message, _ := action.DeliveryPayload["message"].(string)
	if recipient == "" || message == "" {
		return fmt.Errorf("sms delivery payload for action %s is missing recipient or message", action.ID)
	}

	if err := m.msg.SendMessage(ctx, recipient, message); err != nil {
		slog.Error("Machine.deliver: send failed, transition aborted", "actionID", action.ID, "error", err)
		return fmt.Errorf("delivery failed for action %s: %w", action.ID, err)
	}
	slog.Info("Machine.deliver: message delivered", "actionID", action.ID)
	return nil
}
