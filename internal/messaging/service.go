// Package messaging delivers approved action messages to their recipients.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/voicebrain/voicebrain/internal/twiliosms"
)

// phoneNumberRegex matches characters stripped during canonicalization.
var phoneNumberRegex = regexp.MustCompile(`[^0-9+]`)

// Service is the outbound delivery interface used by the action state
// machine when an approved Deliver action completes.
type Service interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// TwilioService implements Service over the Twilio SMS client.
type TwilioService struct {
	sender twiliosms.Sender
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a TwilioService.
func NewTwilioService(sender twiliosms.Sender) *TwilioService {
	return &TwilioService{sender: sender}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a phone
// number: strips formatting characters and requires at least 6 digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	// A leading + is the only allowed non-digit.
	if i := strings.LastIndex(canonical, "+"); i > 0 {
		canonical = strings.ReplaceAll(canonical[1:], "+", "")
		canonical = "+" + canonical
	}

	digits := strings.TrimPrefix(canonical, "+")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}

	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// SendMessage validates the recipient and sends the message.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage validation error", "error", err, "to", to)
		return err
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	return s.sender.SendMessage(ctx, canonical, body)
}
