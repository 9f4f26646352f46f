package messaging

import (
	"context"
	"errors"
	"testing"
)

type mockSender struct {
	to   string
	body string
	err  error
}

func (m *mockSender) SendMessage(ctx context.Context, to string, body string) error {
	m.to = to
	m.body = body
	return m.err
}

func TestValidateAndCanonicalizeRecipient(t *testing.T) {
	s := NewTwilioService(&mockSender{})

	cases := map[string]string{
		"+1 (555) 123-4567": "+15551234567",
		"555 123 4567":      "5551234567",
		"+447700900123":     "+447700900123",
	}
	for in, want := range cases {
		got, err := s.ValidateAndCanonicalizeRecipient(in)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("canonicalize(%q) = %q, want %q", in, got, want)
		}
	}

	for _, bad := range []string{"", "12345", "no digits here"} {
		if _, err := s.ValidateAndCanonicalizeRecipient(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestSendMessage(t *testing.T) {
	sender := &mockSender{}
	s := NewTwilioService(sender)

	if err := s.SendMessage(context.Background(), "+1 (555) 123-4567", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if sender.to != "+15551234567" {
		t.Errorf("recipient not canonicalized: %q", sender.to)
	}
	if sender.body != "hello" {
		t.Errorf("body not forwarded: %q", sender.body)
	}

	if err := s.SendMessage(context.Background(), "+15551234567", "   "); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestSendMessage_SenderError(t *testing.T) {
	s := NewTwilioService(&mockSender{err: errors.New("twilio down")})
	err := s.SendMessage(context.Background(), "+15551234567", "hello")
	if err == nil || err.Error() != "twilio down" {
		t.Errorf("expected sender error passthrough, got %v", err)
	}
}
