package genai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   *openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func TestGenerateClassification_Success(t *testing.T) {
	mockResp := &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: `{"entity":"IHA"}`}},
		},
	}
	mock := &mockChatService{resp: mockResp}
	client := &Client{chat: mock, model: DefaultModel, timeout: time.Second}

	out, err := client.GenerateClassification(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != `{"entity":"IHA"}` {
		t.Errorf("unexpected output: %q", out)
	}
	if mock.params.Model != DefaultModel {
		t.Errorf("expected model %q, got %q", DefaultModel, mock.params.Model)
	}
	if len(mock.params.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(mock.params.Messages))
	}
}

func TestGenerateClassification_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}, model: DefaultModel, timeout: time.Second}
	_, err := client.GenerateClassification(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerateClassification_NoChoices(t *testing.T) {
	mockResp := &openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}, model: DefaultModel, timeout: time.Second}
	_, err := client.GenerateClassification(context.Background(), "sys", "usr")
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-4o-mini"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli.Model() != "gpt-4o-mini" {
		t.Errorf("expected model override, got %q", cli.Model())
	}
}
