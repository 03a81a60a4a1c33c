package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// --- OpenAI provider name detection ---

func TestOpenAIProvider_NameDetection(t *testing.T) {
	tests := []struct {
		baseURL  string
		expected string
	}{
		{"", "openai"},
		{"https://api.deepseek.com/v1", "deepseek"},
		{"https://api.minimax.chat/v1", "minimax"},
		{"https://generativelanguage.googleapis.com/v1beta/openai/", "gemini"},
		{"https://api.moonshot.cn/v1", "kimi"},
		{"https://dashscope.aliyuncs.com/v1", "qwen"},
		{"https://custom.api.com/v1", "openai"},
	}
	for _, tt := range tests {
		p := NewOpenAIProvider("test-key", tt.baseURL)
		if p.Name() != tt.expected {
			t.Errorf("baseURL=%q: expected name %q, got %q", tt.baseURL, tt.expected, p.Name())
		}
	}
}

func TestMessageConstructors(t *testing.T) {
	got := []Message{System("s"), User("u"), Assistant("a")}
	want := []Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleAssistant, Content: "a"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("constructors mismatch (-want +got):\n%s", diff)
	}
}

// --- OpenAI wire behaviour ---

func openAIServer(t *testing.T, status int, body string, seen *[]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			var req map[string]any
			_ = json.Unmarshal(raw, &req)
			*seen = append(*seen, req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIChat_Success(t *testing.T) {
	var seen []map[string]any
	srv := openAIServer(t, http.StatusOK, `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": "Hello there"}}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
	}`, &seen)

	p := NewOpenAIProvider("test-key", srv.URL+"/")
	reply, err := p.Chat(context.Background(), "gpt-4o-mini", []Message{System("be nice"), User("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Reply{Text: "Hello there", PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}
	if diff := cmp.Diff(want, reply); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}

	if len(seen) != 1 {
		t.Fatalf("expected exactly 1 request, got %d", len(seen))
	}
	if seen[0]["model"] != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %v", seen[0]["model"])
	}
	msgs, _ := seen[0]["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages on the wire, got %d", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("expected first wire message to be system, got %v", first["role"])
	}
}

func TestOpenAIChat_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantParse  bool
		wantStatus int
	}{
		{
			name:       "http error",
			status:     http.StatusUnauthorized,
			body:       `{"error": {"type": "invalid_request_error", "message": "bad key"}}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "error envelope with 200",
			status: http.StatusOK,
			body:   `{"error": {"type": "server_error", "message": "overloaded"}}`,
		},
		{
			name:      "missing choices",
			status:    http.StatusOK,
			body:      `{"id": "x", "object": "chat.completion", "choices": [], "usage": {"total_tokens": 4}}`,
			wantParse: true,
		},
		{
			name:   "missing usage",
			status: http.StatusOK,
			body: `{"id": "x", "object": "chat.completion",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi"}}]}`,
			wantParse: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []map[string]any
			srv := openAIServer(t, tt.status, tt.body, &seen)
			p := NewOpenAIProvider("test-key", srv.URL+"/")

			_, err := p.Chat(context.Background(), "gpt-4o-mini", []Message{User("hi")})
			if err == nil {
				t.Fatal("expected an error")
			}
			if len(seen) != 1 {
				t.Errorf("expected no retries (1 request), got %d", len(seen))
			}

			var reqErr *RequestError
			var parseErr *ResponseParsingError
			if tt.wantParse {
				if !errors.As(err, &parseErr) {
					t.Fatalf("expected ResponseParsingError, got %T: %v", err, err)
				}
				return
			}
			if !errors.As(err, &reqErr) {
				t.Fatalf("expected RequestError, got %T: %v", err, err)
			}
			if reqErr.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, reqErr.StatusCode)
			}
		})
	}
}

func TestOpenAIChat_Cancelled(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, `{}`, nil)
	p := NewOpenAIProvider("test-key", srv.URL+"/")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Chat(ctx, "gpt-4o-mini", []Message{User("hi")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		t.Error("cancellation must not be reported as a RequestError")
	}
}

// --- Anthropic ---

func TestParseAnthropicMessage(t *testing.T) {
	reply, err := parseAnthropicMessage(`{
		"id": "msg_1", "type": "message", "role": "assistant",
		"content": [{"type": "text", "text": "Hi "}, {"type": "text", "text": "there"}],
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Reply{Text: "Hi there", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	if diff := cmp.Diff(want, reply); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}

	_, err = parseAnthropicMessage(`{"type": "message", "content": [], "usage": {"input_tokens": 1, "output_tokens": 1}}`)
	var parseErr *ResponseParsingError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected ResponseParsingError for empty content, got %v", err)
	}

	_, err = parseAnthropicMessage(`{"type": "error", "error": {"type": "overloaded_error", "message": "busy"}}`)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Type != "overloaded_error" {
		t.Errorf("expected RequestError(overloaded_error), got %v", err)
	}
}

func TestSplitAnthropicMessages(t *testing.T) {
	system, turns := splitAnthropicMessages([]Message{
		System("persona"),
		Assistant("How can I help you?"),
		User("hi"),
		Assistant("hello"),
		System("summarize please"),
	})
	if system != "persona" {
		t.Errorf("expected system prompt %q, got %q", "persona", system)
	}
	// opener + greeting + user + assistant + trailing system-as-user
	if len(turns) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(turns))
	}
	if turns[0].Role != "user" || turns[1].Role != "assistant" || turns[4].Role != "user" {
		t.Errorf("unexpected role ordering: %v %v %v", turns[0].Role, turns[1].Role, turns[4].Role)
	}
}

func TestAnthropicChat_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "msg_1", "type": "message", "role": "assistant", "model": "claude",
			"content": [{"type": "text", "text": "ok"}], "stop_reason": "end_turn",
			"usage": {"input_tokens": 7, "output_tokens": 2}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", srv.URL+"/")
	reply, err := p.Chat(context.Background(), "claude-sonnet-4-20250514", []Message{System("s"), User("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "ok" || reply.TotalTokens != 9 {
		t.Errorf("unexpected reply %+v", reply)
	}
}

func TestRequestErrorMessage(t *testing.T) {
	err := &RequestError{Provider: "openai", Type: "server_error", Message: "boom"}
	if got := err.Error(); got != "openai: server_error, message:boom" {
		t.Errorf("unexpected message %q", got)
	}
	wrapped := &RequestError{Provider: "openai", Message: "dial", Err: io.ErrUnexpectedEOF}
	if !errors.Is(wrapped, io.ErrUnexpectedEOF) {
		t.Error("RequestError should unwrap to its cause")
	}
}
