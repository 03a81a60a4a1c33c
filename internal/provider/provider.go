// Package provider defines the unified interface and shared types for the
// completion backends. Each adapter (openai.go, anthropic.go) implements
// Completer, normalizing vendor-specific responses into a Reply.
package provider

import (
	"context"
	"fmt"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System, User and Assistant build a Message with the matching role.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ── Response types ───────────────────────────────────────────────────────────

// Reply is the normalized result of one completion call.
type Reply struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int // billed tokens for the whole call
}

// ── Completer interface ──────────────────────────────────────────────────────

// Completer is the unified interface for all completion backends.
// Implementations never retry: a failed call returns a *RequestError or a
// *ResponseParsingError and the caller decides what to do.
type Completer interface {
	// Chat sends the full ordered message list and blocks until the backend
	// answers or ctx is cancelled.
	Chat(ctx context.Context, model string, msgs []Message) (Reply, error)

	// Name returns the provider identifier, e.g. "openai", "anthropic".
	Name() string
}

// ── Errors ───────────────────────────────────────────────────────────────────

// RequestError reports a transport failure, a non-2xx HTTP status, or an
// error envelope returned in the response body.
type RequestError struct {
	Provider   string
	StatusCode int    // 0 when the request never got a response
	Type       string // error.type from the envelope, if any
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Type != "":
		return fmt.Sprintf("%s: HTTP %d %s: %s", e.Provider, e.StatusCode, e.Type, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.Type != "":
		return fmt.Sprintf("%s: %s, message:%s", e.Provider, e.Type, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

// ResponseParsingError reports a successful response that lacks a field the
// client depends on.
type ResponseParsingError struct {
	Provider string
	Field    string
}

func (e *ResponseParsingError) Error() string {
	return fmt.Sprintf("%s: response missing %s", e.Provider, e.Field)
}
