package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"
)

const anthropicMaxTokens = 4096

// conversationOpener is sent as the first user turn when the conversation
// would otherwise begin with an assistant turn (the persona greeting); the
// Messages API requires user-first ordering.
const conversationOpener = "(conversation start)"

// AnthropicProvider implements Completer using the Anthropic native API.
type AnthropicProvider struct {
	client anthropic.Client
}

func NewAnthropicProvider(apiKey, baseURL string, extra ...anthropicoption.RequestOption) *AnthropicProvider {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Chat(ctx context.Context, model string, msgs []Message) (Reply, error) {
	system, turns := splitAnthropicMessages(msgs)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  turns,
		MaxTokens: anthropicMaxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, fmt.Errorf("anthropic: %w", ctx.Err())
		}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Reply{}, &RequestError{
				Provider:   "anthropic",
				StatusCode: apiErr.StatusCode,
				Message:    http.StatusText(apiErr.StatusCode),
				Err:        err,
			}
		}
		return Reply{}, &RequestError{Provider: "anthropic", Message: err.Error(), Err: err}
	}
	return parseAnthropicMessage(resp.RawJSON())
}

func parseAnthropicMessage(raw string) (Reply, error) {
	if gjson.Get(raw, "type").String() == "error" {
		return Reply{}, &RequestError{
			Provider: "anthropic",
			Type:     gjson.Get(raw, "error.type").String(),
			Message:  gjson.Get(raw, "error.message").String(),
		}
	}

	if !gjson.Get(raw, "content").IsArray() {
		return Reply{}, &ResponseParsingError{Provider: "anthropic", Field: "content"}
	}
	var text strings.Builder
	found := false
	for _, block := range gjson.Get(raw, "content").Array() {
		if block.Get("type").String() != "text" {
			continue
		}
		found = true
		text.WriteString(block.Get("text").String())
	}
	if !found {
		return Reply{}, &ResponseParsingError{Provider: "anthropic", Field: "content[type=text]"}
	}

	in := gjson.Get(raw, "usage.input_tokens")
	out := gjson.Get(raw, "usage.output_tokens")
	if !in.Exists() || !out.Exists() {
		return Reply{}, &ResponseParsingError{Provider: "anthropic", Field: "usage"}
	}

	return Reply{
		Text:             text.String(),
		PromptTokens:     int(in.Int()),
		CompletionTokens: int(out.Int()),
		TotalTokens:      int(in.Int() + out.Int()),
	}, nil
}

// splitAnthropicMessages maps the unified turn list onto the Messages API:
// leading system turns become the system prompt, later system turns (such as
// a summarization instruction) are sent as user text, and consecutive turns
// with the same role are merged.
func splitAnthropicMessages(msgs []Message) (string, []anthropic.MessageParam) {
	var system []string
	i := 0
	for ; i < len(msgs) && msgs[i].Role == RoleSystem; i++ {
		system = append(system, msgs[i].Content)
	}

	type turn struct {
		role Role
		text []string
	}
	var turns []turn
	for _, m := range msgs[i:] {
		role := m.Role
		if role == RoleSystem {
			role = RoleUser
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].text = append(turns[n-1].text, m.Content)
			continue
		}
		turns = append(turns, turn{role: role, text: []string{m.Content}})
	}
	if len(turns) > 0 && turns[0].role == RoleAssistant {
		turns = append([]turn{{role: RoleUser, text: []string{conversationOpener}}}, turns...)
	}

	params := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(strings.Join(t.text, "\n\n"))
		if t.role == RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(block))
		} else {
			params = append(params, anthropic.NewUserMessage(block))
		}
	}
	return strings.Join(system, "\n\n"), params
}
