package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
)

// OpenAIProvider implements Completer for all OpenAI-compatible APIs,
// including OpenAI, DeepSeek, MiniMax, Kimi, Qwen, etc.
type OpenAIProvider struct {
	client  openai.Client
	name    string
	baseURL string
}

func NewOpenAIProvider(apiKey, baseURL string, extra ...option.RequestOption) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0), // failures surface to the session, never retried here
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)

	return &OpenAIProvider{
		client:  openai.NewClient(opts...),
		name:    providerNameFromURL(baseURL),
		baseURL: baseURL,
	}
}

func providerNameFromURL(baseURL string) string {
	switch {
	case strings.Contains(baseURL, "deepseek"):
		return "deepseek"
	case strings.Contains(baseURL, "minimax"):
		return "minimax"
	case strings.Contains(baseURL, "generativelanguage.googleapis.com"):
		return "gemini"
	case strings.Contains(baseURL, "moonshot"):
		return "kimi"
	case strings.Contains(baseURL, "dashscope"):
		return "qwen"
	case strings.Contains(baseURL, "bigmodel.cn"):
		return "glm"
	case strings.Contains(baseURL, "volces.com"):
		return "doubao"
	case strings.Contains(baseURL, "groq"):
		return "groq"
	default:
		return "openai"
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Chat(ctx context.Context, model string, msgs []Message) (Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: buildOpenAIMessages(msgs),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Reply{}, p.wrapError(ctx, err)
	}
	return parseChatCompletion(p.name, resp.RawJSON())
}

// wrapError converts an SDK failure into a *RequestError. Cancellation is
// passed through untouched so callers can tell an interrupt from a failure.
func (p *OpenAIProvider) wrapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", p.name, ctx.Err())
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &RequestError{
			Provider:   p.name,
			StatusCode: apiErr.StatusCode,
			Type:       apiErr.Type,
			Message:    msg,
			Err:        err,
		}
	}
	return &RequestError{Provider: p.name, Message: err.Error(), Err: err}
}

// parseChatCompletion extracts the reply from a raw chat.completion body.
// Some OpenAI-compatible gateways answer 200 with an error envelope, so the
// envelope is checked before the expected fields.
func parseChatCompletion(name, raw string) (Reply, error) {
	if env := gjson.Get(raw, "error"); env.Exists() && env.Type != gjson.Null {
		return Reply{}, &RequestError{
			Provider: name,
			Type:     env.Get("type").String(),
			Message:  env.Get("message").String(),
		}
	}

	content := gjson.Get(raw, "choices.0.message.content")
	if !content.Exists() || content.Type == gjson.Null {
		return Reply{}, &ResponseParsingError{Provider: name, Field: "choices[0].message.content"}
	}
	total := gjson.Get(raw, "usage.total_tokens")
	if !total.Exists() {
		return Reply{}, &ResponseParsingError{Provider: name, Field: "usage.total_tokens"}
	}

	return Reply{
		Text:             content.String(),
		PromptTokens:     int(gjson.Get(raw, "usage.prompt_tokens").Int()),
		CompletionTokens: int(gjson.Get(raw, "usage.completion_tokens").Int()),
		TotalTokens:      int(total.Int()),
	}, nil
}

// buildOpenAIMessages converts unified Message types to OpenAI API params.
func buildOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}
	return params
}
