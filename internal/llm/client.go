// Package llm talks to OpenAI-compatible chat APIs and uses them to suggest
// the NCM classification of a product description.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// OpenRouter is used unless another endpoint is configured
const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o-mini"
)

// ErrTruncated is returned when the model stopped on the token limit
var ErrTruncated = errors.New("llm: answer truncated by token limit")

// Config holds the endpoint settings. Empty fields take the defaults.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Prompt is a single-turn chat request
type Prompt struct {
	Model     string
	System    string
	User      string
	MaxTokens int64
}

// Client sends prompts to an OpenAI-compatible endpoint
type Client struct {
	api   openai.Client
	model string
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}

	return &Client{
		api: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			option.WithMaxRetries(cfg.MaxRetries),
			option.WithHeader("X-Title", "Fiscal Manager"),
		),
		model: cfg.Model,
	}
}

// Model returns the model used when a prompt names none
func (c *Client) Model() string { return c.model }

// Complete returns the text of the first choice
func (c *Client) Complete(ctx context.Context, p Prompt) (string, error) {
	if p.Model == "" {
		p.Model = c.model
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = 1024
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if p.System != "" {
		msgs = append(msgs, openai.SystemMessage(p.System))
	}
	msgs = append(msgs, openai.UserMessage(p.User))

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       p.Model,
		Messages:    msgs,
		MaxTokens:   param.NewOpt(p.MaxTokens),
		Temperature: param.NewOpt(0.1),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: empty choice list")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return choice.Message.Content, ErrTruncated
	}
	return choice.Message.Content, nil
}

// ExtractJSON returns the outermost JSON object or array in a model answer.
// Markdown fences and surrounding prose are dropped.
func ExtractJSON(answer string) string {
	start := strings.IndexAny(answer, "{[")
	if start < 0 {
		return strings.TrimSpace(answer)
	}
	closer := "}"
	if answer[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(answer, closer)
	if end < start {
		return strings.TrimSpace(answer[start:])
	}
	return answer[start : end+1]
}
