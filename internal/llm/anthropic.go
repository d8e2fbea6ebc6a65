package llm

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// DefaultAnthropicModel is used when no Claude model is configured
const DefaultAnthropicModel = "claude-haiku-4-5-20251001"

// AnthropicClient completes prompts with the Claude Messages API
type AnthropicClient struct {
	client sdk.Client
	opts   Options
}

// NewAnthropicClient creates a Claude-backed client. Extra request options
// are passed to the SDK (base URL, retries).
func NewAnthropicClient(apiKey string, opts Options, reqOpts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, eris.New("llm: anthropic api key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultAnthropicModel
	}
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, reqOpts...)
	return &AnthropicClient{
		client: sdk.NewClient(all...),
		opts:   opts.withDefaults(),
	}, nil
}

// Complete sends a single user message and joins the text blocks of the reply
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.opts.Model),
		MaxTokens:   int64(c.opts.MaxOutputTokens),
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
		Temperature: sdk.Float(float64(c.opts.Temperature)),
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", eris.Wrap(err, "llm: anthropic create message")
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if sb.Len() == 0 {
		return "", eris.New("llm: anthropic response has no text")
	}
	return sb.String(), nil
}

// Close is a no-op; the SDK client holds no resources
func (c *AnthropicClient) Close() error {
	return nil
}
