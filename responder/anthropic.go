package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

type Anthropic struct {
	client    *anthropic.Client
	model     string
	system    string
	maxTokens int
}

func NewAnthropic(cfg Config) *Anthropic {
	cfg.defaults()
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &Anthropic{
		client:    &client,
		model:     model,
		system:    cfg.SystemPrompt,
		maxTokens: cfg.MaxTokens,
	}
}

func (r *Anthropic) Respond(ctx context.Context, p twitterbot.Prompt) (string, error) {
	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: int64(r.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: r.system}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage(p)))},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic chat failed: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(text.String()), nil
}
