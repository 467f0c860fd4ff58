package responder

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

// OpenAI talks to OpenAI or any OpenAI-compatible API.
type OpenAI struct {
	client    *openai.Client
	model     string
	system    string
	maxTokens int
}

// NewOpenAI creates a responder with an optional base URL override.
func NewOpenAI(cfg Config) *OpenAI {
	cfg.defaults()
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(oc),
		model:     model,
		system:    cfg.SystemPrompt,
		maxTokens: cfg.MaxTokens,
	}
}

// Respond sends one chat completion and returns the first choice.
func (r *OpenAI) Respond(ctx context.Context, p twitterbot.Prompt) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: r.system},
			{Role: openai.ChatMessageRoleUser, Content: userMessage(p)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
