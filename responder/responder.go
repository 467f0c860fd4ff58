// Package responder generates reply and post text with an LLM provider.
package responder

import (
	"fmt"
	"strings"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultMaxTokens      = 512
)

// DefaultSystemPrompt keeps answers short enough for a single tweet.
const DefaultSystemPrompt = "You are a helpful, friendly account on a social platform. " +
	"Answer in plain text, in one or two short sentences, without hashtags or surrounding quotes."

const replyInstruction = "Write a reply to this message."

// Config selects and configures a provider.
type Config struct {
	// Provider is "openai" (default) or "anthropic".
	Provider     string
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	MaxTokens    int
}

func (cfg *Config) defaults() {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
}

// New returns the responder for cfg.Provider.
func New(cfg Config) (twitterbot.Responder, error) {
	cfg.defaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("responder: api key is required")
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	}
	return nil, fmt.Errorf("responder: unknown provider %q", cfg.Provider)
}

// userMessage renders a prompt as the single user turn sent to the model.
func userMessage(p twitterbot.Prompt) string {
	var b strings.Builder
	instruction := p.Instruction
	if instruction == "" {
		instruction = replyInstruction
	}
	b.WriteString(instruction)
	if p.Platform != "" {
		fmt.Fprintf(&b, "\nPlatform: %s", p.Platform)
	}
	if p.Author != "" {
		fmt.Fprintf(&b, "\nFrom: @%s", strings.TrimPrefix(p.Author, "@"))
	}
	if p.Content != "" {
		fmt.Fprintf(&b, "\nMessage:\n%s", p.Content)
	}
	return b.String()
}
