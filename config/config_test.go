package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOnly(vars map[string]string) env.Options {
	return env.Options{Environment: vars}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", envOnly(map[string]string{
		"TWITTER_USERNAME": "bot",
		"TWITTER_PASSWORD": "pw",
	}))
	require.NoError(t, err)
	assert.Equal(t, ModeSession, cfg.Mode)
	assert.Equal(t, 280, cfg.Content.MaxLength)
	assert.Zero(t, cfg.Content.MaxEmojis)
	assert.Equal(t, 30*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, time.Minute, cfg.Monitor.RestartDelay)
	assert.Equal(t, 5, cfg.Monitor.MaxRestarts)
	assert.Equal(t, 3, cfg.Retry.Limit)
	assert.Equal(t, time.Second, cfg.Retry.Delay)
	assert.Equal(t, "./data/twitterbot.db", cfg.StorePath)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: oauth
oauth:
  api_key: file-key
  api_secret: file-secret
  access_token: file-access
  access_secret: file-access-secret
content:
  max_hashtags: 2
monitor:
  poll_interval: 2m
  stream: true
posts:
  schedule: "0 */4 * * *"
  topics: [golang, distributed systems]
`), 0o600))

	cfg, err := load(path, envOnly(map[string]string{
		"TWITTER_API_KEY":     "env-key",
		"TWITTER_MAX_EMOJIS":  "1",
		"TWITTER_POST_TOPICS": "rust, ,zig",
	}))
	require.NoError(t, err)
	assert.Equal(t, ModeOAuth, cfg.Mode)
	assert.Equal(t, "env-key", cfg.OAuth.APIKey)
	assert.Equal(t, "file-secret", cfg.OAuth.APISecret)
	assert.Equal(t, "file-access", cfg.OAuth.AccessToken)
	assert.Equal(t, 2*time.Minute, cfg.Monitor.PollInterval)
	assert.True(t, cfg.Monitor.Stream)
	assert.Equal(t, []string{"rust", "zig"}, cfg.Posts.Topics)

	rules := cfg.Rules()
	assert.Equal(t, 280, rules.MaxLength)
	assert.Equal(t, 1, rules.MaxEmojis)
	assert.Equal(t, 2, rules.MaxHashtags)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing credentials", map[string]string{}, "TWITTER_USERNAME is required"},
		{"unknown mode", map[string]string{"TWITTER_CLIENT_MODE": "ftp"}, `"ftp"`},
		{"oauth without keys", map[string]string{"TWITTER_CLIENT_MODE": "oauth"}, "TWITTER_API_KEY is required"},
		{"oauth bearer only", map[string]string{
			"TWITTER_CLIENT_MODE": "oauth", "TWITTER_BEARER_TOKEN": "b",
		}, "TWITTER_ACCESS_TOKEN is required"},
		{"oauth without access secret", map[string]string{
			"TWITTER_CLIENT_MODE": "oauth", "TWITTER_API_KEY": "k", "TWITTER_API_SECRET": "s",
			"TWITTER_ACCESS_TOKEN": "t",
		}, "TWITTER_ACCESS_SECRET is required"},
		{"stream needs oauth", map[string]string{
			"TWITTER_USERNAME": "u", "TWITTER_PASSWORD": "p", "TWITTER_STREAM": "true",
		}, "TWITTER_STREAM needs oauth"},
		{"bad cron", map[string]string{
			"TWITTER_USERNAME": "u", "TWITTER_PASSWORD": "p",
			"TWITTER_POST_SCHEDULE": "every day", "TWITTER_POST_TOPICS": "go",
		}, "not a valid cron"},
		{"schedule without topics", map[string]string{
			"TWITTER_USERNAME": "u", "TWITTER_PASSWORD": "p", "TWITTER_POST_SCHEDULE": "@daily",
		}, "needs TWITTER_POST_TOPICS"},
		{"length over limit", map[string]string{
			"TWITTER_USERNAME": "u", "TWITTER_PASSWORD": "p", "TWITTER_MAX_LENGTH": "500",
		}, "TWITTER_MAX_LENGTH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load("", envOnly(tt.env))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), envOnly(nil))
	assert.ErrorContains(t, err, "read config")
}
