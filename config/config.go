// Package config loads bot settings from an optional YAML file overlaid with
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

const (
	ModeSession = "session"
	ModeOAuth   = "oauth"
)

// Config is the full bot configuration. Environment variables win over the file.
type Config struct {
	// Mode selects the backing client: "session" or "oauth".
	Mode string `yaml:"mode" env:"TWITTER_CLIENT_MODE"`

	Session SessionConfig `yaml:"session"`
	OAuth   OAuthConfig   `yaml:"oauth"`
	Content ContentConfig `yaml:"content"`
	Monitor MonitorConfig `yaml:"monitor"`
	Retry   RetryConfig   `yaml:"retry"`
	Posts   PostsConfig   `yaml:"posts"`
	AI      AIConfig      `yaml:"ai"`

	// StorePath is the SQLite ledger file. Default ./data/twitterbot.db
	StorePath string `yaml:"store_path" env:"BOT_STORE_PATH"`
}

type SessionConfig struct {
	Username   string `yaml:"username" env:"TWITTER_USERNAME"`
	Password   string `yaml:"password" env:"TWITTER_PASSWORD"`
	Email      string `yaml:"email" env:"TWITTER_EMAIL"`
	TOTPSecret string `yaml:"totp_secret" env:"TWITTER_2FA_SECRET"`
	Proxy      string `yaml:"proxy" env:"TWITTER_PROXY"`
	Dir        string `yaml:"dir" env:"TWITTER_SESSION_DIR"`
	// ReadAccounts is "user:pass[:email[:totp]]" entries, comma separated.
	ReadAccounts string `yaml:"read_accounts" env:"TWITTER_READ_ACCOUNTS"`
}

type OAuthConfig struct {
	APIKey       string `yaml:"api_key" env:"TWITTER_API_KEY"`
	APISecret    string `yaml:"api_secret" env:"TWITTER_API_SECRET"`
	AccessToken  string `yaml:"access_token" env:"TWITTER_ACCESS_TOKEN"`
	AccessSecret string `yaml:"access_secret" env:"TWITTER_ACCESS_SECRET"`
	BearerToken  string `yaml:"bearer_token" env:"TWITTER_BEARER_TOKEN"`
	BaseURL      string `yaml:"base_url" env:"TWITTER_API_BASE_URL"`
}

type ContentConfig struct {
	MaxLength   int `yaml:"max_length" env:"TWITTER_MAX_LENGTH"`
	MaxEmojis   int `yaml:"max_emojis" env:"TWITTER_MAX_EMOJIS"`
	MaxHashtags int `yaml:"max_hashtags" env:"TWITTER_MAX_HASHTAGS"`
	// MinInterval spaces outbound posts.
	MinInterval time.Duration `yaml:"min_interval" env:"TWITTER_MIN_INTERVAL"`
}

type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"TWITTER_POLL_INTERVAL"`
	BatchSize    int           `yaml:"batch_size" env:"TWITTER_POLL_BATCH"`
	// Stream uses the filtered stream instead of polling (oauth mode only).
	Stream       bool          `yaml:"stream" env:"TWITTER_STREAM"`
	RestartDelay time.Duration `yaml:"restart_delay" env:"TWITTER_STREAM_RESTART_DELAY"`
	MaxRestarts  int           `yaml:"max_restarts" env:"TWITTER_STREAM_MAX_RESTARTS"`
	LikeMentions bool          `yaml:"like_mentions" env:"TWITTER_LIKE_MENTIONS"`
}

type RetryConfig struct {
	Limit int           `yaml:"limit" env:"TWITTER_RETRY_LIMIT"`
	Delay time.Duration `yaml:"delay" env:"TWITTER_RETRY_DELAY"`
}

type PostsConfig struct {
	// Schedule is a cron expression; empty disables scheduled posts.
	Schedule string   `yaml:"schedule" env:"TWITTER_POST_SCHEDULE"`
	Topics   []string `yaml:"topics" env:"TWITTER_POST_TOPICS" envSeparator:","`
}

type AIConfig struct {
	Provider     string `yaml:"provider" env:"AI_PROVIDER"`
	APIKey       string `yaml:"api_key" env:"AI_API_KEY"`
	Model        string `yaml:"model" env:"AI_MODEL"`
	BaseURL      string `yaml:"base_url" env:"AI_BASE_URL"`
	SystemPrompt string `yaml:"system_prompt" env:"AI_SYSTEM_PROMPT"`
}

// Load reads path (skipped when empty), applies the environment, fills
// defaults and validates.
func Load(path string) (*Config, error) {
	return load(path, env.Options{})
}

func load(path string, opts env.Options) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) defaults() {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = ModeSession
	}
	if cfg.Content.MaxLength == 0 {
		cfg.Content.MaxLength = twitterbot.MaxTweetLength
	}
	if cfg.Monitor.PollInterval == 0 {
		cfg.Monitor.PollInterval = 30 * time.Second
	}
	if cfg.Monitor.BatchSize == 0 {
		cfg.Monitor.BatchSize = 20
	}
	if cfg.Monitor.RestartDelay == 0 {
		cfg.Monitor.RestartDelay = time.Minute
	}
	if cfg.Monitor.MaxRestarts == 0 {
		cfg.Monitor.MaxRestarts = 5
	}
	if cfg.Retry.Limit == 0 {
		cfg.Retry.Limit = 3
	}
	if cfg.Retry.Delay == 0 {
		cfg.Retry.Delay = time.Second
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "./data/twitterbot.db"
	}
	topics := cfg.Posts.Topics[:0]
	for _, t := range cfg.Posts.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	cfg.Posts.Topics = topics
}

// Validate reports every configuration problem at once.
func (cfg *Config) Validate() error {
	var errs []error
	switch cfg.Mode {
	case ModeSession:
		if cfg.Session.Username == "" {
			errs = append(errs, errors.New("TWITTER_USERNAME is required in session mode"))
		}
		if cfg.Session.Password == "" {
			errs = append(errs, errors.New("TWITTER_PASSWORD is required in session mode"))
		}
		if cfg.Monitor.Stream {
			errs = append(errs, errors.New("TWITTER_STREAM needs oauth mode"))
		}
	case ModeOAuth:
		// Posting signs with the user context; reads use the bearer token or
		// an app token fetched with the consumer keys.
		o := cfg.OAuth
		for _, req := range []struct{ name, val string }{
			{"TWITTER_API_KEY", o.APIKey},
			{"TWITTER_API_SECRET", o.APISecret},
			{"TWITTER_ACCESS_TOKEN", o.AccessToken},
			{"TWITTER_ACCESS_SECRET", o.AccessSecret},
		} {
			if req.val == "" {
				errs = append(errs, fmt.Errorf("%s is required in oauth mode", req.name))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("TWITTER_CLIENT_MODE %q: want %s or %s", cfg.Mode, ModeSession, ModeOAuth))
	}
	if cfg.Content.MaxLength < 0 || cfg.Content.MaxLength > twitterbot.MaxTweetLength {
		errs = append(errs, fmt.Errorf("TWITTER_MAX_LENGTH must be between 1 and %d", twitterbot.MaxTweetLength))
	}
	if cfg.Monitor.PollInterval < time.Second {
		errs = append(errs, errors.New("TWITTER_POLL_INTERVAL must be at least 1s"))
	}
	if cfg.Retry.Limit < 1 {
		errs = append(errs, errors.New("TWITTER_RETRY_LIMIT must be positive"))
	}
	if cfg.Posts.Schedule != "" {
		if !gronx.New().IsValid(cfg.Posts.Schedule) {
			errs = append(errs, fmt.Errorf("TWITTER_POST_SCHEDULE %q is not a valid cron expression", cfg.Posts.Schedule))
		}
		if len(cfg.Posts.Topics) == 0 {
			errs = append(errs, errors.New("TWITTER_POST_SCHEDULE needs TWITTER_POST_TOPICS"))
		}
	}
	return errors.Join(errs...)
}

// Rules returns the outbound content rules.
func (cfg *Config) Rules() twitterbot.Rules {
	return twitterbot.Rules{
		MaxLength:   cfg.Content.MaxLength,
		MaxEmojis:   cfg.Content.MaxEmojis,
		MaxHashtags: cfg.Content.MaxHashtags,
	}
}
