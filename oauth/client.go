// Package oauth is the token-based backing client. Writes are signed with
// OAuth 1.0a user context; reads and the filtered stream use an app-only
// bearer token when one is configured.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

const defaultBaseURL = "https://api.twitter.com"

// Config configures the token-based client.
type Config struct {
	// APIKey and APISecret are the consumer credentials.
	APIKey    string
	APISecret string
	// AccessToken and AccessSecret grant user context for writes.
	AccessToken  string
	AccessSecret string
	// BearerToken is an app-only token. When empty and consumer credentials
	// are set, one is obtained with the client-credentials grant.
	BearerToken string
	// BaseURL overrides the API host. Default https://api.twitter.com
	BaseURL string
	// Timeout bounds non-stream requests. Default 30s.
	Timeout time.Duration
}

func (cfg *Config) defaults() {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
}

func (cfg *Config) hasUserContext() bool {
	return cfg.APIKey != "" && cfg.APISecret != "" && cfg.AccessToken != "" && cfg.AccessSecret != ""
}

// Client implements the platform surface over the v2 REST API.
type Client struct {
	cfg Config
	// user signs requests on behalf of the account; nil without user context.
	user *http.Client
	// app carries the bearer token; falls back to user.
	app *http.Client

	mu sync.Mutex
	me *twitterbot.Profile
}

var (
	_ twitterbot.Platform      = (*Client)(nil)
	_ twitterbot.MentionSource = (*Client)(nil)
	_ twitterbot.StreamSource  = (*Client)(nil)
)

// New builds the HTTP clients. It fails with KindAuthentication when no
// usable credentials are configured.
func New(ctx context.Context, cfg Config) (*Client, error) {
	cfg.defaults()
	c := &Client{cfg: cfg}

	if cfg.hasUserContext() {
		oc := oauth1.NewConfig(cfg.APIKey, cfg.APISecret)
		c.user = oc.Client(ctx, oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret))
	}

	switch {
	case cfg.BearerToken != "":
		c.app = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.BearerToken}))
	case cfg.APIKey != "" && cfg.APISecret != "":
		cc := clientcredentials.Config{
			ClientID:     cfg.APIKey,
			ClientSecret: cfg.APISecret,
			TokenURL:     cfg.BaseURL + "/oauth2/token",
		}
		c.app = cc.Client(ctx)
	}

	if c.user == nil && c.app == nil {
		return nil, twitterbot.NewError(twitterbot.KindAuthentication, "oauth.New", 0,
			fmt.Errorf("no api key/secret, access token or bearer token configured"))
	}
	if c.app == nil {
		c.app = c.user
	}
	slog.Debug("oauth: client ready", slog.Bool("user_context", c.user != nil), slog.String("base", cfg.BaseURL))
	return c, nil
}

func (c *Client) userClient(op string) (*http.Client, error) {
	if c.user == nil {
		return nil, twitterbot.NewError(twitterbot.KindAuthentication, op, 0,
			fmt.Errorf("user context required: set access token and secret"))
	}
	return c.user, nil
}

// do sends one request and returns the body of a 2xx response. Every other
// outcome is mapped to *twitterbot.Error.
func (c *Client) do(ctx context.Context, hc *http.Client, op, method, path string, query url.Values, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, twitterbot.NewError(twitterbot.KindTerminal, op, 0, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, twitterbot.NewError(twitterbot.KindTerminal, op, 0, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, transportError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Debug("oauth: request failed", slog.String("op", op), slog.Int("status", resp.StatusCode))
		return nil, statusError(op, resp, data)
	}
	if err := bodyError(op, data); err != nil {
		return nil, err
	}
	return data, nil
}
