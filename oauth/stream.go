package oauth

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

// Rule is a filtered-stream rule.
type Rule struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
}

// ErrStreamClosed is returned when the server ends the stream without an error.
var ErrStreamClosed = errors.New("stream closed by server")

// Rules lists the active filtered-stream rules.
func (c *Client) Rules(ctx context.Context) ([]Rule, error) {
	body, err := c.do(ctx, c.app, "stream.rules", http.MethodGet, "/2/tweets/search/stream/rules", nil, nil)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	gjson.GetBytes(body, "data").ForEach(func(_, r gjson.Result) bool {
		rules = append(rules, Rule{ID: r.Get("id").String(), Value: r.Get("value").String(), Tag: r.Get("tag").String()})
		return true
	})
	return rules, nil
}

// EnsureRules adds every rule whose value is not already active.
func (c *Client) EnsureRules(ctx context.Context, want ...Rule) error {
	have, err := c.Rules(ctx)
	if err != nil {
		return err
	}
	active := make(map[string]bool, len(have))
	for _, r := range have {
		active[r.Value] = true
	}
	var add []Rule
	for _, r := range want {
		if !active[r.Value] {
			add = append(add, Rule{Value: r.Value, Tag: r.Tag})
		}
	}
	if len(add) == 0 {
		return nil
	}
	if _, err := c.do(ctx, c.app, "stream.rules", http.MethodPost, "/2/tweets/search/stream/rules", nil, map[string]any{"add": add}); err != nil {
		return err
	}
	slog.Info("oauth: stream rules added", slog.Int("count", len(add)))
	return nil
}

// Stream connects to the filtered stream and calls emit for every tweet. It
// returns when ctx is done, the connection drops or the server closes the
// stream; the caller decides whether to reconnect.
func (c *Client) Stream(ctx context.Context, emit func(twitterbot.InboundEvent)) error {
	q := url.Values{
		"tweet.fields": {tweetFields},
		"expansions":   {"author_id"},
		"user.fields":  {"username"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/2/tweets/search/stream?"+q.Encode(), nil)
	if err != nil {
		return twitterbot.NewError(twitterbot.KindTerminal, "stream", 0, err)
	}
	resp, err := c.app.Do(req)
	if err != nil {
		return transportError("stream", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return statusError("stream", resp, body)
	}
	slog.Info("oauth: stream connected")

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		// Blank lines are keep-alives.
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			slog.Warn("oauth: invalid stream payload", slog.String("line", truncate(string(line), 200)))
			continue
		}
		msg := gjson.ParseBytes(line)
		if !msg.Get("data").Exists() {
			if msg.Get("errors.0").Exists() {
				return twitterbot.NewError(twitterbot.KindTransient, "stream", 0, fmt.Errorf("stream error: %s", apiMessage(line)))
			}
			continue
		}
		emit(parseTweet(msg.Get("data"), userHandles(msg.Get("includes.users"))))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sc.Err(); err != nil {
		return transportError("stream", err)
	}
	return twitterbot.NewError(twitterbot.KindTransient, "stream", 0, ErrStreamClosed)
}
