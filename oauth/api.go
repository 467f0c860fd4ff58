package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

const (
	userFields  = "created_at,description,public_metrics,verified"
	tweetFields = "created_at,author_id,conversation_id"
)

// Me returns the authenticated account, cached after the first lookup.
func (c *Client) Me(ctx context.Context) (*twitterbot.Profile, error) {
	c.mu.Lock()
	me := c.me
	c.mu.Unlock()
	if me != nil {
		return me, nil
	}

	hc, err := c.userClient("me")
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, hc, "me", http.MethodGet, "/2/users/me", url.Values{"user.fields": {userFields}}, nil)
	if err != nil {
		return nil, err
	}
	me = parseUser(gjson.GetBytes(body, "data"))

	c.mu.Lock()
	c.me = me
	c.mu.Unlock()
	return me, nil
}

// Post publishes a top-level tweet.
func (c *Client) Post(ctx context.Context, msg twitterbot.OutboundMessage) (twitterbot.PostResult, error) {
	return c.createTweet(ctx, "post", msg)
}

// Reply publishes msg in reply to inReplyTo.
func (c *Client) Reply(ctx context.Context, inReplyTo string, msg twitterbot.OutboundMessage) (twitterbot.PostResult, error) {
	if inReplyTo == "" {
		return twitterbot.PostResult{}, twitterbot.NewError(twitterbot.KindTerminal, "reply", 0, fmt.Errorf("missing tweet id"))
	}
	msg.ReplyTo = inReplyTo
	return c.createTweet(ctx, "reply", msg)
}

func (c *Client) createTweet(ctx context.Context, op string, msg twitterbot.OutboundMessage) (twitterbot.PostResult, error) {
	hc, err := c.userClient(op)
	if err != nil {
		return twitterbot.PostResult{}, err
	}
	payload := map[string]any{"text": msg.Text}
	if msg.ReplyTo != "" {
		payload["reply"] = map[string]any{"in_reply_to_tweet_id": msg.ReplyTo}
	}
	if len(msg.MediaIDs) > 0 {
		payload["media"] = map[string]any{"media_ids": msg.MediaIDs}
	}

	body, err := c.do(ctx, hc, op, http.MethodPost, "/2/tweets", nil, payload)
	if err != nil {
		return twitterbot.PostResult{}, err
	}
	id := gjson.GetBytes(body, "data.id").String()
	if id == "" {
		return twitterbot.PostResult{}, twitterbot.NewError(twitterbot.KindTerminal, op, 0, fmt.Errorf("response has no tweet id: %s", truncate(string(body), 200)))
	}
	res := twitterbot.PostResult{ID: id}
	if me, err := c.cachedMe(); err == nil {
		res.AuthorID = me.ID
	}
	return res, nil
}

func (c *Client) cachedMe() (*twitterbot.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.me == nil {
		return nil, fmt.Errorf("account not resolved")
	}
	return c.me, nil
}

// Like favorites a tweet as the authenticated account.
func (c *Client) Like(ctx context.Context, tweetID string) error {
	return c.userAction(ctx, "like", "likes", "liked", tweetID)
}

// Repost retweets a tweet as the authenticated account.
func (c *Client) Repost(ctx context.Context, tweetID string) error {
	return c.userAction(ctx, "repost", "retweets", "retweeted", tweetID)
}

func (c *Client) userAction(ctx context.Context, op, resource, flag, tweetID string) error {
	if tweetID == "" {
		return twitterbot.NewError(twitterbot.KindTerminal, op, 0, fmt.Errorf("missing tweet id"))
	}
	me, err := c.Me(ctx)
	if err != nil {
		return err
	}
	hc, err := c.userClient(op)
	if err != nil {
		return err
	}
	path := "/2/users/" + url.PathEscape(me.ID) + "/" + resource
	body, err := c.do(ctx, hc, op, http.MethodPost, path, nil, map[string]string{"tweet_id": tweetID})
	if err != nil {
		return err
	}
	if !gjson.GetBytes(body, "data."+flag).Bool() {
		return twitterbot.NewError(twitterbot.KindTerminal, op, 0, fmt.Errorf("%s not confirmed: %s", flag, truncate(string(body), 200)))
	}
	return nil
}

// Profile looks up a user by handle.
func (c *Client) Profile(ctx context.Context, handle string) (*twitterbot.Profile, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, twitterbot.NewError(twitterbot.KindTerminal, "profile", 0, fmt.Errorf("missing handle"))
	}
	body, err := c.do(ctx, c.app, "profile", http.MethodGet, "/2/users/by/username/"+url.PathEscape(handle),
		url.Values{"user.fields": {userFields}}, nil)
	if err != nil {
		return nil, err
	}
	return parseUser(gjson.GetBytes(body, "data")), nil
}

// Mentions returns up to limit mentions of the authenticated account created
// after since, oldest first.
func (c *Client) Mentions(ctx context.Context, since time.Time, limit int) ([]twitterbot.InboundEvent, error) {
	me, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{
		"max_results":  {strconv.Itoa(clamp(limit, 5, 100))},
		"tweet.fields": {tweetFields},
		"expansions":   {"author_id"},
	}
	if !since.IsZero() {
		q.Set("start_time", since.UTC().Format(time.RFC3339))
	}
	body, err := c.do(ctx, c.app, "mentions", http.MethodGet, "/2/users/"+url.PathEscape(me.ID)+"/mentions", q, nil)
	if err != nil {
		return nil, err
	}

	handles := userHandles(gjson.GetBytes(body, "includes.users"))
	var events []twitterbot.InboundEvent
	gjson.GetBytes(body, "data").ForEach(func(_, t gjson.Result) bool {
		ev := parseTweet(t, handles)
		if ev.CreatedAt.After(since) {
			events = append(events, ev)
		}
		return true
	})
	// The API returns newest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func parseUser(u gjson.Result) *twitterbot.Profile {
	created, _ := time.Parse(time.RFC3339, u.Get("created_at").String())
	return &twitterbot.Profile{
		ID:          u.Get("id").String(),
		Handle:      u.Get("username").String(),
		DisplayName: u.Get("name").String(),
		Bio:         strings.TrimSpace(u.Get("description").String()),
		Followers:   int(u.Get("public_metrics.followers_count").Int()),
		Following:   int(u.Get("public_metrics.following_count").Int()),
		TweetCount:  int(u.Get("public_metrics.tweet_count").Int()),
		CreatedAt:   created,
		IsVerified:  u.Get("verified").Bool(),
	}
}

func parseTweet(t gjson.Result, handles map[string]string) twitterbot.InboundEvent {
	created, _ := time.Parse(time.RFC3339, t.Get("created_at").String())
	author := t.Get("author_id").String()
	return twitterbot.InboundEvent{
		ID:             t.Get("id").String(),
		AuthorID:       author,
		AuthorHandle:   handles[author],
		Text:           t.Get("text").String(),
		CreatedAt:      created,
		ConversationID: t.Get("conversation_id").String(),
	}
}

func userHandles(users gjson.Result) map[string]string {
	m := make(map[string]string)
	users.ForEach(func(_, u gjson.Result) bool {
		m[u.Get("id").String()] = u.Get("username").String()
		return true
	})
	return m
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}
