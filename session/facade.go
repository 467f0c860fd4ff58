package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

// Post publishes a top-level tweet.
func (c *Client) Post(ctx context.Context, msg twitterbot.OutboundMessage) (twitterbot.PostResult, error) {
	return c.createTweet(ctx, "post", msg)
}

// Reply publishes msg as a reply to inReplyTo.
func (c *Client) Reply(ctx context.Context, inReplyTo string, msg twitterbot.OutboundMessage) (twitterbot.PostResult, error) {
	if inReplyTo == "" {
		return twitterbot.PostResult{}, twitterbot.NewError(twitterbot.KindTerminal, "reply", 0, fmt.Errorf("missing tweet id"))
	}
	msg.ReplyTo = inReplyTo
	return c.createTweet(ctx, "reply", msg)
}

func (c *Client) createTweet(ctx context.Context, op string, msg twitterbot.OutboundMessage) (twitterbot.PostResult, error) {
	ep, err := endpoint("CreateTweet")
	if err != nil {
		return twitterbot.PostResult{}, twitterbot.NewError(twitterbot.KindTerminal, op, 0, err)
	}
	media := make([]map[string]any, 0, len(msg.MediaIDs))
	for _, id := range msg.MediaIDs {
		media = append(media, map[string]any{"media_id": id, "tagged_users": []string{}})
	}
	vars := map[string]any{
		"tweet_text":              msg.Text,
		"dark_request":            false,
		"media":                   map[string]any{"media_entities": media, "possibly_sensitive": false},
		"semantic_annotation_ids": []string{},
	}
	if msg.ReplyTo != "" {
		vars["reply"] = map[string]any{
			"in_reply_to_tweet_id":   msg.ReplyTo,
			"exclude_reply_user_ids": []string{},
		}
	}
	payload, err := ep.Body(vars)
	if err != nil {
		return twitterbot.PostResult{}, twitterbot.NewError(twitterbot.KindTerminal, op, 0, err)
	}

	body, err := c.post(ctx, ep.Name, ep.URL(), payload)
	if err != nil {
		return twitterbot.PostResult{}, err
	}
	res, err := parseCreateTweet(body)
	if err != nil {
		return twitterbot.PostResult{}, twitterbot.NewError(twitterbot.KindTerminal, op, 0, err)
	}
	return res, nil
}

// Like favorites a tweet.
func (c *Client) Like(ctx context.Context, tweetID string) error {
	return c.mutate(ctx, "FavoriteTweet", "like", tweetID, parseFavorite)
}

// Repost retweets a tweet.
func (c *Client) Repost(ctx context.Context, tweetID string) error {
	return c.mutate(ctx, "CreateRetweet", "repost", tweetID, parseRetweet)
}

func (c *Client) mutate(ctx context.Context, name, op, tweetID string, parse func([]byte) error) error {
	if tweetID == "" {
		return twitterbot.NewError(twitterbot.KindTerminal, op, 0, fmt.Errorf("missing tweet id"))
	}
	ep, err := endpoint(name)
	if err != nil {
		return twitterbot.NewError(twitterbot.KindTerminal, op, 0, err)
	}
	payload, err := ep.Body(map[string]any{"tweet_id": tweetID, "dark_request": false})
	if err != nil {
		return twitterbot.NewError(twitterbot.KindTerminal, op, 0, err)
	}
	body, err := c.post(ctx, ep.Name, ep.URL(), payload)
	if err != nil {
		return err
	}
	if err := parse(body); err != nil {
		return twitterbot.NewError(twitterbot.KindTerminal, op, 0, err)
	}
	return nil
}

// Profile looks up a user by screen name.
func (c *Client) Profile(ctx context.Context, handle string) (*twitterbot.Profile, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, twitterbot.NewError(twitterbot.KindTerminal, "profile", 0, fmt.Errorf("missing handle"))
	}
	ep, err := endpoint("UserByScreenName")
	if err != nil {
		return nil, twitterbot.NewError(twitterbot.KindTerminal, "profile", 0, err)
	}
	u, err := ep.QueryURL(map[string]any{"screen_name": handle}, map[string]any{"withAuxiliaryUserLabels": false})
	if err != nil {
		return nil, twitterbot.NewError(twitterbot.KindTerminal, "profile", 0, err)
	}
	body, err := c.get(ctx, ep.Name, u)
	if err != nil {
		return nil, err
	}
	p, err := parseUserByScreenName(body)
	if err != nil {
		return nil, twitterbot.NewError(twitterbot.KindTerminal, "profile", 404, err)
	}
	return p, nil
}

// Mentions searches the latest tweets addressed to the primary account and
// returns those created after since.
func (c *Client) Mentions(ctx context.Context, since time.Time, limit int) ([]twitterbot.InboundEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	ep, err := endpoint("SearchTimeline")
	if err != nil {
		return nil, twitterbot.NewError(twitterbot.KindTerminal, "mentions", 0, err)
	}
	u, err := ep.QueryURL(map[string]any{
		"rawQuery":    "@" + c.primary.Username,
		"count":       limit,
		"querySource": "typed_query",
		"product":     "Latest",
	}, nil)
	if err != nil {
		return nil, twitterbot.NewError(twitterbot.KindTerminal, "mentions", 0, err)
	}
	body, err := c.get(ctx, ep.Name, u)
	if err != nil {
		return nil, err
	}
	events, err := parseSearchTimeline(body)
	if err != nil {
		return nil, twitterbot.NewError(twitterbot.KindTransient, "mentions", 0, err)
	}
	return filterSince(events, since, limit), nil
}

func filterSince(events []twitterbot.InboundEvent, since time.Time, limit int) []twitterbot.InboundEvent {
	var out []twitterbot.InboundEvent
	for _, ev := range events {
		if ev.CreatedAt.After(since) {
			out = append(out, ev)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
