// Package twitterbot is an autonomous Twitter/X agent: it watches for mentions,
// answers them with generated text and publishes scheduled posts. Backing
// clients live in the session and oauth subpackages; both satisfy Platform.
package twitterbot

import (
	"context"
	"time"
)

// PlatformName is passed to the responder so prompts can be platform-aware.
const PlatformName = "twitter"

// OutboundMessage is a post or reply about to be submitted.
type OutboundMessage struct {
	Text string
	// ReplyTo is the tweet ID being answered, empty for a top-level post.
	ReplyTo  string
	MediaIDs []string
}

// Validate checks the message text against rules.
func (m OutboundMessage) Validate(rules Rules) error {
	return Validate(m.Text, rules)
}

// InboundEvent is a mention or other item picked up by the monitor.
type InboundEvent struct {
	ID             string
	AuthorID       string
	AuthorHandle   string
	Text           string
	CreatedAt      time.Time
	ConversationID string
}

// PostResult is the success payload of Post and Reply.
type PostResult struct {
	ID       string
	AuthorID string
}

// Profile is a public account profile.
type Profile struct {
	ID          string
	Handle      string
	DisplayName string
	Bio         string
	Followers   int
	Following   int
	TweetCount  int
	CreatedAt   time.Time
	IsVerified  bool
}

// Platform is the uniform surface over a backing client.
// Implementations return *Error for every failure.
type Platform interface {
	Post(ctx context.Context, msg OutboundMessage) (PostResult, error)
	Reply(ctx context.Context, inReplyTo string, msg OutboundMessage) (PostResult, error)
	Like(ctx context.Context, tweetID string) error
	Repost(ctx context.Context, tweetID string) error
	Profile(ctx context.Context, handle string) (*Profile, error)
}

// MentionSource returns up to limit recent mentions created after since.
type MentionSource interface {
	Mentions(ctx context.Context, since time.Time, limit int) ([]InboundEvent, error)
}

// StreamSource delivers events as they arrive until ctx is done or the stream fails.
type StreamSource interface {
	Stream(ctx context.Context, emit func(InboundEvent)) error
}

// Prompt is the input to a Responder.
type Prompt struct {
	Content  string
	Platform string
	Author   string
	// Instruction overrides the default "reply to this" instruction, used for scheduled posts.
	Instruction string
}

// Responder produces response text for inbound content.
type Responder interface {
	Respond(ctx context.Context, p Prompt) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, p Prompt) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }
