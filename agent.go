package twitterbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Ledger remembers which inbound events were already answered, so a restart
// does not reply twice.
type Ledger interface {
	Handled(ctx context.Context, eventID string) (bool, error)
	MarkHandled(ctx context.Context, eventID, responseID string) error
}

// Agent turns inbound events into replies: it asks the Responder for text,
// validates it and submits it through the Caller.
type Agent struct {
	Platform  Platform
	Responder Responder
	Caller    *Caller
	Rules     Rules
	// Ledger is optional.
	Ledger Ledger
	// Handle is the bot's own screen name. Events it authored are ignored.
	Handle string
	// LikeMentions also likes every event that was replied to.
	LikeMentions bool
	// MinInterval is the minimum spacing between outbound posts.
	MinInterval time.Duration
	Clock       clockwork.Clock

	mu       sync.Mutex
	nextPost time.Time
}

func (a *Agent) clock() clockwork.Clock {
	if a.Clock == nil {
		return clockwork.NewRealClock()
	}
	return a.Clock
}

func (a *Agent) caller() *Caller {
	if a.Caller == nil {
		return NewCaller(0, 0)
	}
	return a.Caller
}

// HandleEvent generates and posts a reply to ev. It is a HandlerFunc.
func (a *Agent) HandleEvent(ctx context.Context, ev InboundEvent) error {
	log := slog.With(slog.String("trace", uuid.NewString()), slog.String("event", ev.ID))

	if a.Handle != "" && strings.EqualFold(strings.TrimPrefix(ev.AuthorHandle, "@"), strings.TrimPrefix(a.Handle, "@")) {
		log.Debug("agent: skipping own post")
		return nil
	}
	if a.Ledger != nil {
		done, err := a.Ledger.Handled(ctx, ev.ID)
		if err != nil {
			log.Warn("agent: ledger lookup failed", slog.Any("error", err))
		} else if done {
			log.Debug("agent: already handled")
			return nil
		}
	}

	raw, err := a.Responder.Respond(ctx, Prompt{
		Content:  ev.Text,
		Platform: PlatformName,
		Author:   ev.AuthorHandle,
	})
	if err != nil {
		return fmt.Errorf("generate response for %s: %w", ev.ID, err)
	}
	text := TrimToLimit(CleanResponse(raw), a.maxLength())
	if text == "" {
		log.Info("agent: responder returned nothing, not replying")
		return nil
	}

	res, err := a.Reply(ctx, ev.ID, text)
	if err != nil {
		return err
	}
	log.Info("agent: replied", slog.String("reply", res.ID), slog.String("author", ev.AuthorHandle))

	if a.LikeMentions {
		if err := a.caller().Do(ctx, "like", func(ctx context.Context) error {
			return a.Platform.Like(ctx, ev.ID)
		}); err != nil {
			log.Warn("agent: like failed", slog.Any("error", err))
		}
	}

	if a.Ledger != nil {
		if err := a.Ledger.MarkHandled(ctx, ev.ID, res.ID); err != nil {
			log.Warn("agent: ledger write failed", slog.Any("error", err))
		}
	}
	return nil
}

// Post validates text and publishes it as a top-level post.
func (a *Agent) Post(ctx context.Context, text string) (PostResult, error) {
	msg := OutboundMessage{Text: text}
	if err := msg.Validate(a.Rules); err != nil {
		return PostResult{}, err
	}
	if err := a.throttle(ctx); err != nil {
		return PostResult{}, err
	}
	return Call(ctx, a.caller(), "post", func(ctx context.Context) (PostResult, error) {
		return a.Platform.Post(ctx, msg)
	})
}

// Reply validates text and publishes it as a reply to tweetID.
func (a *Agent) Reply(ctx context.Context, tweetID, text string) (PostResult, error) {
	msg := OutboundMessage{Text: text, ReplyTo: tweetID}
	if err := msg.Validate(a.Rules); err != nil {
		return PostResult{}, err
	}
	if err := a.throttle(ctx); err != nil {
		return PostResult{}, err
	}
	return Call(ctx, a.caller(), "reply", func(ctx context.Context) (PostResult, error) {
		return a.Platform.Reply(ctx, tweetID, msg)
	})
}

// throttle reserves the next outbound slot and waits for it.
func (a *Agent) throttle(ctx context.Context) error {
	if a.MinInterval <= 0 {
		return nil
	}
	now := a.clock().Now()
	a.mu.Lock()
	slot := a.nextPost
	if slot.Before(now) {
		slot = now
	}
	a.nextPost = slot.Add(a.MinInterval)
	a.mu.Unlock()

	if wait := slot.Sub(now); wait > 0 {
		slog.Debug("agent: waiting for post interval", slog.Duration("wait", wait))
		return sleep(ctx, a.clock(), wait)
	}
	return nil
}

func (a *Agent) maxLength() int {
	if a.Rules.MaxLength > 0 {
		return a.Rules.MaxLength
	}
	return MaxTweetLength
}

// CleanResponse strips whitespace and wrapping quotes that models tend to add.
func CleanResponse(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	return s
}
