package twitterbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adhocore/gronx"
	"github.com/jonboulle/clockwork"
)

const postInstruction = "Write a new standalone post about this topic."

// Scheduler publishes generated posts on a cron schedule, cycling through Topics.
type Scheduler struct {
	// Expr is a cron expression, e.g. "0 */4 * * *".
	Expr   string
	Topics []string
	Agent  *Agent
	Clock  clockwork.Clock
}

// Validate checks the cron expression and collaborators.
func (s *Scheduler) Validate() error {
	g := gronx.New()
	if !g.IsValid(s.Expr) {
		return fmt.Errorf("invalid post schedule %q", s.Expr)
	}
	if s.Agent == nil || s.Agent.Responder == nil || s.Agent.Platform == nil {
		return errors.New("scheduler needs an agent with a platform and a responder")
	}
	return nil
}

// Run posts at every tick of Expr until ctx is done. A failed post is logged
// and the schedule continues.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Validate(); err != nil {
		return err
	}
	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	for n := 0; ; n++ {
		now := clock.Now()
		next, err := gronx.NextTickAfter(s.Expr, now, false)
		if err != nil {
			return fmt.Errorf("next tick for %q: %w", s.Expr, err)
		}
		slog.Info("scheduler: next post", slog.Time("at", next))
		if err := sleep(ctx, clock, next.Sub(now)); err != nil {
			return nil
		}
		if res, err := s.PostOnce(ctx, n); err != nil {
			slog.Warn("scheduler: post failed", slog.Any("error", err))
		} else if res.ID != "" {
			slog.Info("scheduler: posted", slog.String("id", res.ID))
		}
	}
}

// PostOnce generates and publishes the n-th scheduled post.
func (s *Scheduler) PostOnce(ctx context.Context, n int) (PostResult, error) {
	topic := ""
	if len(s.Topics) > 0 {
		topic = s.Topics[n%len(s.Topics)]
	}
	raw, err := s.Agent.Responder.Respond(ctx, Prompt{
		Content:     topic,
		Platform:    PlatformName,
		Instruction: postInstruction,
	})
	if err != nil {
		return PostResult{}, fmt.Errorf("generate post: %w", err)
	}
	text := TrimToLimit(CleanResponse(raw), s.Agent.maxLength())
	if text == "" {
		slog.Info("scheduler: responder returned nothing, skipping", slog.String("topic", topic))
		return PostResult{}, nil
	}
	return s.Agent.Post(ctx, text)
}
