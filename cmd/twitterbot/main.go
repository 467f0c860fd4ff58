package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
	"github.com/anatolykoptev/go-twitterbot/config"
	"github.com/anatolykoptev/go-twitterbot/oauth"
	"github.com/anatolykoptev/go-twitterbot/responder"
	"github.com/anatolykoptev/go-twitterbot/session"
	"github.com/anatolykoptev/go-twitterbot/store"
)

const (
	mentionsCursor = "mentions"
	// ledgerRetention bounds how long answered event IDs are remembered.
	ledgerRetention = 30 * 24 * time.Hour
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "twitterbot",
		Short:         "Autonomous Twitter/X agent",
		Long:          "twitterbot answers mentions and publishes scheduled posts through a session or OAuth client.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (environment variables override it)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	root.AddCommand(runCmd())
	root.AddCommand(postCmd())
	root.AddCommand(replyCmd())
	root.AddCommand(actionCmd("like", "Like a post", func(p twitterbot.Platform) func(context.Context, string) error { return p.Like }))
	root.AddCommand(actionCmd("repost", "Repost a post", func(p twitterbot.Platform) func(context.Context, string) error { return p.Repost }))
	root.AddCommand(profileCmd())
	root.AddCommand(validateCmd())

	if err := root.Execute(); err != nil {
		slog.Error("twitterbot: fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// backend is the connected platform client and what it can do.
type backend struct {
	platform twitterbot.Platform
	mentions twitterbot.MentionSource
	// stream is nil when the client cannot stream.
	stream twitterbot.StreamSource
	handle string
	// ensureRules installs stream rules; nil without streaming.
	ensureRules func(ctx context.Context) error
}

func connect(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Mode {
	case config.ModeOAuth:
		c, err := oauth.New(ctx, oauth.Config{
			APIKey:       cfg.OAuth.APIKey,
			APISecret:    cfg.OAuth.APISecret,
			AccessToken:  cfg.OAuth.AccessToken,
			AccessSecret: cfg.OAuth.AccessSecret,
			BearerToken:  cfg.OAuth.BearerToken,
			BaseURL:      cfg.OAuth.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		b := &backend{platform: c, mentions: c, stream: c}
		if me, err := c.Me(ctx); err == nil {
			b.handle = me.Handle
			b.ensureRules = func(ctx context.Context) error {
				return c.EnsureRules(ctx, oauth.Rule{Value: "@" + me.Handle + " -is:retweet", Tag: "mentions"})
			}
		} else {
			slog.Warn("twitterbot: cannot resolve own account", slog.Any("error", err))
		}
		return b, nil

	default:
		c, err := session.New(ctx, session.Config{
			Username:     cfg.Session.Username,
			Password:     cfg.Session.Password,
			Email:        cfg.Session.Email,
			TOTPSecret:   cfg.Session.TOTPSecret,
			Proxy:        cfg.Session.Proxy,
			SessionDir:   cfg.Session.Dir,
			ReadAccounts: session.ParseAccounts(cfg.Session.ReadAccounts),
			MetricsHook: func(endpoint string, success, rateLimited bool) {
				slog.Debug("twitterbot: api call", slog.String("endpoint", endpoint),
					slog.Bool("success", success), slog.Bool("rate_limited", rateLimited))
			},
		})
		if err != nil {
			return nil, err
		}
		return &backend{platform: c, mentions: c, handle: c.Username()}, nil
	}
}

func newCaller(cfg *config.Config) *twitterbot.Caller {
	c := twitterbot.NewCaller(cfg.Retry.Limit, cfg.Retry.Delay)
	c.OnAttempt = func(name string, attempt int, err error) {
		if err != nil {
			slog.Debug("twitterbot: attempt failed", slog.String("op", name), slog.Int("attempt", attempt), slog.Any("error", err))
		}
	}
	return c
}

func newAgent(cfg *config.Config, b *backend, resp twitterbot.Responder, ledger twitterbot.Ledger) *twitterbot.Agent {
	return &twitterbot.Agent{
		Platform:     b.platform,
		Responder:    resp,
		Caller:       newCaller(cfg),
		Rules:        cfg.Rules(),
		Ledger:       ledger,
		Handle:       b.handle,
		LikeMentions: cfg.Monitor.LikeMentions,
		MinInterval:  cfg.Content.MinInterval,
	}
}

// setup loads config and connects; every failure here aborts the command.
func setup(ctx context.Context) (*config.Config, *backend, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	b, err := connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return cfg, b, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Answer mentions and publish scheduled posts until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			cfg, b, err := setup(ctx)
			if err != nil {
				return err
			}
			resp, err := responder.New(responder.Config{
				Provider:     cfg.AI.Provider,
				APIKey:       cfg.AI.APIKey,
				Model:        cfg.AI.Model,
				BaseURL:      cfg.AI.BaseURL,
				SystemPrompt: cfg.AI.SystemPrompt,
			})
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.StorePath)
			if err != nil {
				return err
			}
			defer st.Close()
			if n, err := st.Prune(ctx, time.Now().Add(-ledgerRetention)); err != nil {
				slog.Warn("twitterbot: ledger prune failed", slog.Any("error", err))
			} else if n > 0 {
				slog.Info("twitterbot: pruned ledger", slog.Int64("rows", n))
			}

			agent := newAgent(cfg, b, resp, st)
			since, err := st.LoadCursor(ctx, mentionsCursor)
			if err != nil {
				return err
			}

			mon := twitterbot.NewMonitor(twitterbot.MonitorConfig{
				Fetch:        b.mentions.Mentions,
				Handle:       agent.HandleEvent,
				Interval:     cfg.Monitor.PollInterval,
				BatchSize:    cfg.Monitor.BatchSize,
				Since:        since,
				RestartDelay: cfg.Monitor.RestartDelay,
				MaxRestarts:  cfg.Monitor.MaxRestarts,
				OnCursor: func(t time.Time) {
					if err := st.SaveCursor(context.Background(), mentionsCursor, t); err != nil {
						slog.Warn("twitterbot: save cursor failed", slog.Any("error", err))
					}
				},
			})

			streaming := cfg.Monitor.Stream && b.stream != nil
			if streaming {
				if b.ensureRules != nil {
					if err := b.ensureRules(ctx); err != nil {
						return fmt.Errorf("stream rules: %w", err)
					}
				}
				err = mon.StartStream(ctx, b.stream)
			} else {
				err = mon.Start(ctx)
			}
			if err != nil {
				return err
			}
			defer func() {
				mon.Stop()
				mon.Wait()
			}()

			if cfg.Posts.Schedule != "" {
				sched := &twitterbot.Scheduler{Expr: cfg.Posts.Schedule, Topics: cfg.Posts.Topics, Agent: agent}
				go func() {
					if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
						slog.Error("twitterbot: scheduler stopped", slog.Any("error", err))
					}
				}()
			}

			slog.Info("twitterbot: running", slog.String("mode", cfg.Mode), slog.String("handle", b.handle),
				slog.String("state", mon.State().String()))
			for {
				select {
				case <-ctx.Done():
					slog.Info("twitterbot: shutting down")
					return nil
				case <-mon.Done():
					if ctx.Err() != nil {
						return nil
					}
					if !streaming {
						return errors.New("mention monitor stopped")
					}
					// Restarts are exhausted; keep answering mentions by polling.
					slog.Warn("twitterbot: stream gave up, falling back to polling",
						slog.Duration("interval", cfg.Monitor.PollInterval))
					streaming = false
					if err := mon.Start(ctx); err != nil {
						return err
					}
				}
			}
		},
	}
}

func postCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post <text>",
		Short: "Publish a post",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			cfg, b, err := setup(ctx)
			if err != nil {
				return err
			}
			res, err := newAgent(cfg, b, nil, nil).Post(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.ID)
			return nil
		},
	}
}

func replyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reply <tweet-id> <text>",
		Short: "Reply to a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			cfg, b, err := setup(ctx)
			if err != nil {
				return err
			}
			res, err := newAgent(cfg, b, nil, nil).Reply(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.ID)
			return nil
		},
	}
}

// actionCmd builds a command that applies one tweet action to an ID.
func actionCmd(name, short string, action func(twitterbot.Platform) func(context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <tweet-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			cfg, b, err := setup(ctx)
			if err != nil {
				return err
			}
			do := action(b.platform)
			if err := newCaller(cfg).Do(ctx, name, func(ctx context.Context) error {
				return do(ctx, args[0])
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: ok\n", name, args[0])
			return nil
		},
	}
}

func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile <handle>",
		Short: "Show a public profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			cfg, b, err := setup(ctx)
			if err != nil {
				return err
			}
			p, err := twitterbot.Call(ctx, newCaller(cfg), "profile", func(ctx context.Context) (*twitterbot.Profile, error) {
				return b.platform.Profile(ctx, args[0])
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "@%s (%s) id=%s\n", p.Handle, p.DisplayName, p.ID)
			fmt.Fprintf(out, "followers=%d following=%d posts=%d verified=%t\n", p.Followers, p.Following, p.TweetCount, p.IsVerified)
			if p.Bio != "" {
				fmt.Fprintln(out, p.Bio)
			}
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	var rules twitterbot.Rules
	cmd := &cobra.Command{
		Use:   "validate <text>",
		Short: "Check text against the content rules without posting",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if err := twitterbot.Validate(text, rules); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d characters, %d emojis, %d hashtags\n",
				len([]rune(text)), twitterbot.CountEmojis(text), twitterbot.CountHashtags(text))
			return nil
		},
	}
	cmd.Flags().IntVar(&rules.MaxLength, "max-length", twitterbot.MaxTweetLength, "character limit")
	cmd.Flags().IntVar(&rules.MaxEmojis, "max-emojis", 0, "emoji limit, negative disables")
	cmd.Flags().IntVar(&rules.MaxHashtags, "max-hashtags", 0, "hashtag limit, negative disables")
	return cmd
}
