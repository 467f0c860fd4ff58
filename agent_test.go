package twitterbot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	mu      sync.Mutex
	posts   []OutboundMessage
	likes   []string
	reposts []string
	// fail, when set, is consulted before every Post and Reply.
	fail func(n int) error
	n    int
}

func (p *fakePlatform) submit(msg OutboundMessage) (PostResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	if p.fail != nil {
		if err := p.fail(p.n); err != nil {
			return PostResult{}, err
		}
	}
	p.posts = append(p.posts, msg)
	return PostResult{ID: "r" + string(rune('0'+len(p.posts))), AuthorID: "bot-id"}, nil
}

func (p *fakePlatform) Post(_ context.Context, msg OutboundMessage) (PostResult, error) {
	return p.submit(msg)
}

func (p *fakePlatform) Reply(_ context.Context, inReplyTo string, msg OutboundMessage) (PostResult, error) {
	msg.ReplyTo = inReplyTo
	return p.submit(msg)
}

func (p *fakePlatform) Like(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.likes = append(p.likes, id)
	return nil
}

func (p *fakePlatform) Repost(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reposts = append(p.reposts, id)
	return nil
}

func (p *fakePlatform) Profile(_ context.Context, handle string) (*Profile, error) {
	return &Profile{Handle: handle}, nil
}

func (p *fakePlatform) sent() []OutboundMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]OutboundMessage(nil), p.posts...)
}

type memLedger struct {
	mu   sync.Mutex
	done map[string]string
}

func (l *memLedger) Handled(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.done[id]
	return ok, nil
}

func (l *memLedger) MarkHandled(_ context.Context, id, resp string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		l.done = map[string]string{}
	}
	l.done[id] = resp
	return nil
}

func replyWith(text string, prompts *[]Prompt) Responder {
	return ResponderFunc(func(_ context.Context, p Prompt) (string, error) {
		if prompts != nil {
			*prompts = append(*prompts, p)
		}
		return text, nil
	})
}

func newTestAgent(p *fakePlatform, r Responder) *Agent {
	return &Agent{
		Platform:  p,
		Responder: r,
		Caller:    NewCaller(3, time.Millisecond),
		Rules:     DefaultRules(),
		Ledger:    &memLedger{},
		Handle:    "bot",
	}
}

func TestHandleEvent_Replies(t *testing.T) {
	p := &fakePlatform{}
	var prompts []Prompt
	a := newTestAgent(p, replyWith(`"Thanks for asking!"`, &prompts))

	ev := event("100", t0)
	ev.AuthorHandle = "alice"
	ev.Text = "@bot what's new?"
	require.NoError(t, a.HandleEvent(context.Background(), ev))

	sent := p.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Thanks for asking!", sent[0].Text)
	assert.Equal(t, "100", sent[0].ReplyTo)

	require.Len(t, prompts, 1)
	assert.Equal(t, Prompt{Content: "@bot what's new?", Platform: PlatformName, Author: "alice"}, prompts[0])

	done, err := a.Ledger.Handled(context.Background(), "100")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "r1", a.Ledger.(*memLedger).done["100"])
}

func TestHandleEvent_AlreadyHandled(t *testing.T) {
	p := &fakePlatform{}
	var prompts []Prompt
	a := newTestAgent(p, replyWith("hello", &prompts))
	require.NoError(t, a.Ledger.MarkHandled(context.Background(), "7", "r0"))

	require.NoError(t, a.HandleEvent(context.Background(), event("7", t0)))
	assert.Empty(t, prompts)
	assert.Empty(t, p.sent())
}

func TestHandleEvent_SkipsOwnPosts(t *testing.T) {
	p := &fakePlatform{}
	var prompts []Prompt
	a := newTestAgent(p, replyWith("hello", &prompts))

	ev := event("8", t0)
	ev.AuthorHandle = "@Bot"
	require.NoError(t, a.HandleEvent(context.Background(), ev))
	assert.Empty(t, prompts)
	assert.Empty(t, p.sent())
}

func TestHandleEvent_LikesMentions(t *testing.T) {
	p := &fakePlatform{}
	a := newTestAgent(p, replyWith("hello", nil))
	a.LikeMentions = true

	require.NoError(t, a.HandleEvent(context.Background(), event("9", t0)))
	assert.Equal(t, []string{"9"}, p.likes)
}

func TestHandleEvent_InvalidResponseNotSent(t *testing.T) {
	p := &fakePlatform{}
	a := newTestAgent(p, replyWith("love it 😀", nil))

	err := a.HandleEvent(context.Background(), event("10", t0))
	assert.ErrorIs(t, err, ErrTooManyEmojis)
	assert.Empty(t, p.sent())
	done, _ := a.Ledger.Handled(context.Background(), "10")
	assert.False(t, done)
}

func TestHandleEvent_TrimsLongResponse(t *testing.T) {
	p := &fakePlatform{}
	a := newTestAgent(p, replyWith(strings.Repeat("word ", 100), nil))

	require.NoError(t, a.HandleEvent(context.Background(), event("11", t0)))
	sent := p.sent()
	require.Len(t, sent, 1)
	assert.LessOrEqual(t, len([]rune(sent[0].Text)), MaxTweetLength)
}

func TestHandleEvent_EmptyResponse(t *testing.T) {
	p := &fakePlatform{}
	a := newTestAgent(p, replyWith(`  ""  `, nil))
	require.NoError(t, a.HandleEvent(context.Background(), event("12", t0)))
	assert.Empty(t, p.sent())
}

func TestHandleEvent_ResponderError(t *testing.T) {
	p := &fakePlatform{}
	a := newTestAgent(p, ResponderFunc(func(context.Context, Prompt) (string, error) {
		return "", errors.New("model overloaded")
	}))
	err := a.HandleEvent(context.Background(), event("13", t0))
	assert.ErrorContains(t, err, "model overloaded")
	assert.Empty(t, p.sent())
}

func TestReply_RetriesTransientFailure(t *testing.T) {
	p := &fakePlatform{fail: func(n int) error {
		if n == 1 {
			return NewError(KindTransient, "CreateTweet", 503, nil)
		}
		return nil
	}}
	a := newTestAgent(p, nil)

	res, err := a.Reply(context.Background(), "55", "on it")
	require.NoError(t, err)
	assert.Equal(t, "r1", res.ID)
	assert.Equal(t, 2, p.n)
}

func TestPost_ValidationSkipsPlatform(t *testing.T) {
	p := &fakePlatform{}
	a := newTestAgent(p, nil)

	_, err := a.Post(context.Background(), strings.Repeat("x", 281))
	assert.ErrorIs(t, err, ErrContentTooLong)
	_, err = a.Post(context.Background(), "#golang")
	assert.ErrorIs(t, err, ErrTooManyHashtags)
	assert.Zero(t, p.n)
}

func TestPost_MinInterval(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	p := &fakePlatform{}
	a := newTestAgent(p, nil)
	a.Clock = clock
	a.MinInterval = time.Minute

	_, err := a.Post(context.Background(), "first")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := a.Post(context.Background(), "second")
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Len(t, p.sent(), 1, "second post waits for the interval")
	clock.Advance(time.Minute)

	require.NoError(t, await(t, done))
	assert.Len(t, p.sent(), 2)
}
