package autoresponse

import (
	"context"
	"strconv"
	"strings"
	"time"

	"sellerbot/internal/eventbus"
	logx "sellerbot/pkg/logx"
)

const (
	typingDelay = time.Second
	reviewDelay = 2 * time.Second
)

// ChatAccount is the part of the account facade the message engine needs.
type ChatAccount interface {
	SendTyping(ctx context.Context, chatID string) error
	SendMessage(ctx context.Context, chatID, text string) error
}

// ReviewAccount is the part of the account facade the review engine needs.
type ReviewAccount interface {
	ReplyToReview(ctx context.Context, reviewID, text string) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Option func(*options)

type options struct {
	sleep SleepFunc
	bus   eventbus.Bus
	log   logx.Logger
}

func WithSleep(fn SleepFunc) Option { return func(o *options) { o.sleep = fn } }

func WithBus(b eventbus.Bus) Option { return func(o *options) { o.bus = b } }

func WithLogger(l logx.Logger) Option { return func(o *options) { o.log = l } }

func buildOptions(opts []Option) options {
	o := options{sleep: sleepCtx, bus: eventbus.Nop{}}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Engine answers inbound chat messages with a greeting or a keyword reply.
type Engine struct {
	store   *Store
	account ChatAccount
	opts    options
	log     logx.Logger
}

func NewEngine(store *Store, account ChatAccount, opts ...Option) *Engine {
	o := buildOptions(opts)
	return &Engine{store: store, account: account, opts: o, log: o.log.With(logx.String("comp", "autoresponse"))}
}

// Decide picks the reply for a message, if any. A first-contact greeting is
// recorded for chatID before anything is sent, so a failed send is not
// retried with a second greeting.
func (e *Engine) Decide(chatID, content string) (string, bool) {
	st := e.store.Load()
	if !st.Enabled {
		return "", false
	}

	var reply string
	if st.GreetingEnabled && !st.Responded(chatID) {
		reply = st.GreetingMessage
		if st.GreetingOnlyFirst {
			if err := e.store.MarkResponded(chatID); err != nil {
				e.log.Warn("could not record greeted chat", logx.String("chat", chatID), logx.Err(err))
			}
		}
	}
	if reply == "" {
		reply, _ = matchKeyword(st.Keywords, content)
	}
	return reply, reply != ""
}

// matchKeyword returns the reply of the first trigger, in configured order,
// contained case-insensitively in content.
func matchKeyword(keywords []Keyword, content string) (string, bool) {
	lc := strings.ToLower(content)
	for _, kw := range keywords {
		t := strings.ToLower(kw.Trigger)
		if t == "" {
			continue
		}
		if strings.Contains(lc, t) {
			return kw.Reply, true
		}
	}
	return "", false
}

// OnMessage decides and, when there is a reply, shows typing, waits a second
// and sends it. It returns the candidate reply and whether it was delivered.
func (e *Engine) OnMessage(ctx context.Context, chatID, author, content string) (string, bool) {
	reply, ok := e.Decide(chatID, content)
	if !ok {
		return "", false
	}
	if err := e.account.SendTyping(ctx, chatID); err != nil {
		e.log.Debug("typing signal failed", logx.String("chat", chatID), logx.Err(err))
	}
	if err := e.opts.sleep(ctx, typingDelay); err != nil {
		return reply, false
	}
	if err := e.account.SendMessage(ctx, chatID, reply); err != nil {
		e.log.Warn("auto-response not delivered", logx.String("chat", chatID), logx.String("author", author), logx.Err(err))
		return reply, false
	}
	e.log.Info("auto-response sent", logx.String("chat", chatID), logx.String("author", author), logx.String("reply", preview(reply, 30)))
	e.opts.bus.Publish(eventbus.Event{Type: eventbus.TopicAutoReply, Kind: "message"})
	return reply, true
}

// ReviewEngine answers reviews with a rating-indexed template.
type ReviewEngine struct {
	store   *Store
	account ReviewAccount
	opts    options
	log     logx.Logger
}

func NewReviewEngine(store *Store, account ReviewAccount, opts ...Option) *ReviewEngine {
	o := buildOptions(opts)
	return &ReviewEngine{store: store, account: account, opts: o, log: o.log.With(logx.String("comp", "review-reply"))}
}

// ClampRating forces rating into [1,5].
func ClampRating(rating int) int {
	if rating < 1 {
		return 1
	}
	if rating > 5 {
		return 5
	}
	return rating
}

// Render substitutes {author}, {rating} and {stars} literally.
func Render(template, author string, rating int) string {
	r := strings.NewReplacer(
		"{author}", author,
		"{rating}", strconv.Itoa(rating),
		"{stars}", strings.Repeat("⭐", rating),
	)
	return r.Replace(template)
}

// Decide returns the rendered reply for a review, if any.
func (e *ReviewEngine) Decide(author string, rating int) (string, bool) {
	st := e.store.Load()
	if !st.ReviewAutoReplyEnabled {
		return "", false
	}
	rating = ClampRating(rating)
	tpl := st.ReviewReplies[strconv.Itoa(rating)]
	if tpl == "" {
		tpl = st.ReviewDefaultReply
	}
	if tpl == "" {
		e.log.Debug("no review template", logx.Int("rating", rating))
		return "", false
	}
	return Render(tpl, author, rating), true
}

// OnReview decides, waits two seconds and replies. It returns the candidate
// reply and whether it was delivered. comment is only logged.
func (e *ReviewEngine) OnReview(ctx context.Context, reviewID, author string, rating int, comment string) (string, bool) {
	reply, ok := e.Decide(author, rating)
	if !ok {
		return "", false
	}
	if err := e.opts.sleep(ctx, reviewDelay); err != nil {
		return reply, false
	}
	if err := e.account.ReplyToReview(ctx, reviewID, reply); err != nil {
		e.log.Warn("review reply not delivered", logx.String("review", reviewID), logx.Err(err))
		return reply, false
	}
	e.log.Info("review reply sent",
		logx.String("review", reviewID),
		logx.String("author", author),
		logx.Int("rating", ClampRating(rating)),
		logx.Int("comment_len", len(comment)),
	)
	e.opts.bus.Publish(eventbus.Event{Type: eventbus.TopicAutoReply, Kind: "review"})
	return reply, true
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
