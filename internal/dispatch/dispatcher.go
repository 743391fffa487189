// Package dispatch turns marketplace events into operator notifications,
// auto-responses and auto-deliveries, exactly once per event identity.
package dispatch

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"sellerbot/internal/dedup"
	"sellerbot/internal/eventbus"
	"sellerbot/internal/marketplace"
	"sellerbot/internal/notifier"
	"sellerbot/internal/stock"
	logx "sellerbot/pkg/logx"
)

const DefaultWarmup = 5 * time.Second

// MessageResponder answers inbound chat messages.
type MessageResponder interface {
	OnMessage(ctx context.Context, chatID, author, content string) (string, bool)
}

// ReviewResponder answers reviews.
type ReviewResponder interface {
	OnReview(ctx context.Context, reviewID, author string, rating int, comment string) (string, bool)
}

// OrderDeliverer hands stock to the buyer of a new order.
type OrderDeliverer interface {
	Deliver(ctx context.Context, o marketplace.Order) stock.Outcome
}

// Subscriber receives every event that passed dedup and warm-up.
type Subscriber interface {
	HandleEvent(ctx context.Context, ev marketplace.Event)
}

// Policy holds the hot-reloadable switches.
type Policy struct {
	NotifyMessages bool
	NotifyOrders   bool
	NotifyReviews  bool
	Delivery       bool
	Blacklist      []string
}

// DefaultPolicy notifies every kind and delivers nothing.
func DefaultPolicy() Policy {
	return Policy{NotifyMessages: true, NotifyOrders: true, NotifyReviews: true}
}

func (p Policy) notify(kind marketplace.Kind) bool {
	switch kind {
	case marketplace.KindMessage:
		return p.NotifyMessages
	case marketplace.KindOrder:
		return p.NotifyOrders
	case marketplace.KindReview:
		return p.NotifyReviews
	}
	return false
}

func (p Policy) blacklisted(username string) bool {
	u := strings.TrimSpace(username)
	if u == "" {
		return false
	}
	for _, b := range p.Blacklist {
		if strings.EqualFold(strings.TrimSpace(b), u) {
			return true
		}
	}
	return false
}

// Deps are the collaborators of a Dispatcher. Seen and Sink are required;
// the rest are optional.
type Deps struct {
	Seen      *dedup.Store
	Sink      notifier.Sink
	Account   marketplace.Account
	Responder MessageResponder
	Reviewer  ReviewResponder
	Deliverer OrderDeliverer
	Plugins   Subscriber
	Bus       eventbus.Bus
	Log       logx.Logger
}

type Option func(*Dispatcher)

func WithWarmup(d time.Duration) Option { return func(x *Dispatcher) { x.warmup = d } }

func WithClock(now func() time.Time) Option { return func(x *Dispatcher) { x.now = now } }

func WithPolicy(p Policy) Option { return func(x *Dispatcher) { x.policy = p } }

// Dispatcher processes events one at a time. Handle may be called from
// several goroutines, but Run is the intended single consumer.
type Dispatcher struct {
	deps   Deps
	log    logx.Logger
	now    func() time.Time
	warmup time.Duration
	start  time.Time

	pmu    sync.RWMutex
	policy Policy

	// hmu serializes Handle so a key is checked and marked atomically.
	hmu   sync.Mutex
	stats Stats
}

func New(deps Deps, opts ...Option) *Dispatcher {
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop{}
	}
	d := &Dispatcher{
		deps:   deps,
		log:    deps.Log.With(logx.String("comp", "dispatch")),
		now:    time.Now,
		warmup: DefaultWarmup,
		policy: DefaultPolicy(),
	}
	for _, o := range opts {
		o(d)
	}
	d.start = d.now()
	d.stats.started = d.start
	return d
}

// Apply swaps the policy for subsequent events.
func (d *Dispatcher) Apply(p Policy) {
	p.Blacklist = append([]string(nil), p.Blacklist...)
	d.pmu.Lock()
	d.policy = p
	d.pmu.Unlock()
}

func (d *Dispatcher) currentPolicy() Policy {
	d.pmu.RLock()
	defer d.pmu.RUnlock()
	return d.policy
}

func (d *Dispatcher) Stats() StatsSnapshot { return d.stats.snapshot(d.now()) }

// Started reports when the warm-up window began.
func (d *Dispatcher) Started() time.Time { return d.start }

// Run drains in until it is closed or ctx is cancelled. An event already
// being handled finishes even if ctx is cancelled meanwhile.
func (d *Dispatcher) Run(ctx context.Context, in <-chan marketplace.Event) error {
	d.log.Info("dispatcher started", logx.Duration("warmup", d.warmup))
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped")
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				d.log.Info("event source closed")
				return nil
			}
			d.Handle(context.WithoutCancel(ctx), ev)
		}
	}
}

// Handle processes one event. It never fails outward: errors and panics are
// logged and the event counts as not notified.
func (d *Dispatcher) Handle(ctx context.Context, ev marketplace.Event) {
	d.hmu.Lock()
	defer d.hmu.Unlock()

	log := d.log.With(logx.String("trace", ev.Trace), logx.String("kind", string(ev.Kind)))
	defer func() {
		if r := recover(); r != nil {
			log.Error("event handler panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()

	kind, ok := marketplace.NormalizeKind(string(ev.Kind))
	if !ok {
		log.Debug("ignoring unknown event kind")
		return
	}
	ev.Kind = kind

	key, err := marketplace.DedupKey(ev)
	if err != nil {
		log.Warn("event without identity dropped", logx.Err(err))
		return
	}
	log = log.With(logx.String("key", key))

	if d.deps.Seen.Contains(key) {
		d.stats.duplicates.Add(1)
		d.deps.Bus.Publish(eventbus.Event{Type: eventbus.TopicEventDuplicate, Kind: string(kind), Data: key})
		log.Debug("duplicate event")
		return
	}

	// From here on the key is marked and persisted whatever happens below.
	defer d.markSeen(ctx, log, key)

	arrived := ev.Received
	if arrived.IsZero() {
		arrived = d.now()
	}
	if arrived.Before(d.start.Add(d.warmup)) {
		d.stats.suppressed.Add(1)
		d.deps.Bus.Publish(eventbus.Event{Type: eventbus.TopicEventSuppressed, Kind: string(kind), Data: key})
		log.Debug("event during warm-up; marked seen without notification")
		return
	}

	d.deps.Bus.Publish(eventbus.Event{Type: eventbus.TopicEventSeen, Kind: string(kind), Data: key})
	pol := d.currentPolicy()

	handled := false
	switch kind {
	case marketplace.KindMessage:
		handled = d.onMessage(ctx, log, pol, ev)
	case marketplace.KindOrder:
		handled = d.onOrder(ctx, log, pol, ev)
	case marketplace.KindReview:
		handled = d.onReview(ctx, log, pol, ev)
	}
	if handled && d.deps.Plugins != nil {
		d.deps.Plugins.HandleEvent(ctx, ev)
	}
}

func (d *Dispatcher) markSeen(ctx context.Context, log logx.Logger, key string) {
	d.deps.Seen.Add(key)
	if err := d.deps.Seen.Persist(ctx); err != nil {
		log.Warn("dedup persist failed", logx.Err(err))
	}
}

func (d *Dispatcher) notify(ctx context.Context, log logx.Logger, pol Policy, kind marketplace.Kind, id, text string) bool {
	if !pol.notify(kind) {
		log.Debug("notifications disabled for kind")
		return false
	}
	if d.deps.Sink == nil {
		return false
	}
	if err := d.deps.Sink.Send(ctx, notifier.Notification{Kind: string(kind), EntityID: id, Text: text}); err != nil {
		log.Warn("notification not sent", logx.Err(err))
		return false
	}
	return true
}

func (d *Dispatcher) ownUsername() string {
	if d.deps.Account == nil {
		return ""
	}
	return d.deps.Account.Username()
}

func (d *Dispatcher) onMessage(ctx context.Context, log logx.Logger, pol Policy, ev marketplace.Event) bool {
	m, err := ev.Message()
	if err != nil {
		log.Warn("bad message payload", logx.Err(err))
		return false
	}
	if m.System || strings.TrimSpace(m.Content) == "" {
		log.Debug("system or empty message skipped")
		return false
	}
	if own := d.ownUsername(); own != "" && strings.EqualFold(m.Author, own) {
		log.Debug("own message skipped")
		return false
	}

	if d.notify(ctx, log, pol, marketplace.KindMessage, m.ChatID, FormatMessage(m)) {
		d.stats.messagesNotified.Add(1)
	}

	if d.deps.Responder != nil && !pol.blacklisted(m.Author) {
		if _, sent := d.deps.Responder.OnMessage(ctx, m.ChatID, orDefault(m.Author, defaultAuthor), m.Content); sent {
			d.stats.autoReplies.Add(1)
		}
	}
	return true
}

func (d *Dispatcher) onOrder(ctx context.Context, log logx.Logger, pol Policy, ev marketplace.Event) bool {
	o, err := ev.Order()
	if err != nil {
		log.Warn("bad order payload", logx.Err(err))
		return false
	}
	d.notify(ctx, log, pol, marketplace.KindOrder, o.ID, FormatOrder(o))
	d.stats.ordersProcessed.Add(1)

	if pol.Delivery && d.deps.Deliverer != nil {
		if pol.blacklisted(o.Buyer) {
			log.Info("buyer blacklisted; auto-delivery skipped", logx.String("buyer", o.Buyer))
		} else if out := d.deps.Deliverer.Deliver(ctx, o); out.Delivered {
			d.stats.deliveries.Add(1)
		}
	}
	return true
}

func (d *Dispatcher) onReview(ctx context.Context, log logx.Logger, pol Policy, ev marketplace.Event) bool {
	r, err := ev.Review()
	if err != nil {
		log.Warn("bad review payload", logx.Err(err))
		return false
	}
	author := orDefault(r.Author, defaultBuyer)
	d.notify(ctx, log, pol, marketplace.KindReview, r.ID, FormatReview(r))
	d.stats.reviewsProcessed.Add(1)

	if d.deps.Reviewer != nil && !pol.blacklisted(r.Author) {
		if _, sent := d.deps.Reviewer.OnReview(ctx, r.ID, author, r.Rating, r.Comment); sent {
			d.stats.autoReplies.Add(1)
		}
	}
	return true
}
