package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"sellerbot/internal/eventbus"
	rtsup "sellerbot/internal/runtime/supervisor"
	kit "sellerbot/internal/transport"
	logx "sellerbot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrNoTargets = errors.New("notifier has no operator chats")
)

const historySize = 300

// Service implements Sink as queue + worker pool + rate limit.
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan Notification
	sup      *rtsup.Supervisor
	stopDone chan struct{}

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{sender: sender, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

// Apply swaps the pacing and targets. Workers and queue size take effect on
// the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	cfg.AdminIDs = append([]int64(nil), cfg.AdminIDs...)
	cfg.LinkBase = strings.TrimRight(cfg.LinkBase, "/")
	s.cfg = cfg
	// Burst equals the per-second rate so short spikes pass unthrottled.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan Notification, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		rtsup.WithCancelOnError(false),
	)
	sup, q, workers := s.sup, s.queue, s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping || c.Err() != nil {
				return context.Canceled
			}
			return errors.New("notifier worker exited unexpectedly")
		})
	}
}

// Stop closes intake and drains the queue until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Send queues n for every operator chat. It never blocks on delivery.
func (s *Service) Send(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	if len(s.cfg.AdminIDs) == 0 {
		s.mu.Unlock()
		return ErrNoTargets
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- n:
		return nil
	default:
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicNotifyDropped, Kind: n.Kind, Data: n.EntityID})
		return ErrQueueFull
	}
}

// Report sends a plain operator message. Errors are logged.
func (s *Service) Report(ctx context.Context, text string) {
	if err := s.Send(ctx, Notification{Text: text, Plain: true}); err != nil {
		s.log.Warn("operator report not queued", logx.Err(err), logx.Int("len", len(text)))
	}
}

// SendPlain lets the logging chat sink reuse the pipeline.
func (s *Service) SendPlain(ctx context.Context, text string) error {
	return s.Send(ctx, Notification{Text: text, Plain: true})
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(n Notification) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Kind: n.Kind, Text: n.Text})
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, n)
		}
	}
}

func (s *Service) deliver(ctx context.Context, n Notification) {
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	s.mu.Unlock()
	if sender == nil || strings.TrimSpace(n.Text) == "" {
		return
	}

	opt := &kit.SendOptions{DisablePreview: true}
	if !n.Plain {
		opt.ParseMode = tele.ModeHTML
		opt.Keyboard = Keyboard(n.Kind, n.EntityID, cfg.LinkBase)
	}

	delivered := 0
	for _, chatID := range cfg.AdminIDs {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := sender.SendText(callCtx, kit.ChatTarget{ChatID: chatID}, n.Text, opt)
		cancel()
		if err != nil {
			s.log.Warn("notification send failed",
				logx.String("kind", n.Kind),
				logx.String("entity", n.EntityID),
				logx.Int64("chat_id", chatID),
				logx.Err(err),
			)
			s.bus.Publish(eventbus.Event{Type: eventbus.TopicNotifyFailed, Kind: n.Kind, Data: err.Error()})
			continue
		}
		delivered++
	}
	if delivered > 0 {
		s.appendHistory(n)
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicNotifySent, Kind: n.Kind, Data: n.EntityID})
	}
}
