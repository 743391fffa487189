// Package digest posts a scheduled activity summary to the operators.
package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sellerbot/internal/dispatch"
	"sellerbot/internal/storage"
	logx "sellerbot/pkg/logx"
)

// lowStock marks products that are about to run out.
const lowStock = 3

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Config struct {
	Enabled  bool
	Schedule string
	Location *time.Location
}

type Source interface {
	Stats() dispatch.StatsSnapshot
}

type Inventory interface {
	ListProducts(ctx context.Context) ([]storage.ProductCount, error)
}

type Reporter interface {
	Report(ctx context.Context, text string)
}

// ValidateSpec reports whether spec is a schedule the digest accepts.
// Both 5-field and 6-field (with seconds) specs and descriptors like
// "@daily" work.
func ValidateSpec(spec string) error {
	if _, err := parser.Parse(strings.TrimSpace(spec)); err != nil {
		return fmt.Errorf("digest.schedule: %w", err)
	}
	return nil
}

type Service struct {
	src Source
	inv Inventory
	out Reporter
	log logx.Logger

	mu  sync.Mutex
	cfg Config
	c   *cron.Cron
	ctx context.Context
}

func New(cfg Config, src Source, inv Inventory, out Reporter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, src: src, inv: inv, out: out, log: log}
}

// Start schedules the digest if enabled. ctx bounds every run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	loc := s.cfg.Location
	if loc == nil {
		loc = time.Local
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("digest.schedule: %w", err)
	}
	c.Start()
	s.c = c
	s.log.Info("digest scheduled", logx.String("schedule", s.cfg.Schedule), logx.String("tz", loc.String()))
	return nil
}

// Stop waits for a running digest to finish or ctx to end.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply swaps the schedule at runtime. An invalid schedule keeps the
// previous one running.
func (s *Service) Apply(cfg Config) error {
	if cfg.Enabled {
		if err := ValidateSpec(cfg.Schedule); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg
	s.cfg = cfg
	if s.ctx == nil {
		return nil
	}
	if prev.Enabled == cfg.Enabled && prev.Schedule == cfg.Schedule && prev.Location.String() == cfg.Location.String() {
		return nil
	}
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	return s.startLocked()
}

// Next returns the next scheduled run, or zero when not scheduled.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	entries := s.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce composes the digest and sends it now.
func (s *Service) RunOnce(ctx context.Context) {
	text := s.Compose(ctx)
	s.out.Report(ctx, text)
	s.log.Debug("digest sent")
}

// Compose renders the summary text.
func (s *Service) Compose(ctx context.Context) string {
	st := s.src.Stats()
	var b strings.Builder
	b.WriteString("📈 Сводка\n")
	fmt.Fprintf(&b, "⏱ Аптайм: %s\n", dispatch.FormatUptime(st.Uptime))
	fmt.Fprintf(&b, "🛒 Заказов: %d\n", st.OrdersProcessed)
	fmt.Fprintf(&b, "💬 Сообщений: %d\n", st.MessagesNotified)
	fmt.Fprintf(&b, "📝 Отзывов: %d\n", st.ReviewsProcessed)
	fmt.Fprintf(&b, "🤖 Автоответов: %d\n", st.AutoRepliesSent)
	fmt.Fprintf(&b, "📦 Выдач: %d\n", st.Deliveries)

	items, err := s.inv.ListProducts(ctx)
	switch {
	case err != nil:
		s.log.Warn("digest stock listing failed", logx.Err(err))
		b.WriteString("🗄 Склад: недоступен")
	case len(items) == 0:
		b.WriteString("🗄 Склад пуст")
	default:
		b.WriteString("🗄 Склад:")
		for _, it := range items {
			mark := ""
			if it.Count <= lowStock {
				mark = " ⚠️"
			}
			fmt.Fprintf(&b, "\n• %s: %d%s", it.Product, it.Count, mark)
		}
	}
	return b.String()
}
