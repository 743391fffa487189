package dispatch

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats counts what the dispatcher did since start.
type Stats struct {
	started time.Time

	ordersProcessed  atomic.Int64
	messagesNotified atomic.Int64
	reviewsProcessed atomic.Int64
	autoReplies      atomic.Int64
	deliveries       atomic.Int64
	suppressed       atomic.Int64
	duplicates       atomic.Int64
}

type StatsSnapshot struct {
	Started          time.Time     `json:"started"`
	Uptime           time.Duration `json:"uptime"`
	OrdersProcessed  int64         `json:"orders_processed"`
	MessagesNotified int64         `json:"messages_notified"`
	ReviewsProcessed int64         `json:"reviews_processed"`
	AutoRepliesSent  int64         `json:"auto_replies_sent"`
	Deliveries       int64         `json:"deliveries"`
	Suppressed       int64         `json:"suppressed"`
	Duplicates       int64         `json:"duplicates"`
}

func (s *Stats) snapshot(now time.Time) StatsSnapshot {
	return StatsSnapshot{
		Started:          s.started,
		Uptime:           now.Sub(s.started),
		OrdersProcessed:  s.ordersProcessed.Load(),
		MessagesNotified: s.messagesNotified.Load(),
		ReviewsProcessed: s.reviewsProcessed.Load(),
		AutoRepliesSent:  s.autoReplies.Load(),
		Deliveries:       s.deliveries.Load(),
		Suppressed:       s.suppressed.Load(),
		Duplicates:       s.duplicates.Load(),
	}
}

// FormatUptime renders d as "{h}ч {m}м".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dч %dм", h, m)
}
