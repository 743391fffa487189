package notifier

import (
	"context"
	"time"
)

// Config controls the async notification pipeline.
type Config struct {
	AdminIDs   []int64
	Workers    int
	QueueSize  int
	RatePerSec int
	// LinkBase is the marketplace web root used for "open" buttons.
	LinkBase string
}

// Notification is one operator-facing message. Kind selects the buttons;
// an empty Kind sends plain text without buttons.
type Notification struct {
	Kind     string
	EntityID string
	Text     string
	// Plain disables HTML parse mode.
	Plain bool
}

// Sink accepts notifications. A nil error means the notification was queued.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

type HistoryItem struct {
	At   time.Time
	Kind string
	Text string
}
