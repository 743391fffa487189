package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topics published by the dispatcher, notifier, stock queue and plugin runtime.
const (
	TopicEventSeen       = "dispatch.seen"
	TopicEventSuppressed = "dispatch.suppressed"
	TopicEventDuplicate  = "dispatch.duplicate"
	TopicNotifySent      = "notify.sent"
	TopicNotifyFailed    = "notify.failed"
	TopicNotifyDropped   = "notify.dropped"
	TopicAutoReply       = "autoresponse.sent"
	TopicStockPopped     = "stock.popped"
	TopicStockEmpty      = "stock.empty"
	TopicPluginActivated = "plugin.activated"
	TopicPluginFailed    = "plugin.failed"
)

// Event is a small in-memory signal used to decouple components from
// metrics and diagnostics.
//
// Publish never blocks; slow subscribers lose events.
type Event struct {
	Type string
	Time time.Time
	// Kind is the marketplace event kind or plugin key, when relevant.
	Kind string
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Delivery happens under the read lock so Unsubscribe cannot close a
	// channel mid-send; sends are non-blocking so the lock is held briefly.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Nop discards everything. Useful as a default collaborator.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
