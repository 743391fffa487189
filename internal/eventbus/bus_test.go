package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	b := New()
	fast, unsubFast := b.Subscribe(4)
	defer unsubFast()
	slow, unsubSlow := b.Subscribe(1)
	defer unsubSlow()

	b.Publish(Event{Type: TopicNotifySent, Kind: "order"})
	b.Publish(Event{Type: TopicNotifyFailed, Kind: "message"})

	if got := len(fast); got != 2 {
		t.Fatalf("fast subscriber got %d events", got)
	}
	if got := len(slow); got != 1 {
		t.Fatalf("slow subscriber should keep only the first event, got %d", got)
	}
	e := <-fast
	if e.Time.IsZero() || time.Since(e.Time) > time.Minute {
		t.Fatalf("publish should stamp time, got %v", e.Time)
	}
}

func TestUnsubscribeClosesChannelAndStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(2)
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	b.Publish(Event{Type: TopicStockPopped})
}
