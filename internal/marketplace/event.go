// Package marketplace holds the event model consumed by the dispatcher and the
// account facade used to talk back to the marketplace.
package marketplace

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindMessage Kind = "message"
	KindOrder   Kind = "order"
	KindReview  Kind = "review"
)

var ErrMissingID = errors.New("event has no identity")

// Event is one marketplace occurrence. It is immutable once built.
type Event struct {
	Kind     Kind
	EntityID string
	Payload  json.RawMessage
	// Trace correlates log lines of one event across components.
	Trace    string
	Received time.Time
}

// RawEvent is the wire shape accepted from event sources.
type RawEvent struct {
	Type     string          `json:"type"`
	EntityID string          `json:"entity_id,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// NormalizeKind maps source type names to a known Kind.
// Unknown names return false and are ignored by the dispatcher.
func NormalizeKind(raw string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "new_message", "message", "newmessage":
		return KindMessage, true
	case "new_order", "order", "neworder":
		return KindOrder, true
	case "new_review", "review", "newreview":
		return KindReview, true
	default:
		return "", false
	}
}

// FromRaw builds an Event; ok is false for unknown kinds.
func FromRaw(raw RawEvent, now time.Time) (Event, bool) {
	kind, ok := NormalizeKind(raw.Type)
	if !ok {
		return Event{}, false
	}
	return Event{
		Kind:     kind,
		EntityID: strings.TrimSpace(raw.EntityID),
		Payload:  raw.Payload,
		Trace:    uuid.NewString(),
		Received: now,
	}, true
}

// DecodeRaw parses one JSON object into a RawEvent.
func DecodeRaw(b []byte) (RawEvent, error) {
	var raw RawEvent
	if err := json.Unmarshal(b, &raw); err != nil {
		return RawEvent{}, fmt.Errorf("decode event: %w", err)
	}
	return raw, nil
}

// DedupKey derives the deterministic identity of an event:
//
//	message -> "{chatId}:{msgId}"
//	order   -> "order:{orderId}"
//	review  -> "review:{reviewId}"
func DedupKey(ev Event) (string, error) {
	switch ev.Kind {
	case KindMessage:
		m, err := ev.Message()
		if err != nil {
			return "", err
		}
		if m.ID == "" {
			return "", ErrMissingID
		}
		return m.ChatID + ":" + m.ID, nil
	case KindOrder:
		o, err := ev.Order()
		if err != nil {
			return "", err
		}
		if o.ID == "" {
			return "", ErrMissingID
		}
		return "order:" + o.ID, nil
	case KindReview:
		r, err := ev.Review()
		if err != nil {
			return "", err
		}
		if r.ID == "" {
			return "", ErrMissingID
		}
		return "review:" + r.ID, nil
	default:
		return "", fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// Map decodes the payload into a generic map, for plugin consumption.
func (ev Event) Map() map[string]any {
	out := map[string]any{}
	if len(ev.Payload) == 0 {
		return out
	}
	_ = json.Unmarshal(ev.Payload, &out)
	return out
}
