// Package realtime carries chat events between API nodes and the websocket
// sessions subscribed to them.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types published on chat topics.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventTyping = "typing"
)

// ErrBusClosed is returned when publishing or subscribing on a closed bus.
var ErrBusClosed = errors.New("realtime bus closed")

// Event is the envelope delivered to subscribers.
type Event struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewEvent encodes payload into an event of the given type.
func NewEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s event: %w", eventType, err)
	}

	return Event{Type: eventType, Payload: raw, SentAt: time.Now().UTC()}, nil
}

// Decode unmarshals the event payload into dst.
func (e Event) Decode(dst interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("empty %s event payload", e.Type)
	}
	return json.Unmarshal(e.Payload, dst)
}

// Handler receives events for one subscription, one at a time.
type Handler func(Event)

// Subscription is a live registration on a topic.
type Subscription interface {
	// Unsubscribe stops delivery. It is safe to call more than once.
	Unsubscribe() error
}

// Bus publishes events to topics and fans them out to subscribers. Each
// publish reaches each live subscription exactly once, in publish order.
type Bus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)
	Close() error
}

// MessagesTopic is the topic carrying message rows of a group.
func MessagesTopic(groupID string) string {
	return fmt.Sprintf("chat.groups.%s.messages", groupID)
}

// TypingTopic is the topic carrying typing signals of a group.
func TypingTopic(groupID string) string {
	return fmt.Sprintf("chat.groups.%s.typing", groupID)
}

// NopSubscription is a subscription with nothing to release.
type NopSubscription struct{}

// Unsubscribe implements Subscription.
func (NopSubscription) Unsubscribe() error { return nil }
