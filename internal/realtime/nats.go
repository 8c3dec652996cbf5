package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/observability"
)

// NATSBus fans events out through NATS subjects.
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger

	mu     sync.Mutex
	subs   map[*natsSubscription]struct{}
	closed bool
}

// NewNATSBus constructs a bus publishing on subjects named "<base>.<topic>".
func NewNATSBus(conn *nats.Conn, subjectBase string, logger zerolog.Logger) *NATSBus {
	prefix := strings.Trim(strings.ReplaceAll(strings.TrimSpace(subjectBase), ":", "."), ".")
	if prefix != "" {
		prefix += "."
	}

	return &NATSBus{
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("component", "realtime_nats").Logger(),
		subs:   make(map[*natsSubscription]struct{}),
	}
}

func (b *NATSBus) subject(topic string) string {
	return b.prefix + topic
}

// Publish sends the event to the topic's subject.
func (b *NATSBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBusClosed
	}

	event.Topic = topic
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode realtime event: %w", err)
	}

	if err := b.conn.Publish(b.subject(topic), payload); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	observability.RealtimeEvents().WithLabelValues("nats", event.Type).Inc()
	return nil
}

// Subscribe registers an async NATS subscription. NATS invokes the
// callback of one subscription sequentially, which keeps publish order.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	b.mu.Unlock()

	sub := &natsSubscription{bus: b, done: make(chan struct{})}
	natsSub, err := b.conn.Subscribe(b.subject(topic), func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Warn().Err(err).Str("topic", topic).Msg("invalid realtime event")
			return
		}

		select {
		case <-sub.done:
			return
		default:
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	if err := b.conn.FlushWithContext(ctx); err != nil {
		_ = natsSub.Unsubscribe()
		return nil, fmt.Errorf("confirm subscription to %s: %w", topic, err)
	}
	sub.sub = natsSub

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Close releases every subscription opened through the bus. The NATS
// connection itself is owned by the caller.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := make([]*natsSubscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to release nats subscription")
		}
	}
	return nil
}

type natsSubscription struct {
	bus  *NATSBus
	sub  *nats.Subscription
	done chan struct{}
	once sync.Once
	err  error
}

func (s *natsSubscription) Unsubscribe() error {
	s.once.Do(func() {
		close(s.done)
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		if s.sub != nil {
			s.err = s.sub.Unsubscribe()
		}
	})
	return s.err
}
