package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/observability"
)

// RedisBus fans events out through Redis pub/sub channels.
type RedisBus struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
}

// NewRedisBus constructs a bus publishing on channels named "<base>:<topic>".
func NewRedisBus(client *redis.Client, channelBase string, logger zerolog.Logger) *RedisBus {
	prefix := strings.TrimSpace(channelBase)
	if prefix != "" {
		prefix += ":"
	}

	return &RedisBus{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "realtime_redis").Logger(),
		subs:   make(map[*redisSubscription]struct{}),
	}
}

func (b *RedisBus) channel(topic string) string {
	return b.prefix + topic
}

// Publish sends the event to the topic's channel.
func (b *RedisBus) Publish(ctx context.Context, topic string, event Event) error {
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

	if err := b.client.Publish(ctx, b.channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	observability.RealtimeEvents().WithLabelValues("redis", event.Type).Inc()
	return nil
}

// Subscribe opens a dedicated pub/sub connection for the topic. The call
// returns once Redis has confirmed the subscription.
func (b *RedisBus) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	b.mu.Unlock()

	pubsub := b.client.Subscribe(ctx, b.channel(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	sub := &redisSubscription{
		bus:    b,
		pubsub: pubsub,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.consume(ctx, topic, handler)
	return sub, nil
}

// Close releases every subscription opened through the bus. The Redis
// client itself is owned by the caller.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := make([]*redisSubscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	return nil
}

type redisSubscription struct {
	bus    *RedisBus
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *redisSubscription) consume(ctx context.Context, topic string, handler Handler) {
	channel := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Unsubscribe()
			return
		case <-s.done:
			return
		case msg, ok := <-channel:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.bus.logger.Warn().Err(err).Str("topic", topic).Msg("invalid realtime event")
				continue
			}

			select {
			case <-s.done:
				return
			default:
			}
			handler(event)
		}
	}
}

func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() {
		close(s.done)
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		s.err = s.pubsub.Close()
	})
	return s.err
}
