package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func publishSequence(t *testing.T, bus Bus, topic string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		event, err := NewEvent(EventInsert, map[string]int{"seq": i})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), topic, event))
	}
}

func assertOrderedOnce(t *testing.T, rec *recorder, topic string, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= count
	}, 2*time.Second, 10*time.Millisecond)

	// allow any duplicate to surface before asserting exactly-once
	time.Sleep(50 * time.Millisecond)
	events := rec.snapshot()
	require.Len(t, events, count)
	for i, event := range events {
		var payload map[string]int
		require.NoError(t, event.Decode(&payload))
		require.Equal(t, i, payload["seq"])
		require.Equal(t, topic, event.Topic)
		require.Equal(t, EventInsert, event.Type)
	}
}

func TestMemoryBusDeliversEachPublishOnceInOrder(t *testing.T) {
	bus := NewMemoryBus(zerolog.Nop())
	defer bus.Close()

	topic := MessagesTopic("g1")
	first, second := &recorder{}, &recorder{}
	_, err := bus.Subscribe(context.Background(), topic, first.handle)
	require.NoError(t, err)
	_, err = bus.Subscribe(context.Background(), topic, second.handle)
	require.NoError(t, err)

	other := &recorder{}
	_, err = bus.Subscribe(context.Background(), MessagesTopic("g2"), other.handle)
	require.NoError(t, err)

	publishSequence(t, bus, topic, 20)

	assertOrderedOnce(t, first, topic, 20)
	assertOrderedOnce(t, second, topic, 20)
	require.Empty(t, other.snapshot())
}

func TestMemoryBusUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewMemoryBus(zerolog.Nop())
	defer bus.Close()

	rec := &recorder{}
	sub, err := bus.Subscribe(context.Background(), TypingTopic("g1"), rec.handle)
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())

	publishSequence(t, bus, TypingTopic("g1"), 3)
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, rec.snapshot())

	require.NoError(t, NopSubscription{}.Unsubscribe())
}

func TestMemoryBusStopsOnContextCancel(t *testing.T) {
	bus := NewMemoryBus(zerolog.Nop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	_, err := bus.Subscribe(ctx, MessagesTopic("g1"), rec.handle)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.topics) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryBusRejectsAfterClose(t *testing.T) {
	bus := NewMemoryBus(zerolog.Nop())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	_, err := bus.Subscribe(context.Background(), "topic", func(Event) {})
	require.ErrorIs(t, err, ErrBusClosed)
	require.ErrorIs(t, bus.Publish(context.Background(), "topic", Event{}), ErrBusClosed)
}

func TestRedisBusDeliversEachPublishOnceInOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := NewRedisBus(client, "studyquest", zerolog.Nop())
	defer bus.Close()

	topic := MessagesTopic("g1")
	rec := &recorder{}
	sub, err := bus.Subscribe(context.Background(), topic, rec.handle)
	require.NoError(t, err)

	publishSequence(t, bus, topic, 10)
	assertOrderedOnce(t, rec, topic, 10)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
}

func TestBackoffSchedule(t *testing.T) {
	policy := DefaultBackoff()
	require.Equal(t, 500*time.Millisecond, policy.Delay(1))
	require.Equal(t, time.Second, policy.Delay(2))
	require.Equal(t, 2*time.Second, policy.Delay(3))
	require.Equal(t, 4*time.Second, policy.Delay(4))
	require.Equal(t, 8*time.Second, policy.Delay(5))
	require.Equal(t, 8*time.Second, policy.Delay(9))
}

func TestBackoffRetryGivesUpAfterAttempts(t *testing.T) {
	timer := &recordingTimer{}
	policy := DefaultBackoff()
	policy.Timer = timer

	calls := 0
	failures := 0
	err := policy.Retry(context.Background(), func(context.Context) error {
		calls++
		return ErrBusClosed
	}, func(int, error) { failures++ })

	require.ErrorIs(t, err, ErrBusClosed)
	require.Equal(t, 5, calls)
	require.Equal(t, 5, failures)
	require.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second}, timer.waits)
}

func TestBackoffRetryStopsOnSuccess(t *testing.T) {
	policy := DefaultBackoff()
	policy.Timer = &recordingTimer{}

	calls := 0
	err := policy.Retry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return ErrBusClosed
		}
		return nil
	}, nil)

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestBackoffRetryHonoursCancelledContext(t *testing.T) {
	policy := DefaultBackoff()
	policy.Timer = &recordingTimer{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := policy.Retry(ctx, func(context.Context) error {
		calls++
		return ErrBusClosed
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls)
}

// recordingTimer fires at once and remembers every requested pause.
type recordingTimer struct {
	waits []time.Duration
	c     chan time.Time
}

func (r *recordingTimer) Start(d time.Duration) {
	r.waits = append(r.waits, d)
	r.c = make(chan time.Time, 1)
	r.c <- time.Now()
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time {
	return r.c
}
