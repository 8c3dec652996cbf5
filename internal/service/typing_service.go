package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/observability"
	"github.com/noah-isme/studyquest-api/internal/realtime"
)

// DefaultTypingTTL is how long a user stays "typing" without a renewal.
const DefaultTypingTTL = 3 * time.Second

// TypingHandler receives the full set of users currently typing.
type TypingHandler func([]dto.TypingUser)

// TypingService broadcasts and tracks ephemeral typing signals.
type TypingService interface {
	NotifyTyping(ctx context.Context, groupID string, signal dto.TypingUser) error
	SubscribeTyping(ctx context.Context, groupID, selfID string, onUpdate TypingHandler) (realtime.Subscription, error)
}

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

type typingService struct {
	bus       realtime.Bus
	ttl       time.Duration
	afterFunc afterFunc
	logger    zerolog.Logger
}

// NewTypingService constructs a typing service. A non-positive ttl uses DefaultTypingTTL.
func NewTypingService(bus realtime.Bus, ttl time.Duration, logger zerolog.Logger) TypingService {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}

	return &typingService{
		bus:       bus,
		ttl:       ttl,
		afterFunc: realAfterFunc,
		logger:    logger.With().Str("component", "typing_service").Logger(),
	}
}

// NotifyTyping is fire-and-forget: nothing is stored or acknowledged.
func (s *typingService) NotifyTyping(ctx context.Context, groupID string, signal dto.TypingUser) error {
	event, err := realtime.NewEvent(realtime.EventTyping, signal)
	if err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, realtime.TypingTopic(groupID), event); err != nil {
		return err
	}

	observability.ChatTypingBroadcasts().Inc()
	return nil
}

func (s *typingService) SubscribeTyping(ctx context.Context, groupID, selfID string, onUpdate TypingHandler) (realtime.Subscription, error) {
	tracker := newTypingTracker(selfID, s.ttl, s.afterFunc, onUpdate)

	sub, err := s.bus.Subscribe(ctx, realtime.TypingTopic(groupID), func(event realtime.Event) {
		if event.Type != realtime.EventTyping {
			return
		}
		var signal dto.TypingUser
		if err := event.Decode(&signal); err != nil {
			s.logger.Debug().Err(err).Str("group_id", groupID).Msg("invalid typing event")
			return
		}
		tracker.observe(signal)
	})
	if err != nil {
		return nil, err
	}

	return &typingSubscription{inner: sub, tracker: tracker}, nil
}

type typingSubscription struct {
	inner   realtime.Subscription
	tracker *typingTracker
}

func (s *typingSubscription) Unsubscribe() error {
	s.tracker.stop()
	return s.inner.Unsubscribe()
}

type typingEntry struct {
	user  dto.TypingUser
	timer stopper
	token uint64
}

// typingTracker keeps one expiry timer per remote user. A renewal replaces
// the timer; an expiry whose token no longer matches is ignored.
type typingTracker struct {
	mu        sync.Mutex
	selfID    string
	ttl       time.Duration
	afterFunc afterFunc
	onUpdate  TypingHandler
	users     map[string]*typingEntry
	seq       uint64
	stopped   bool
}

func newTypingTracker(selfID string, ttl time.Duration, after afterFunc, onUpdate TypingHandler) *typingTracker {
	return &typingTracker{
		selfID:    selfID,
		ttl:       ttl,
		afterFunc: after,
		onUpdate:  onUpdate,
		users:     make(map[string]*typingEntry),
	}
}

func (t *typingTracker) observe(signal dto.TypingUser) {
	signal.UserID = strings.TrimSpace(signal.UserID)
	if signal.UserID == "" || signal.UserID == t.selfID {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	entry, exists := t.users[signal.UserID]
	if exists {
		entry.timer.Stop()
	} else {
		entry = &typingEntry{}
		t.users[signal.UserID] = entry
	}

	t.seq++
	token := t.seq
	userID := signal.UserID
	entry.user = signal
	entry.token = token
	entry.timer = t.afterFunc(t.ttl, func() {
		t.expire(userID, token)
	})

	if !exists {
		t.notifyLocked()
	}
}

func (t *typingTracker) expire(userID string, token uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	entry, ok := t.users[userID]
	if !ok || entry.token != token {
		return
	}
	delete(t.users, userID)
	t.notifyLocked()
}

func (t *typingTracker) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	t.stopped = true
	for userID, entry := range t.users {
		entry.timer.Stop()
		delete(t.users, userID)
	}
}

func (t *typingTracker) snapshotLocked() []dto.TypingUser {
	users := make([]dto.TypingUser, 0, len(t.users))
	for _, entry := range t.users {
		users = append(users, entry.user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].UserName == users[j].UserName {
			return users[i].UserID < users[j].UserID
		}
		return users[i].UserName < users[j].UserName
	})
	return users
}

func (t *typingTracker) notifyLocked() {
	if t.onUpdate != nil {
		t.onUpdate(t.snapshotLocked())
	}
}
