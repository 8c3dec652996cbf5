package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/models"
	"github.com/noah-isme/studyquest-api/internal/realtime"
	"github.com/noah-isme/studyquest-api/internal/repository"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Profile{},
		&models.ChatGroup{},
		&models.GroupMember{},
		&models.ChatMessage{},
		&models.Purchase{},
		&models.Reward{},
	))
	return db
}

type chatFixture struct {
	db       *gorm.DB
	bus      *realtime.MemoryBus
	groups   GroupService
	messages MessageService
	typing   TypingService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := setupServiceTestDB(t)
	bus := realtime.NewMemoryBus(zerolog.Nop())
	t.Cleanup(func() { _ = bus.Close() })

	validate := validator.New()
	return &chatFixture{
		db:       db,
		bus:      bus,
		groups:   NewGroupService(repository.NewGroupRepository(db), validate, zerolog.Nop()),
		messages: NewMessageService(repository.NewMessageRepository(db), repository.NewProfileRepository(db), bus, validate, zerolog.Nop()),
		typing:   NewTypingService(bus, DefaultTypingTTL, zerolog.Nop()),
	}
}

func (f *chatFixture) createGroup(t *testing.T, name, ownerID string, members ...string) dto.ChatGroupResponse {
	t.Helper()
	group, err := f.groups.Create(context.Background(), ownerID, dto.GroupCreateRequest{Name: name})
	require.NoError(t, err)
	for _, member := range members {
		_, err := f.groups.Join(context.Background(), group.ID, member)
		require.NoError(t, err)
	}
	return group
}

func (f *chatFixture) addProfile(t *testing.T, id, name string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Profile{ID: id, FullName: name}).Error)
}

func (f *chatFixture) session(userID string) *ChatSession {
	return NewChatSession(context.Background(), f.groups, f.messages, f.typing, ChatSessionOptions{UserID: userID, UserName: userID}, zerolog.Nop())
}

// eventCollector drains a session's event stream in the background.
type eventCollector struct {
	mu     sync.Mutex
	events []dto.ChatSessionEvent
	done   chan struct{}
}

func collectEvents(session *ChatSession) *eventCollector {
	c := &eventCollector{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for event := range session.Events() {
			c.mu.Lock()
			c.events = append(c.events, event)
			c.mu.Unlock()
		}
	}()
	return c
}

func (c *eventCollector) all() []dto.ChatSessionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]dto.ChatSessionEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *eventCollector) matching(match func(dto.ChatSessionEvent) bool) []dto.ChatSessionEvent {
	out := make([]dto.ChatSessionEvent, 0)
	for _, event := range c.all() {
		if match(event) {
			out = append(out, event)
		}
	}
	return out
}

func (c *eventCollector) waitFor(t *testing.T, match func(dto.ChatSessionEvent) bool) dto.ChatSessionEvent {
	t.Helper()
	var found dto.ChatSessionEvent
	require.Eventually(t, func() bool {
		events := c.matching(match)
		if len(events) == 0 {
			return false
		}
		found = events[0]
		return true
	}, 2*time.Second, 10*time.Millisecond)
	return found
}

func isHistory(roomID string) func(dto.ChatSessionEvent) bool {
	return func(event dto.ChatSessionEvent) bool {
		return event.Type == dto.SessionEventHistory && event.RoomID == roomID
	}
}

func isMessage(messageID string) func(dto.ChatSessionEvent) bool {
	return func(event dto.ChatSessionEvent) bool {
		if event.Type != dto.SessionEventMessage {
			return false
		}
		message, ok := event.Payload.(dto.ChatMessageResponse)
		return ok && message.ID == messageID
	}
}

func isNotice(message string) func(dto.ChatSessionEvent) bool {
	return func(event dto.ChatSessionEvent) bool {
		if event.Type != dto.SessionEventNotice {
			return false
		}
		notice, ok := event.Payload.(dto.NoticePayload)
		return ok && notice.Message == message
	}
}
