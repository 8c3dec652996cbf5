package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/studyquest-api/internal/handler"
	"github.com/noah-isme/studyquest-api/internal/middleware"
	"github.com/noah-isme/studyquest-api/internal/models"
	"github.com/noah-isme/studyquest-api/internal/realtime"
	"github.com/noah-isme/studyquest-api/internal/repository"
	"github.com/noah-isme/studyquest-api/internal/service"
)

func setupHandlerDB(t *testing.T) *gorm.DB {
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

// testIdentity stands in for the JWT middleware: X-Test-User, X-Test-Name
// and X-Test-Role become the request identity.
func testIdentity(c *fiber.Ctx) error {
	if user := c.Get("X-Test-User"); user != "" {
		c.Locals(middleware.LocalUserID, user)
		c.Locals(middleware.LocalUserName, c.Get("X-Test-Name", user))
		c.Locals(middleware.LocalUserRole, c.Get("X-Test-Role", "student"))
	}
	return c.Next()
}

type chatStack struct {
	db       *gorm.DB
	bus      *realtime.MemoryBus
	groups   service.GroupService
	messages service.MessageService
	typing   service.TypingService
	app      *fiber.App
}

func newChatStack(t *testing.T) *chatStack {
	t.Helper()
	db := setupHandlerDB(t)
	bus := realtime.NewMemoryBus(zerolog.Nop())
	t.Cleanup(func() { _ = bus.Close() })

	validate := validator.New()
	stack := &chatStack{
		db:       db,
		bus:      bus,
		groups:   service.NewGroupService(repository.NewGroupRepository(db), validate, zerolog.Nop()),
		messages: service.NewMessageService(repository.NewMessageRepository(db), repository.NewProfileRepository(db), bus, validate, zerolog.Nop()),
		typing:   service.NewTypingService(bus, service.DefaultTypingTTL, zerolog.Nop()),
	}

	chat := handler.NewChatHandler(stack.groups, stack.messages, stack.typing, service.NewAttachmentService(nil, 1, zerolog.Nop()), validate, handler.ChatHandlerConfig{}, zerolog.Nop())
	stack.app = fiber.New()
	chat.Register(stack.app.Group("/api/v2/chat", testIdentity))
	return stack
}

func doJSON(t *testing.T, app *fiber.App, method, path, user string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

type envelope[T any] struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    T                 `json:"data"`
	Details map[string]string `json:"details"`
}
