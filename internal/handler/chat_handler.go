package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/middleware"
	"github.com/noah-isme/studyquest-api/internal/realtime"
	"github.com/noah-isme/studyquest-api/internal/service"
	"github.com/noah-isme/studyquest-api/internal/utils"
)

const (
	chatWriteWait       = 10 * time.Second
	defaultPingInterval = 25 * time.Second
	chatMaxFrameBytes   = 64 * 1024
)

// ChatHandlerConfig tunes the websocket sessions and the typing endpoint.
type ChatHandlerConfig struct {
	RequestTimeout time.Duration
	Backoff        realtime.Backoff
	PingInterval   time.Duration
	// TypingLimiter guards the typing endpoint. Nil disables limiting.
	TypingLimiter fiber.Handler
}

// ChatHandler wires chat endpoints including the websocket upgrade.
type ChatHandler struct {
	groups      service.GroupService
	messages    service.MessageService
	typing      service.TypingService
	attachments service.AttachmentService
	validator   *validator.Validate
	cfg         ChatHandlerConfig
	logger      zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(groups service.GroupService, messages service.MessageService, typing service.TypingService, attachments service.AttachmentService, validate *validator.Validate, cfg ChatHandlerConfig, logger zerolog.Logger) *ChatHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.TypingLimiter == nil {
		cfg.TypingLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	return &ChatHandler{
		groups:      groups,
		messages:    messages,
		typing:      typing,
		attachments: attachments,
		validator:   validate,
		cfg:         cfg,
		logger:      logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleConnection))

	authed := middleware.AuthOptions{RequireUser: true}
	router.Get("/groups", middleware.WithAuth(h.listGroups, authed))
	router.Post("/groups", middleware.WithAuth(h.createGroup, authed))
	router.Get("/groups/:id", h.getGroup)
	router.Post("/groups/:id/join", middleware.WithAuth(h.joinGroup, authed))
	router.Delete("/groups/:id/members/me", middleware.WithAuth(h.leaveGroup, authed))
	router.Get("/groups/:id/messages", h.history)
	router.Post("/groups/:id/messages", h.sendMessage)
	router.Post("/groups/:id/typing", middleware.WithAuth(h.cfg.TypingLimiter, authed), h.typingSignal)
	router.Post("/messages/:id/reactions", middleware.WithAuth(h.react, authed))
	router.Post("/attachments", middleware.WithAuth(h.uploadAttachment, authed))
}

func (h *ChatHandler) listGroups(c *fiber.Ctx) error {
	directory := h.groups.ListForUser(requestContext(c), userIDFromContext(c))
	return utils.SendSuccess(c, "chat groups", directory)
}

func (h *ChatHandler) createGroup(c *fiber.Ctx) error {
	var payload dto.GroupCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	group, err := h.groups.Create(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to create group")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "group created", group)
}

func (h *ChatHandler) getGroup(c *fiber.Ctx) error {
	group, err := h.readableGroup(requestContext(c), c.Params("id"), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load group")
	}
	return utils.SendSuccess(c, "chat group", group)
}

func (h *ChatHandler) joinGroup(c *fiber.Ctx) error {
	group, err := h.groups.Join(requestContext(c), c.Params("id"), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to join group")
	}
	return utils.SendSuccess(c, "joined group", group)
}

func (h *ChatHandler) leaveGroup(c *fiber.Ctx) error {
	if err := h.groups.Leave(requestContext(c), c.Params("id"), userIDFromContext(c)); err != nil {
		return respondError(c, h.logger, err, "failed to leave group")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChatHandler) history(c *fiber.Ctx) error {
	ctx := requestContext(c)
	groupID := c.Params("id")
	if _, err := h.readableGroup(ctx, groupID, userIDFromContext(c)); err != nil {
		return respondError(c, h.logger, err, "failed to load messages")
	}

	messages, err := h.messages.Load(ctx, groupID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load messages")
	}
	return utils.OK(c, messages, "chat history", fiber.Map{"count": len(messages)})
}

func (h *ChatHandler) sendMessage(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return respondError(c, h.logger, service.ErrNotAuthenticated, "failed to send message")
	}

	var body dto.ChatMessageBody
	if err := c.BodyParser(&body); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx := requestContext(c)
	groupID := c.Params("id")
	if _, err := h.readableGroup(ctx, groupID, userID); err != nil {
		return respondError(c, h.logger, err, "failed to send message")
	}

	message, err := h.messages.Send(ctx, dto.ChatSendRequest{
		GroupID:     groupID,
		SenderID:    userID,
		Content:     body.Content,
		Attachments: body.Attachments,
	})
	if err != nil {
		return respondError(c, h.logger, err, "failed to send message")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) typingSignal(c *fiber.Ctx) error {
	ctx := requestContext(c)
	groupID := c.Params("id")
	userID := userIDFromContext(c)
	if _, err := h.readableGroup(ctx, groupID, userID); err != nil {
		return respondError(c, h.logger, err, "failed to broadcast typing")
	}

	err := h.typing.NotifyTyping(ctx, groupID, dto.TypingUser{
		UserID:    userID,
		UserName:  localString(c, middleware.LocalUserName),
		AvatarURL: localString(c, middleware.LocalAvatarURL),
	})
	if err != nil {
		return respondError(c, h.logger, err, "failed to broadcast typing")
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *ChatHandler) react(c *fiber.Ctx) error {
	var payload dto.ReactionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx := requestContext(c)
	userID := userIDFromContext(c)
	messageID := c.Params("id")

	groupID, err := h.messages.GroupOf(ctx, messageID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to toggle reaction")
	}
	// messages of groups the caller cannot read are reported as missing
	if _, err := h.readableGroup(ctx, groupID, userID); err != nil {
		if errors.Is(err, service.ErrNotGroupMember) {
			err = service.ErrMessageNotFound
		}
		return respondError(c, h.logger, err, "failed to toggle reaction")
	}

	message, err := h.messages.React(ctx, messageID, userID, payload.Emoji)
	if err != nil {
		return respondError(c, h.logger, err, "failed to toggle reaction")
	}
	return utils.SendSuccess(c, "reaction updated", message)
}

func (h *ChatHandler) uploadAttachment(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	attachment, err := h.attachments.Upload(requestContext(c), file)
	if err != nil {
		return respondError(c, h.logger, err, "upload failed")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attachment uploaded", attachment)
}

// readableGroup loads a group, requiring membership when it is private.
func (h *ChatHandler) readableGroup(ctx context.Context, groupID, userID string) (dto.ChatGroupResponse, error) {
	group, err := h.groups.Get(ctx, groupID)
	if err != nil {
		return dto.ChatGroupResponse{}, err
	}
	if !group.IsPrivate {
		return group, nil
	}
	if userID == "" {
		return dto.ChatGroupResponse{}, service.ErrNotGroupMember
	}
	member, err := h.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return dto.ChatGroupResponse{}, err
	}
	if !member {
		return dto.ChatGroupResponse{}, service.ErrNotGroupMember
	}
	return group, nil
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	userID := websocketLocal(conn, middleware.LocalUserID)
	logger := h.logger.With().Str("user_id", userID).Str("correlation_id", middleware.CorrelationIDFromContext(baseCtx)).Logger()

	session := service.NewChatSession(ctx, h.groups, h.messages, h.typing, service.ChatSessionOptions{
		UserID:         userID,
		UserName:       websocketLocal(conn, middleware.LocalUserName),
		AvatarURL:      websocketLocal(conn, middleware.LocalAvatarURL),
		RequestTimeout: h.cfg.RequestTimeout,
		Backoff:        h.cfg.Backoff,
	}, h.logger)

	replies := make(chan dto.ChatSessionEvent, 8)
	writerDone := make(chan struct{})
	go h.writeLoop(conn, session.Events(), replies, writerDone, logger)

	logger.Info().Msg("chat websocket connected")

	session.RefreshGroups(ctx)
	if roomID := strings.TrimSpace(conn.Query("room_id")); roomID != "" {
		if err := session.Join(roomID); err != nil {
			reply(replies, writerDone, noticeEvent(roomID, err.Error()))
		}
	}

	h.readLoop(ctx, conn, session, replies, writerDone, logger)

	session.Close()
	<-writerDone
	logger.Info().Msg("chat websocket disconnected")
}

func (h *ChatHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *service.ChatSession, replies chan<- dto.ChatSessionEvent, writerDone <-chan struct{}, logger zerolog.Logger) {
	pongWait := 2 * h.cfg.PingInterval
	conn.SetReadLimit(chatMaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("chat websocket closed unexpectedly")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame dto.ChatClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			reply(replies, writerDone, noticeEvent("", "malformed frame"))
			continue
		}
		if err := h.validator.Struct(frame); err != nil {
			reply(replies, writerDone, noticeEvent("", "invalid frame"))
			continue
		}

		switch frame.Type {
		case dto.ClientFrameJoin:
			if err := session.Join(frame.RoomID); err != nil {
				reply(replies, writerDone, noticeEvent(frame.RoomID, err.Error()))
			}
		case dto.ClientFrameLeave:
			session.Leave()
		case dto.ClientFrameSend:
			// store failures are reported by the session itself
			_, err := session.Send(ctx, frame.Content, frame.Attachments)
			if errors.Is(err, service.ErrNotAuthenticated) || errors.Is(err, service.ErrNoActiveRoom) || errors.Is(err, service.ErrRoomNotReady) {
				reply(replies, writerDone, noticeEvent("", err.Error()))
			}
		case dto.ClientFrameTyping:
			_ = session.Typing(ctx)
		}
	}
}

func (h *ChatHandler) writeLoop(conn *websocket.Conn, events <-chan dto.ChatSessionEvent, replies <-chan dto.ChatSessionEvent, done chan<- struct{}, logger zerolog.Logger) {
	defer close(done)

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	write := func(event dto.ChatSessionEvent) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
		if err := conn.WriteJSON(event); err != nil {
			logger.Debug().Err(err).Msg("chat websocket write failed")
			_ = conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(chatWriteWait))
				return
			}
			if !write(event) {
				drain(events)
				return
			}
		case event := <-replies:
			if !write(event) {
				drain(events)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(chatWriteWait)); err != nil {
				_ = conn.Close()
				drain(events)
				return
			}
		}
	}
}

// drain consumes session events until the session closes the stream.
func drain(events <-chan dto.ChatSessionEvent) {
	go func() {
		for range events {
		}
	}()
}

func reply(replies chan<- dto.ChatSessionEvent, writerDone <-chan struct{}, event dto.ChatSessionEvent) {
	select {
	case replies <- event:
	case <-writerDone:
	}
}

func noticeEvent(roomID, message string) dto.ChatSessionEvent {
	return dto.ChatSessionEvent{
		Type:      dto.SessionEventNotice,
		RoomID:    roomID,
		Payload:   dto.NoticePayload{Level: dto.NoticeError, Message: message},
		Timestamp: time.Now().UTC(),
	}
}

func websocketLocal(conn *websocket.Conn, key string) string {
	if value, ok := conn.Locals(key).(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
