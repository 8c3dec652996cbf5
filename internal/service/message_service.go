package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/models"
	"github.com/noah-isme/studyquest-api/internal/observability"
	"github.com/noah-isme/studyquest-api/internal/realtime"
	"github.com/noah-isme/studyquest-api/internal/repository"
)

var (
	// ErrMessageEmpty indicates a message with neither text nor attachments.
	ErrMessageEmpty = errors.New("message content empty after sanitization")
	// ErrMessageNotFound indicates the referenced message does not exist.
	ErrMessageNotFound = errors.New("chat message not found")
)

// MessageHandler receives hydrated messages from a group's push channel.
type MessageHandler func(dto.ChatMessageResponse)

// SubscribeOption tunes a message subscription.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	onUpdate MessageHandler
}

// WithUpdates also delivers reaction updates to onUpdate.
func WithUpdates(onUpdate MessageHandler) SubscribeOption {
	return func(o *subscribeOptions) {
		o.onUpdate = onUpdate
	}
}

// MessageService loads, streams, and writes chat messages.
type MessageService interface {
	Load(ctx context.Context, groupID string) ([]dto.ChatMessageResponse, error)
	Subscribe(ctx context.Context, groupID string, onInsert MessageHandler, opts ...SubscribeOption) (realtime.Subscription, error)
	Send(ctx context.Context, payload dto.ChatSendRequest) (dto.ChatMessageResponse, error)
	React(ctx context.Context, messageID, userID, emoji string) (dto.ChatMessageResponse, error)
	// GroupOf returns the id of the group a message was posted in.
	GroupOf(ctx context.Context, messageID string) (string, error)
}

type messageService struct {
	repo      repository.MessageRepository
	profiles  repository.ProfileRepository
	bus       realtime.Bus
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	lookups   singleflight.Group
}

// NewMessageService constructs a message service publishing on bus.
func NewMessageService(repo repository.MessageRepository, profiles repository.ProfileRepository, bus realtime.Bus, validate *validator.Validate, logger zerolog.Logger) MessageService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	return &messageService{
		repo:      repo,
		profiles:  profiles,
		bus:       bus,
		validator: validate,
		sanitizer: sanitizer,
		logger:    logger.With().Str("component", "message_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/studyquest-api/internal/service/message"),
	}
}

// Load returns the group's messages oldest first, each with its sender.
func (s *messageService) Load(ctx context.Context, groupID string) ([]dto.ChatMessageResponse, error) {
	messages, err := s.repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	senderIDs := make([]string, 0)
	seen := make(map[string]struct{})
	for _, message := range messages {
		if _, ok := seen[message.SenderID]; ok {
			continue
		}
		seen[message.SenderID] = struct{}{}
		senderIDs = append(senderIDs, message.SenderID)
	}

	profiles, err := s.profiles.FindByIDs(ctx, senderIDs)
	if err != nil {
		s.logger.Warn().Err(err).Str("group_id", groupID).Msg("failed to load sender profiles")
		profiles = map[string]models.Profile{}
	}

	out := make([]dto.ChatMessageResponse, 0, len(messages))
	for _, message := range messages {
		var profile *models.Profile
		if p, ok := profiles[message.SenderID]; ok {
			profile = &p
		}
		out = append(out, dto.NewChatMessageResponse(message, profile))
	}
	return out, nil
}

// Subscribe delivers every message inserted into the group after the
// subscription is confirmed. The event payload is the stored row; the
// sender profile is looked up before onInsert runs.
func (s *messageService) Subscribe(ctx context.Context, groupID string, onInsert MessageHandler, opts ...SubscribeOption) (realtime.Subscription, error) {
	options := subscribeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return s.bus.Subscribe(ctx, realtime.MessagesTopic(groupID), func(event realtime.Event) {
		var handler MessageHandler
		switch event.Type {
		case realtime.EventInsert:
			handler = onInsert
		case realtime.EventUpdate:
			handler = options.onUpdate
		}
		if handler == nil {
			return
		}

		var row models.ChatMessage
		if err := event.Decode(&row); err != nil {
			s.logger.Warn().Err(err).Str("group_id", groupID).Msg("invalid message event")
			return
		}
		if row.GroupID != groupID {
			return
		}

		handler(dto.NewChatMessageResponse(row, s.lookupProfile(ctx, row.SenderID)))
	})
}

func (s *messageService) Send(ctx context.Context, payload dto.ChatSendRequest) (dto.ChatMessageResponse, error) {
	payload.GroupID = strings.TrimSpace(payload.GroupID)
	payload.Content = strings.TrimSpace(payload.Content)
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if clean == "" && len(payload.Attachments) == 0 {
		return dto.ChatMessageResponse{}, ErrMessageEmpty
	}

	kind := "text"
	if len(payload.Attachments) > 0 {
		kind = "attachment"
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("chat.group_id", payload.GroupID),
		attribute.String("chat.sender_id", payload.SenderID),
		attribute.String("chat.kind", kind),
	))
	defer span.End()

	message := models.ChatMessage{
		GroupID:     payload.GroupID,
		SenderID:    payload.SenderID,
		Content:     clean,
		Attachments: dto.AttachmentModels(payload.Attachments),
	}
	if err := s.repo.Create(spanCtx, &message); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store message")
		return dto.ChatMessageResponse{}, fmt.Errorf("store message: %w", err)
	}

	observability.ChatMessagesSent().WithLabelValues(kind).Inc()
	s.publish(spanCtx, realtime.EventInsert, message)

	return dto.NewChatMessageResponse(message, s.lookupProfile(spanCtx, message.SenderID)), nil
}

func (s *messageService) React(ctx context.Context, messageID, userID, emoji string) (dto.ChatMessageResponse, error) {
	emoji = strings.TrimSpace(emoji)
	if err := s.validator.Struct(dto.ReactionRequest{Emoji: emoji}); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	message, err := s.repo.ToggleReaction(ctx, messageID, emoji, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChatMessageResponse{}, ErrMessageNotFound
		}
		return dto.ChatMessageResponse{}, fmt.Errorf("toggle reaction: %w", err)
	}

	s.publish(ctx, realtime.EventUpdate, message)
	return dto.NewChatMessageResponse(message, s.lookupProfile(ctx, message.SenderID)), nil
}

func (s *messageService) GroupOf(ctx context.Context, messageID string) (string, error) {
	message, err := s.repo.FindByID(ctx, strings.TrimSpace(messageID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrMessageNotFound
		}
		return "", fmt.Errorf("find message: %w", err)
	}
	return message.GroupID, nil
}

// publish failures are logged only; the row is already stored.
func (s *messageService) publish(ctx context.Context, eventType string, message models.ChatMessage) {
	event, err := realtime.NewEvent(eventType, message)
	if err != nil {
		s.logger.Warn().Err(err).Str("message_id", message.ID).Msg("failed to encode message event")
		return
	}
	if err := s.bus.Publish(ctx, realtime.MessagesTopic(message.GroupID), event); err != nil {
		s.logger.Warn().Err(err).Str("message_id", message.ID).Msg("failed to publish message event")
	}
}

func (s *messageService) lookupProfile(ctx context.Context, userID string) *models.Profile {
	result, err, _ := s.lookups.Do("profile:"+userID, func() (interface{}, error) {
		return s.profiles.FindByID(ctx, userID)
	})
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debug().Err(err).Str("user_id", userID).Msg("sender profile lookup failed")
		}
		return nil
	}

	profile, ok := result.(models.Profile)
	if !ok {
		return nil
	}
	return &profile
}
