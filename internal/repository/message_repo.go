package repository

import (
	"context"
	"sort"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/studyquest-api/internal/models"
)

// MessageRepository persists chat messages.
type MessageRepository interface {
	Create(ctx context.Context, message *models.ChatMessage) error
	ListByGroup(ctx context.Context, groupID string) ([]models.ChatMessage, error)
	FindByID(ctx context.Context, id string) (models.ChatMessage, error)
	ToggleReaction(ctx context.Context, id, emoji, userID string) (models.ChatMessage, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a GORM-backed message repository.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// ListByGroup returns every message of the group, oldest first.
func (r *messageRepository) ListByGroup(ctx context.Context, groupID string) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (models.ChatMessage, error) {
	var message models.ChatMessage
	if err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return models.ChatMessage{}, err
	}
	return message, nil
}

// ToggleReaction adds userID under emoji, or removes it when already present.
func (r *messageRepository) ToggleReaction(ctx context.Context, id, emoji, userID string) (models.ChatMessage, error) {
	var message models.ChatMessage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&message, "id = ?", id).Error; err != nil {
			return err
		}

		reactions := toggle(message.Reactions, emoji, userID)
		message.Reactions = reactions
		return tx.Model(&models.ChatMessage{}).
			Where("id = ?", id).
			Update("reactions", reactions).Error
	})
	if err != nil {
		return models.ChatMessage{}, err
	}

	return message, nil
}

func toggle(current datatypes.JSONMap, emoji, userID string) datatypes.JSONMap {
	users := make([]string, 0)
	found := false
	if raw, ok := current[emoji].([]interface{}); ok {
		for _, item := range raw {
			id, ok := item.(string)
			if !ok {
				continue
			}
			if id == userID {
				found = true
				continue
			}
			users = append(users, id)
		}
	}
	if !found {
		users = append(users, userID)
	}
	sort.Strings(users)

	next := datatypes.JSONMap{}
	for key, value := range current {
		next[key] = value
	}
	if len(users) == 0 {
		delete(next, emoji)
	} else {
		values := make([]interface{}, 0, len(users))
		for _, user := range users {
			values = append(values, user)
		}
		next[emoji] = values
	}
	return next
}
