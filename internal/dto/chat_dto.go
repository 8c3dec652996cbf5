package dto

import (
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/studyquest-api/internal/models"
)

// ChatSender is the display identity attached to every delivered message.
type ChatSender struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// AttachmentPayload describes a file shared with a message.
type AttachmentPayload struct {
	URL       string `json:"url" validate:"required,url,max=1024"`
	Name      string `json:"name" validate:"required,max=255"`
	MimeType  string `json:"mime_type" validate:"omitempty,max=128"`
	SizeBytes int64  `json:"size_bytes" validate:"gte=0"`
}

// ChatMessageResponse is a fully hydrated chat message.
type ChatMessageResponse struct {
	ID          string              `json:"id"`
	GroupID     string              `json:"group_id"`
	SenderID    string              `json:"sender_id"`
	Content     string              `json:"content"`
	CreatedAt   time.Time           `json:"created_at"`
	Reactions   map[string][]string `json:"reactions,omitempty"`
	Attachments []AttachmentPayload `json:"attachments,omitempty"`
	Sender      ChatSender          `json:"sender"`
}

// ChatSendRequest is the write path payload for a new message.
type ChatSendRequest struct {
	GroupID     string              `json:"group_id" validate:"required,max=64"`
	SenderID    string              `json:"sender_id" validate:"required,max=64"`
	Content     string              `json:"content" validate:"required_without=Attachments,max=4000"`
	Attachments []AttachmentPayload `json:"attachments" validate:"omitempty,max=5,dive"`
}

// ChatMessageBody is the HTTP body used to post into a group.
type ChatMessageBody struct {
	Content     string              `json:"content"`
	Attachments []AttachmentPayload `json:"attachments"`
}

// ReactionRequest toggles an emoji reaction on a message.
type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

// ChatGroupResponse is a group annotated with its member count.
type ChatGroupResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPrivate   bool      `json:"is_private"`
	MemberCount int64     `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// GroupDirectoryResponse lists the groups of a user. Warning is set when the
// directory could not be read and Groups was replaced by an empty set.
type GroupDirectoryResponse struct {
	Groups  []ChatGroupResponse `json:"groups"`
	Warning string              `json:"warning,omitempty"`
}

// GroupCreateRequest creates a new study room.
type GroupCreateRequest struct {
	Name        string `json:"name" validate:"max=120"`
	Description string `json:"description" validate:"max=1000"`
	IsPrivate   bool   `json:"is_private"`
}

// TypingUser is one entry of the "currently typing" set.
type TypingUser struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// NewChatGroupResponse converts a group model and its member count into a DTO.
func NewChatGroupResponse(group models.ChatGroup, memberCount int64) ChatGroupResponse {
	return ChatGroupResponse{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		IsPrivate:   group.IsPrivate,
		MemberCount: memberCount,
		CreatedAt:   group.CreatedAt,
	}
}

// NewChatSender builds the sender block, falling back to the raw id when no profile exists.
func NewChatSender(senderID string, profile *models.Profile) ChatSender {
	sender := ChatSender{ID: senderID, Name: "Unknown user"}
	if profile == nil {
		return sender
	}
	if name := strings.TrimSpace(profile.FullName); name != "" {
		sender.Name = name
	} else if email := strings.TrimSpace(profile.Email); email != "" {
		sender.Name = strings.Split(email, "@")[0]
	}
	sender.AvatarURL = profile.AvatarURL
	return sender
}

// NewChatMessageResponse converts a stored message and its sender profile into a DTO.
func NewChatMessageResponse(message models.ChatMessage, profile *models.Profile) ChatMessageResponse {
	response := ChatMessageResponse{
		ID:        message.ID,
		GroupID:   message.GroupID,
		SenderID:  message.SenderID,
		Content:   message.Content,
		CreatedAt: message.CreatedAt,
		Reactions: CoerceReactions(message.Reactions),
		Sender:    NewChatSender(message.SenderID, profile),
	}
	if len(message.Attachments) > 0 {
		response.Attachments = make([]AttachmentPayload, 0, len(message.Attachments))
		for _, attachment := range message.Attachments {
			response.Attachments = append(response.Attachments, AttachmentPayload(attachment))
		}
	}
	return response
}

// CoerceReactions normalises a loosely typed reactions column into emoji -> user ids.
// Values that are neither a list nor a single string are dropped.
func CoerceReactions(raw map[string]interface{}) map[string][]string {
	if len(raw) == 0 {
		return nil
	}

	out := make(map[string][]string, len(raw))
	for emoji, value := range raw {
		var users []string
		switch v := value.(type) {
		case []string:
			users = append(users, v...)
		case []interface{}:
			for _, item := range v {
				if id, ok := item.(string); ok && strings.TrimSpace(id) != "" {
					users = append(users, id)
				}
			}
		case string:
			if strings.TrimSpace(v) != "" {
				users = []string{v}
			}
		}
		if len(users) > 0 {
			sort.Strings(users)
			out[emoji] = users
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// AttachmentModels converts request attachments into their stored form.
func AttachmentModels(items []AttachmentPayload) []models.Attachment {
	if len(items) == 0 {
		return nil
	}
	out := make([]models.Attachment, 0, len(items))
	for _, item := range items {
		out = append(out, models.Attachment(item))
	}
	return out
}
