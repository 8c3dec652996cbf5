package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Profile is the public display information of a user.
type Profile struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	FullName  string    `gorm:"size:255" json:"full_name"`
	Email     string    `gorm:"size:255;index" json:"email"`
	AvatarURL string    `gorm:"size:512" json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatGroup is a study room users can join.
type ChatGroup struct {
	ID          string        `gorm:"primaryKey;size:64" json:"id"`
	Name        string        `gorm:"size:120;not null" json:"name"`
	Description string        `gorm:"type:text" json:"description"`
	IsPrivate   bool          `gorm:"not null;default:false" json:"is_private"`
	CreatedBy   string        `gorm:"size:64;index" json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Members     []GroupMember `gorm:"foreignKey:GroupID" json:"-"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (g *ChatGroup) BeforeCreate(*gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// Group member roles.
const (
	GroupRoleOwner  = "owner"
	GroupRoleMember = "member"
)

// GroupMember links a user to a chat group.
type GroupMember struct {
	GroupID  string    `gorm:"primaryKey;size:64" json:"group_id"`
	UserID   string    `gorm:"primaryKey;size:64;index" json:"user_id"`
	Role     string    `gorm:"size:32;default:member" json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Attachment describes a file shared alongside a chat message.
type Attachment struct {
	URL       string `json:"url"`
	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// ChatMessage is one message posted into a group.
type ChatMessage struct {
	ID          string                          `gorm:"primaryKey;size:64" json:"id"`
	GroupID     string                          `gorm:"size:64;index:idx_chat_messages_group_created,priority:1;not null" json:"group_id"`
	SenderID    string                          `gorm:"size:64;index;not null" json:"sender_id"`
	Content     string                          `gorm:"type:text" json:"content"`
	Reactions   datatypes.JSONMap               `gorm:"type:json" json:"reactions,omitempty"`
	Attachments datatypes.JSONSlice[Attachment] `gorm:"type:json" json:"attachments,omitempty"`
	CreatedAt   time.Time                       `gorm:"index:idx_chat_messages_group_created,priority:2" json:"created_at"`
	UpdatedAt   time.Time                       `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (m *ChatMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
