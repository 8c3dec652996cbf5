package dto

import "time"

// Session event kinds pushed to a connected chat client.
const (
	SessionEventGroups  = "groups"
	SessionEventHistory = "history"
	SessionEventMessage = "message"
	SessionEventTyping  = "typing"
	SessionEventNotice  = "notice"
)

// Client frame kinds accepted on the chat websocket.
const (
	ClientFrameJoin   = "join"
	ClientFrameLeave  = "leave"
	ClientFrameSend   = "send"
	ClientFrameTyping = "typing"
)

// Notice levels.
const (
	NoticeInfo  = "info"
	NoticeWarn  = "warn"
	NoticeError = "error"
)

// ChatSessionEvent is one server frame on the chat websocket.
type ChatSessionEvent struct {
	Type      string      `json:"type"`
	RoomID    string      `json:"room_id,omitempty"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// HistoryPayload carries the loaded history of the active room.
type HistoryPayload struct {
	RoomName string                `json:"room_name"`
	Messages []ChatMessageResponse `json:"messages"`
}

// TypingPayload carries the current set of other users typing in the room.
type TypingPayload struct {
	Users []TypingUser `json:"users"`
}

// NoticePayload is a transient, user-visible notice.
type NoticePayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ChatClientFrame is one client frame on the chat websocket.
type ChatClientFrame struct {
	Type        string              `json:"type" validate:"required,oneof=join leave send typing"`
	RoomID      string              `json:"room_id" validate:"omitempty,max=64"`
	Content     string              `json:"content" validate:"max=4000"`
	Attachments []AttachmentPayload `json:"attachments" validate:"omitempty,max=5,dive"`
}
