package domain

import "time"

// MessageKind message variant
type MessageKind string

const (
	// MessageKindNormal chat message
	MessageKindNormal MessageKind = "normal"
	// MessageKindSystem reserved for non-chat events sharing the log
	MessageKindSystem MessageKind = "system"
)

// Message 聊天訊息，json tag 即 message 事件的 payload
type Message struct {
	// ID 由發送端產生 (uuid)，echo 對帳用
	ID             string      `bson:"id" json:"id"`
	ConversationID string      `bson:"conversation_id" json:"chatRoomId"`
	SenderID       string      `bson:"sender_id" json:"from"`
	Kind           MessageKind `bson:"kind" json:"type"`
	Content        string      `bson:"content" json:"content"`
	CreatedAt      time.Time   `bson:"created_at" json:"date"`
	// Position 伺服器指定的絕對位置，optimistic 訊息為 nil
	Position *int64 `bson:"position,omitempty" json:"position,omitempty"`
}

// IsSequenced message carries a server assigned position
func (m Message) IsSequenced() bool {
	return m.Position != nil
}

// PositionOr return position or fallback when not sequenced
func (m Message) PositionOr(fallback int64) int64 {
	if m.Position == nil {
		return fallback
	}
	return *m.Position
}

// Clone copy message, position pointer included
func (m Message) Clone() Message {
	if m.Position != nil {
		p := *m.Position
		m.Position = &p
	}
	return m
}

// Int64Ptr helper for Position
func Int64Ptr(v int64) *int64 {
	return &v
}

// RoomUnreadInfo definition unread by room
type RoomUnreadInfo struct {
	RoomID      string `json:"room_id"`
	UnreadCount int64  `json:"unread_count"`
}
