package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType real-time channel event name
type EventType string

const (
	// EventMessage new message / echo
	EventMessage EventType = "message"
	// EventRead read pointer advance
	EventRead EventType = "read"
)

// ReadEvent read payload
type ReadEvent struct {
	ConversationID string `json:"chatRoomId"`
	UserID         string `json:"userId"`
	MessageIdx     int64  `json:"messageIdx"`
}

// Event envelope exchanged over the channel
type Event struct {
	Type    EventType  `json:"event"`
	Message *Message   `json:"message,omitempty"`
	Read    *ReadEvent `json:"read,omitempty"`
}

// NewMessageEvent wrap message
func NewMessageEvent(m Message) Event {
	return Event{Type: EventMessage, Message: &m}
}

// NewReadEvent wrap read advance
func NewReadEvent(conversationID, userID string, idx int64) Event {
	return Event{Type: EventRead, Read: &ReadEvent{ConversationID: conversationID, UserID: userID, MessageIdx: idx}}
}

// ConversationID conversation the event belongs to
func (e Event) ConversationID() string {
	switch e.Type {
	case EventMessage:
		if e.Message != nil {
			return e.Message.ConversationID
		}
	case EventRead:
		if e.Read != nil {
			return e.Read.ConversationID
		}
	}
	return ""
}

// Validate payload matches type
func (e Event) Validate() error {
	switch e.Type {
	case EventMessage:
		if e.Message == nil || e.Message.ID == "" || e.Message.ConversationID == "" {
			return errors.New("message event without id or chatRoomId")
		}
	case EventRead:
		if e.Read == nil || e.Read.UserID == "" || e.Read.ConversationID == "" {
			return errors.New("read event without userId or chatRoomId")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// EncodeEvent event to wire bytes
func EncodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent wire bytes to validated event
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
