package engine

import (
	"fmt"

	"chat_sync_service/internal/chat/domain"
)

// State session lifecycle state
type State int32

const (
	// StateConnecting subscription or initial load still in flight
	StateConnecting State = iota
	// StateActive live events applied as they arrive
	StateActive
	// StateClosed terminal
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// MarshalText json as the state name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MessageView message with the display data a viewer renders
type MessageView struct {
	domain.Message
	// Index absolute position, the window start offset for unsequenced entries
	Index       int64  `json:"index"`
	SenderName  string `json:"senderName"`
	UnreadCount int    `json:"unreadCount"`
	Pending     bool   `json:"pending"`
}

// Snapshot immutable view of a session, safe to share between goroutines
type Snapshot struct {
	SessionID          string               `json:"sessionId"`
	ConversationID     string               `json:"chatRoomId"`
	Name               string               `json:"name"`
	Participants       []domain.Participant `json:"participants"`
	State              State                `json:"state"`
	Window             domain.Window        `json:"window"`
	Messages           []MessageView        `json:"messages"`
	ReadPoints         []domain.ReadPoint   `json:"readPoints"`
	HistoryUnavailable bool                 `json:"historyUnavailable"`
	// Version increases with every published snapshot of the session
	Version uint64 `json:"version"`
}

// Message find view by id
func (s *Snapshot) Message(id string) (MessageView, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return MessageView{}, false
}

// LastRead read pointer of participant, NoPosition when unknown
func (s *Snapshot) LastRead(participantID string) int64 {
	for _, p := range s.ReadPoints {
		if p.ParticipantID == participantID {
			return p.LastReadPosition
		}
	}
	return domain.NoPosition
}
