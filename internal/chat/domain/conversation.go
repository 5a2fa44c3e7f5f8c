package domain

import "time"

// Participant conversation member with display metadata
type Participant struct {
	ID   string `bson:"id" json:"_id"`
	Name string `bson:"name" json:"name"`
}

// Conversation chat room metadata
type Conversation struct {
	ID           string        `bson:"_id" json:"_id"`
	Name         string        `bson:"name,omitempty" json:"name"`
	Participants []Participant `bson:"participants" json:"participants"`
	// MessageCount 只增不減
	MessageCount int64     `bson:"message_count" json:"length"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
}

// HasParticipant check member in conversation
func (c *Conversation) HasParticipant(id string) bool {
	for _, p := range c.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

// ParticipantName display name, falls back to id
func (c *Conversation) ParticipantName(id string) string {
	for _, p := range c.Participants {
		if p.ID == id && p.Name != "" {
			return p.Name
		}
	}
	return id
}

// ParticipantIDs ids of all participants
func (c *Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}

// ReadPoint per participant read pointer
type ReadPoint struct {
	ConversationID   string `bson:"conversation_id" json:"chatRoomId"`
	ParticipantID    string `bson:"participant_id" json:"id"`
	LastReadPosition int64  `bson:"last_read_position" json:"read"`
}

// NoPosition sentinel for "nothing read / nothing loaded"
const NoPosition int64 = -1

// Window contiguous range of absolute positions materialized locally, inclusive.
// End == NoPosition means nothing is materialized.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// EmptyWindow window with no materialized messages
func EmptyWindow() Window {
	return Window{Start: 0, End: NoPosition}
}

// IsEmpty nothing materialized
func (w Window) IsEmpty() bool {
	return w.End < w.Start
}

// LatestWindow the last size positions of a conversation with count messages.
// count == 0 gives an empty window (End == -1).
func LatestWindow(count int64, size int) Window {
	if count <= 0 {
		return EmptyWindow()
	}
	start := count - int64(size)
	if start < 0 {
		start = 0
	}
	return Window{Start: start, End: count - 1}
}
