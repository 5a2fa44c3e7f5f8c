package engine

import (
	"sort"

	"chat_sync_service/internal/chat/domain"
)

// ReadTracker last read position per participant, only ever moves forward
type ReadTracker struct {
	conversationID string
	points         map[string]int64
}

// NewReadTracker create tracker for one conversation
func NewReadTracker(conversationID string) *ReadTracker {
	return &ReadTracker{
		conversationID: conversationID,
		points:         make(map[string]int64),
	}
}

// Track start tracking a participant with nothing read yet, no-op when already tracked
func (t *ReadTracker) Track(participantID string) {
	if _, ok := t.points[participantID]; !ok {
		t.points[participantID] = domain.NoPosition
	}
}

// RecordRead set lastRead = max(current, position). Returns true when the pointer moved.
// Regressions (out of order delivery) are ignored.
func (t *ReadTracker) RecordRead(participantID string, position int64) bool {
	cur, ok := t.points[participantID]
	if !ok {
		cur = domain.NoPosition
		t.points[participantID] = cur
	}
	if position <= cur {
		return false
	}
	t.points[participantID] = position
	return true
}

// Seed apply fetched read points, monotonic like RecordRead
func (t *ReadTracker) Seed(points []domain.ReadPoint) {
	for _, p := range points {
		t.RecordRead(p.ParticipantID, p.LastReadPosition)
	}
}

// LastRead read pointer of participant
func (t *ReadTracker) LastRead(participantID string) (int64, bool) {
	p, ok := t.points[participantID]
	return p, ok
}

// UnreadCountFor number of tracked participants, other than excluding, with lastRead < position
func (t *ReadTracker) UnreadCountFor(position int64, excluding string) int {
	n := 0
	for id, last := range t.points {
		if id == excluding {
			continue
		}
		if last < position {
			n++
		}
	}
	return n
}

// Points snapshot sorted by participant id
func (t *ReadTracker) Points() []domain.ReadPoint {
	out := make([]domain.ReadPoint, 0, len(t.points))
	for id, last := range t.points {
		out = append(out, domain.ReadPoint{
			ConversationID:   t.conversationID,
			ParticipantID:    id,
			LastReadPosition: last,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}
