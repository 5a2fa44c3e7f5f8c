package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"

	"github.com/stretchr/testify/require"
)

// fakeChannel in-memory channel, deliver() plays the router
type fakeChannel struct {
	mu           sync.Mutex
	handlers     map[string]map[int]func(domain.Event)
	next         int
	published    []domain.Event
	unsubscribed int
	subscribeErr error
	publishErr   error
	closed       bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string]map[int]func(domain.Event))}
}

func (c *fakeChannel) Publish(_ context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, ev)
	return c.publishErr
}

func (c *fakeChannel) Subscribe(_ context.Context, conversationID string, handler func(domain.Event)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	if c.handlers[conversationID] == nil {
		c.handlers[conversationID] = make(map[int]func(domain.Event))
	}
	id := c.next
	c.next++
	c.handlers[conversationID][id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[conversationID], id)
		c.unsubscribed++
	}, nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) deliver(ev domain.Event) {
	c.mu.Lock()
	hs := make([]func(domain.Event), 0)
	for _, h := range c.handlers[ev.ConversationID()] {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (c *fakeChannel) subscribers(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[conversationID])
}

func (c *fakeChannel) events(t domain.EventType) []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Event
	for _, ev := range c.published {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// fakeHistory in-memory history; gate blocks FetchConversation until closed
type fakeHistory struct {
	mu           sync.Mutex
	conv         *domain.Conversation
	messages     []domain.Message
	points       []domain.ReadPoint
	convErr      error
	msgErr       error
	pointsErr    error
	gate         chan struct{}
	messageCalls int
}

func (h *fakeHistory) FetchConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	if h.gate != nil {
		select {
		case <-h.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.convErr != nil {
		return nil, h.convErr
	}
	if h.conv == nil || h.conv.ID != id {
		return nil, errprocess.ErrConversationNotFound
	}
	c := *h.conv
	return &c, nil
}

func (h *fakeHistory) FetchMessages(_ context.Context, _ string, start, end int64) ([]domain.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messageCalls++
	if h.msgErr != nil {
		return nil, h.msgErr
	}
	var out []domain.Message
	for _, m := range h.messages {
		p := m.PositionOr(-1)
		if p >= start && p <= end {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, errprocess.ErrRangeUnavailable
	}
	return out, nil
}

func (h *fakeHistory) FetchReadPoints(context.Context, string) ([]domain.ReadPoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pointsErr != nil {
		return nil, h.pointsErr
	}
	return append([]domain.ReadPoint(nil), h.points...), nil
}

func (h *fakeHistory) fetchCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messageCalls
}

// newHistory conversation "room-1" with alice and bob and count sequenced messages from bob
func newHistory(count int) *fakeHistory {
	h := &fakeHistory{
		conv: &domain.Conversation{
			ID:           "room-1",
			Name:         "general",
			Participants: []domain.Participant{{ID: "alice", Name: "Alice"}, {ID: "bob", Name: "Bob"}},
			MessageCount: int64(count),
		},
	}
	for i := 0; i < count; i++ {
		h.messages = append(h.messages, sequenced(msgID(i), "bob", int64(i)))
	}
	return h
}

func msgID(i int) string {
	return "m" + string(rune('a'+i))
}

func sequenced(id, sender string, pos int64) domain.Message {
	return domain.Message{
		ID:             id,
		ConversationID: "room-1",
		SenderID:       sender,
		Kind:           domain.MessageKindNormal,
		Content:        "content " + id,
		CreatedAt:      time.Date(2024, 1, 1, 0, 0, int(pos), 0, time.UTC),
		Position:       domain.Int64Ptr(pos),
	}
}

func openSession(t *testing.T, ch *fakeChannel, h *fakeHistory, size int) (*Manager, *Session) {
	t.Helper()
	m := NewManager(ch, h, Options{WindowSize: size, FetchTimeout: time.Second})
	s, err := m.Open(context.Background(), "room-1", "alice")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown() })
	return m, s
}

func waitActive(t *testing.T, s *Session) *Snapshot {
	t.Helper()
	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not become active")
	}
	require.Eventually(t, func() bool {
		return s.Snapshot().State == StateActive
	}, time.Second, 5*time.Millisecond)
	return s.Snapshot()
}

// eventually wait until the latest snapshot satisfies cond
func eventually(t *testing.T, s *Session, cond func(*Snapshot) bool) *Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(s.Snapshot())
	}, 2*time.Second, 5*time.Millisecond)
	return s.Snapshot()
}

func ids(snap *Snapshot) []string {
	out := make([]string, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		out = append(out, m.ID)
	}
	return out
}
