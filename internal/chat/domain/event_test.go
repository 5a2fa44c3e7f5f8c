package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventMessageWireShape(t *testing.T) {
	raw := `{"event":"message","message":{"id":"m1","chatRoomId":"room-1","from":"alice","type":"normal","content":"hi","date":"2026-01-02T03:04:05Z","position":7}}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, EventMessage, ev.Type)
	assert.Equal(t, "room-1", ev.ConversationID())
	assert.Equal(t, "alice", ev.Message.SenderID)
	assert.Equal(t, MessageKindNormal, ev.Message.Kind)
	require.True(t, ev.Message.IsSequenced())
	assert.Equal(t, int64(7), *ev.Message.Position)
	assert.True(t, ev.Message.CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestDecodeEventRead(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event":"read","read":{"chatRoomId":"room-1","userId":"bob","messageIdx":4}}`))
	require.NoError(t, err)
	assert.Equal(t, "room-1", ev.ConversationID())
	assert.Equal(t, int64(4), ev.Read.MessageIdx)
}

func TestDecodeEventRejectsInvalid(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"event":"typing"}`,
		`{"event":"message"}`,
		`{"event":"read","read":{"chatRoomId":"room-1"}}`,
	} {
		_, err := DecodeEvent([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestOptimisticMessageOmitsPosition(t *testing.T) {
	data, err := EncodeEvent(NewMessageEvent(Message{ID: "m1", ConversationID: "room-1"}))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "position")
}

func TestLatestWindow(t *testing.T) {
	assert.Equal(t, Window{Start: 0, End: -1}, LatestWindow(0, 50))
	assert.True(t, LatestWindow(0, 50).IsEmpty())
	assert.Equal(t, Window{Start: 0, End: 9}, LatestWindow(10, 50))
	assert.Equal(t, Window{Start: 70, End: 119}, LatestWindow(120, 50))
}
