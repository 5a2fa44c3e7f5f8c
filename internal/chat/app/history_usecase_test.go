package app

import (
	"context"
	"errors"
	"testing"

	"chat_sync_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryUseCase_FetchConversationResolvesNames(t *testing.T) {
	ctx := context.Background()
	convRepo := new(MockConversationRepository)
	dir := new(MockDirectory)
	uc := NewHistoryUseCase(convRepo, new(MockMessageRepository), new(MockReadPointRepository), dir)

	convRepo.On("FindByID", ctx, "room").Return(room("room", 2, "alice", "bob"), nil)
	dir.On("FindDisplayNames", ctx, []string{"alice", "bob"}).Return(map[string]string{"alice": "Alice"}, nil)

	conv, err := uc.FetchConversation(ctx, "room")

	require.NoError(t, err)
	assert.Equal(t, "Alice", conv.ParticipantName("alice"))
	assert.Equal(t, "bob", conv.ParticipantName("bob"))
}

// directory 掛掉時仍回傳聊天室
func TestHistoryUseCase_FetchConversationDirectoryDown(t *testing.T) {
	ctx := context.Background()
	convRepo := new(MockConversationRepository)
	dir := new(MockDirectory)
	uc := NewHistoryUseCase(convRepo, new(MockMessageRepository), new(MockReadPointRepository), dir)

	convRepo.On("FindByID", ctx, "room").Return(room("room", 2, "alice"), nil)
	dir.On("FindDisplayNames", ctx, []string{"alice"}).Return(nil, errors.New("pg down"))

	conv, err := uc.FetchConversation(ctx, "room")

	require.NoError(t, err)
	assert.Equal(t, int64(2), conv.MessageCount)
}

func TestHistoryUseCase_FetchMessagesAndPoints(t *testing.T) {
	ctx := context.Background()
	msgRepo := new(MockMessageRepository)
	readRepo := new(MockReadPointRepository)
	uc := NewHistoryUseCase(new(MockConversationRepository), msgRepo, readRepo, nil)

	msgs := []domain.Message{{ID: "a", Position: domain.Int64Ptr(0)}}
	msgRepo.On("FindRange", ctx, "room", int64(0), int64(9)).Return(msgs, nil)
	readRepo.On("FindByConversation", ctx, "room").Return([]domain.ReadPoint{{ParticipantID: "bob", LastReadPosition: 0}}, nil)

	got, err := uc.FetchMessages(ctx, "room", 0, 9)
	require.NoError(t, err)
	assert.Equal(t, msgs, got)

	points, err := uc.FetchReadPoints(ctx, "room")
	require.NoError(t, err)
	assert.Len(t, points, 1)
}
