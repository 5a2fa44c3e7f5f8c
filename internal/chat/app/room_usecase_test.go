package app

import (
	"context"
	"testing"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRoomUseCase_CreateConversation(t *testing.T) {
	ctx := context.Background()
	repo := new(MockConversationRepository)
	uc := NewRoomUseCase(repo)

	repo.On("Create", ctx, mock.AnythingOfType("*domain.Conversation")).Return(nil)

	conv, err := uc.CreateConversation(ctx, "Go Club", "alice", []string{"bob", "alice", "", "carol"})

	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "Go Club", conv.Name)
	assert.Equal(t, []string{"alice", "bob", "carol"}, conv.ParticipantIDs())
	assert.Equal(t, int64(0), conv.MessageCount)
	repo.AssertExpectations(t)
}

func TestRoomUseCase_JoinConversation(t *testing.T) {
	ctx := context.Background()
	repo := new(MockConversationRepository)
	uc := NewRoomUseCase(repo)

	repo.On("AddParticipant", ctx, "room", domain.Participant{ID: "bob", Name: "bob"}).Return(nil)

	assert.NoError(t, uc.JoinConversation(ctx, "room", "bob"))
	assert.Error(t, uc.JoinConversation(ctx, "room", ""))
	repo.AssertExpectations(t)
}

func TestRoomUseCase_ExitConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("member leaves", func(t *testing.T) {
		repo := new(MockConversationRepository)
		uc := NewRoomUseCase(repo)
		repo.On("FindByID", ctx, "room").Return(room("room", 0, "alice", "bob"), nil)
		repo.On("RemoveParticipant", ctx, "room", "bob").Return(nil)

		assert.NoError(t, uc.ExitConversation(ctx, "room", "bob"))
		repo.AssertExpectations(t)
	})

	t.Run("not a member", func(t *testing.T) {
		repo := new(MockConversationRepository)
		uc := NewRoomUseCase(repo)
		repo.On("FindByID", ctx, "room").Return(room("room", 0, "alice"), nil)

		assert.ErrorIs(t, uc.ExitConversation(ctx, "room", "bob"), errprocess.ErrNotParticipant)
		repo.AssertNotCalled(t, "RemoveParticipant", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRoomUseCase_CheckParticipant(t *testing.T) {
	ctx := context.Background()
	repo := new(MockConversationRepository)
	uc := NewRoomUseCase(repo)
	repo.On("FindByID", ctx, "room").Return(room("room", 0, "alice"), nil)
	repo.On("FindByID", ctx, "gone").Return(nil, errprocess.ErrConversationNotFound)

	conv, err := uc.CheckParticipant(ctx, "room", "alice")
	require.NoError(t, err)
	assert.Equal(t, "room", conv.ID)

	_, err = uc.CheckParticipant(ctx, "room", "mallory")
	assert.ErrorIs(t, err, errprocess.ErrNotParticipant)

	_, err = uc.CheckParticipant(ctx, "gone", "alice")
	assert.ErrorIs(t, err, errprocess.ErrConversationNotFound)
}

func TestRoomUseCase_ListConversations(t *testing.T) {
	ctx := context.Background()
	repo := new(MockConversationRepository)
	uc := NewRoomUseCase(repo)

	repo.On("FindByMember", ctx, "alice").Return([]*domain.Conversation{
		{ID: "r1", Name: "Go Club", MessageCount: 7},
		{ID: "r2", Name: "lunch"},
	}, nil)

	convs, err := uc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)

	assert.Equal(t, []map[string]interface{}{
		{"room_id": "r1", "name": "Go Club", "length": int64(7)},
		{"room_id": "r2", "name": "lunch", "length": int64(0)},
	}, roomSummaries(convs))
	assert.Empty(t, roomSummaries(nil))
	repo.AssertExpectations(t)
}
