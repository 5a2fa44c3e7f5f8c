package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg"
	errprocess "chat_sync_service/pkg/err"
)

// RoomUseCase - 聊天室的建立、加入與離開
type RoomUseCase struct {
	convRepo repository.ConversationRepository
}

// NewRoomUseCase init room ues case
func NewRoomUseCase(r repository.ConversationRepository) *RoomUseCase {
	return &RoomUseCase{
		convRepo: r,
	}
}

// CreateConversation create room, creator is always a participant
func (uc *RoomUseCase) CreateConversation(ctx context.Context, name, creatorID string, members []string) (*domain.Conversation, error) {
	ids := []string{creatorID}
	for _, m := range members {
		if m != "" {
			ids = pkg.AppendIfNotExists(ids, m)
		}
	}

	conv := &domain.Conversation{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	for _, id := range ids {
		conv.Participants = append(conv.Participants, domain.Participant{ID: id, Name: id})
	}

	if err := uc.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// JoinConversation join room
func (uc *RoomUseCase) JoinConversation(ctx context.Context, conversationID, userID string) error {
	if userID == "" {
		return errprocess.Set("member id is empty")
	}
	return uc.convRepo.AddParticipant(ctx, conversationID, domain.Participant{ID: userID, Name: userID})
}

// ExitConversation member exit room
func (uc *RoomUseCase) ExitConversation(ctx context.Context, conversationID, userID string) error {
	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return errprocess.ErrNotParticipant
	}
	return uc.convRepo.RemoveParticipant(ctx, conversationID, userID)
}

// CheckParticipant conversation exists and userID belongs to it
func (uc *RoomUseCase) CheckParticipant(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errprocess.ErrNotParticipant
	}
	return conv, nil
}

// ListConversations rooms of a member
func (uc *RoomUseCase) ListConversations(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	return uc.convRepo.FindByMember(ctx, userID)
}
