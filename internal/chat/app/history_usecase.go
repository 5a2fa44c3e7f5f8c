package app

import (
	"context"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// HistoryUseCase durable history read side, used by sync sessions and the history API
type HistoryUseCase struct {
	convRepo  repository.ConversationRepository
	msgRepo   repository.MessageRepository
	readRepo  repository.ReadPointRepository
	directory repository.ParticipantDirectory
}

// NewHistoryUseCase directory may be nil, then stored participant names are used
func NewHistoryUseCase(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	readRepo repository.ReadPointRepository,
	directory repository.ParticipantDirectory,
) *HistoryUseCase {
	return &HistoryUseCase{
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		readRepo:  readRepo,
		directory: directory,
	}
}

// FetchConversation metadata with display names resolved
func (uc *HistoryUseCase) FetchConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if uc.directory == nil {
		return conv, nil
	}

	names, err := uc.directory.FindDisplayNames(ctx, conv.ParticipantIDs())
	if err != nil {
		// 名稱只是顯示用，查不到就用原本的
		logger.Log.Warn("resolve participant names", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	for i, p := range conv.Participants {
		if name, ok := names[p.ID]; ok {
			conv.Participants[i].Name = name
		}
	}
	return conv, nil
}

// FetchMessages messages in [start, end]
func (uc *HistoryUseCase) FetchMessages(ctx context.Context, conversationID string, start, end int64) ([]domain.Message, error) {
	return uc.msgRepo.FindRange(ctx, conversationID, start, end)
}

// FetchReadPoints read points of every participant
func (uc *HistoryUseCase) FetchReadPoints(ctx context.Context, conversationID string) ([]domain.ReadPoint, error) {
	return uc.readRepo.FindByConversation(ctx, conversationID)
}
