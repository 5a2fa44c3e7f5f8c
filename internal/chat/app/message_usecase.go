package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// EventBus shared real-time channel (redis pub/sub)
type EventBus interface {
	Publish(ctx context.Context, ev domain.Event) error
	Subscribe(ctx context.Context, conversationID string, handler func(domain.Event)) (func(), error)
}

// SendMessageUseCase 負責排序、寫入並廣播聊天訊息
type SendMessageUseCase struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	readRepo repository.ReadPointRepository
	bus      EventBus
	archiver repository.MessageArchiver
	tx       repository.Transactor
}

// NewSendMessageUseCase init create message use case
func NewSendMessageUseCase(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	readRepo repository.ReadPointRepository,
	bus EventBus,
	archiver repository.MessageArchiver,
	tx repository.Transactor,
) *SendMessageUseCase {
	if archiver == nil {
		archiver = repository.NewNopArchiver()
	}
	if tx == nil {
		tx = repository.NewNopTransactor()
	}
	return &SendMessageUseCase{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		readRepo: readRepo,
		bus:      bus,
		archiver: archiver,
		tx:       tx,
	}
}

// Execute assign the next position, persist and echo the message.
// A resubmitted id is echoed again with its stored position.
func (uc *SendMessageUseCase) Execute(ctx context.Context, m domain.Message) (domain.Message, error) {
	if strings.TrimSpace(m.Content) == "" {
		return domain.Message{}, errprocess.ErrEmptyContent
	}

	// 1. 檢查聊天室與成員
	conv, err := uc.convRepo.FindByID(ctx, m.ConversationID)
	if err != nil {
		return domain.Message{}, err
	}
	if !conv.HasParticipant(m.SenderID) {
		return domain.Message{}, errprocess.ErrNotParticipant
	}

	// 2. 重送：已寫入過就只重新廣播
	stored, err := uc.msgRepo.FindByID(ctx, m.ConversationID, m.ID)
	switch {
	case err == nil:
		logger.Log.Debug("resubmitted message, echo again", zap.String("message_id", m.ID))
		uc.publish(ctx, domain.NewMessageEvent(*stored))
		return *stored, nil
	case !errors.Is(err, errprocess.ErrRangeUnavailable):
		return domain.Message{}, err
	}

	// 3. 取得位置並寫入，insert 失敗時位置一起 rollback
	m.CreatedAt = time.Now().UTC()
	if m.Kind == "" {
		m.Kind = domain.MessageKindNormal
	}
	err = uc.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		pos, err := uc.convRepo.NextPosition(txCtx, m.ConversationID)
		if err != nil {
			return err
		}
		m.Position = domain.Int64Ptr(pos)
		return uc.msgRepo.Insert(txCtx, &m)
	})
	if errors.Is(err, errprocess.ErrDuplicateMessage) {
		// 同一個 id 同時送兩次，另一筆已經寫入
		return uc.echoStored(ctx, m.ConversationID, m.ID)
	}
	if err != nil {
		return domain.Message{}, err
	}

	// 4. echo 給聊天室內所有 session（含發送者自己）
	uc.publish(ctx, domain.NewMessageEvent(m))

	if err := uc.archiver.Archive(ctx, m); err != nil {
		logger.Log.Error("archive message failed", zap.String("message_id", m.ID), zap.Error(err))
	}
	return m, nil
}

func (uc *SendMessageUseCase) echoStored(ctx context.Context, conversationID, messageID string) (domain.Message, error) {
	stored, err := uc.msgRepo.FindByID(ctx, conversationID, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	logger.Log.Debug("duplicate message id, echo stored", zap.String("message_id", messageID))
	uc.publish(ctx, domain.NewMessageEvent(*stored))
	return *stored, nil
}

// MarkRead - 已讀，read point 只會往前
func (uc *SendMessageUseCase) MarkRead(ctx context.Context, conversationID, userID string, position int64) error {
	if position < 0 {
		return errprocess.ErrInvalidRange
	}
	if err := uc.readRepo.Advance(ctx, conversationID, userID, position); err != nil {
		return err
	}
	uc.publish(ctx, domain.NewReadEvent(conversationID, userID, position))
	return nil
}

// GetCountUnreadMessages - get member all room un read message
func (uc *SendMessageUseCase) GetCountUnreadMessages(ctx context.Context, userID string) ([]domain.RoomUnreadInfo, error) {
	convs, err := uc.convRepo.FindByMember(ctx, userID)
	if err != nil {
		return nil, err
	}

	infos := make([]domain.RoomUnreadInfo, 0, len(convs))
	for _, c := range convs {
		last := domain.NoPosition
		p, err := uc.readRepo.Find(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			last = p.LastReadPosition
		}
		unread := c.MessageCount - 1 - last
		if unread < 0 {
			unread = 0
		}
		infos = append(infos, domain.RoomUnreadInfo{RoomID: c.ID, UnreadCount: unread})
	}
	return infos, nil
}

func (uc *SendMessageUseCase) publish(ctx context.Context, ev domain.Event) {
	if err := uc.bus.Publish(ctx, ev); err != nil {
		logger.Log.Error("Publish error",
			zap.String("conversation_id", ev.ConversationID()),
			zap.String("event", string(ev.Type)),
			zap.Error(err))
	}
}
