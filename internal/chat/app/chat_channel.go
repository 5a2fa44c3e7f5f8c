package app

import (
	"context"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// ChatChannel engine channel backed by the sequencer.
// Outbound messages and reads go through SendMessageUseCase, which persists them
// and publishes the authoritative event on the bus; inbound events come from the bus.
type ChatChannel struct {
	messageUC *SendMessageUseCase
	bus       EventBus
}

// NewChatChannel create ChatChannel
func NewChatChannel(messageUC *SendMessageUseCase, bus EventBus) *ChatChannel {
	return &ChatChannel{messageUC: messageUC, bus: bus}
}

// Publish route an outbound event to the sequencer
func (c *ChatChannel) Publish(ctx context.Context, ev domain.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	switch ev.Type {
	case domain.EventMessage:
		m, err := c.messageUC.Execute(ctx, *ev.Message)
		if err != nil {
			return err
		}
		logger.Log.Debug("message sequenced", zap.String("message_id", m.ID), zap.Int64("position", m.PositionOr(-1)))
		return nil
	default:
		return c.messageUC.MarkRead(ctx, ev.Read.ConversationID, ev.Read.UserID, ev.Read.MessageIdx)
	}
}

// Subscribe inbound events of a conversation
func (c *ChatChannel) Subscribe(ctx context.Context, conversationID string, handler func(domain.Event)) (func(), error) {
	return c.bus.Subscribe(ctx, conversationID, handler)
}

// Close close the bus when it is closable
func (c *ChatChannel) Close() error {
	if closer, ok := c.bus.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
