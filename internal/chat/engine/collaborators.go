package engine

import (
	"context"

	"chat_sync_service/internal/chat/domain"
)

// HistoryFetcher durable history collaborator
type HistoryFetcher interface {
	// FetchConversation metadata incl. message count and participants
	FetchConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	// FetchMessages ordered messages in [start, end] inclusive; ErrRangeUnavailable when nothing exists
	FetchMessages(ctx context.Context, conversationID string, start, end int64) ([]domain.Message, error)
	// FetchReadPoints current read pointers of all participants
	FetchReadPoints(ctx context.Context, conversationID string) ([]domain.ReadPoint, error)
}

// Channel shared real-time event channel.
// Subscribe must not return before the subscription is active; the returned func
// removes only this subscription.
type Channel interface {
	Publish(ctx context.Context, ev domain.Event) error
	Subscribe(ctx context.Context, conversationID string, handler func(domain.Event)) (unsubscribe func(), err error)
}
