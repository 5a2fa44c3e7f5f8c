package engine

import (
	"context"
	"errors"
	"time"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"
)

// DefaultWindowSize messages loaded on open
const DefaultWindowSize = 50

// WindowResult outcome of an initial or scroll-back load
type WindowResult struct {
	Conversation *domain.Conversation
	Window       domain.Window
	Messages     []domain.Message
	ReadPoints   []domain.ReadPoint
	// Err ErrHistoryFetchFailed wrapped cause, nil on success
	Err error
}

// WindowLoader fetches the most recent bounded window of history
type WindowLoader struct {
	history HistoryFetcher
	size    int
	timeout time.Duration
}

// NewWindowLoader create loader, size <= 0 means DefaultWindowSize, timeout <= 0 means none
func NewWindowLoader(history HistoryFetcher, size int, timeout time.Duration) *WindowLoader {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &WindowLoader{history: history, size: size, timeout: timeout}
}

func (w *WindowLoader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout > 0 {
		return context.WithTimeout(ctx, w.timeout)
	}
	return context.WithCancel(ctx)
}

// Initial load metadata, the latest window and read points.
// No message fetch is issued for an empty conversation.
func (w *WindowLoader) Initial(ctx context.Context, conversationID string) WindowResult {
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	conv, err := w.history.FetchConversation(ctx, conversationID)
	if err != nil {
		return WindowResult{Err: errprocess.Wrap(errprocess.ErrHistoryFetchFailed, err)}
	}

	res := WindowResult{Conversation: conv, Window: domain.LatestWindow(conv.MessageCount, w.size)}

	if !res.Window.IsEmpty() {
		msgs, err := w.history.FetchMessages(ctx, conversationID, res.Window.Start, res.Window.End)
		switch {
		case errors.Is(err, errprocess.ErrRangeUnavailable):
			res.Window = domain.EmptyWindow()
		case err != nil:
			return WindowResult{Conversation: conv, Err: errprocess.Wrap(errprocess.ErrHistoryFetchFailed, err)}
		default:
			res.Messages = msgs
		}
	}

	points, err := w.history.FetchReadPoints(ctx, conversationID)
	if err != nil {
		return WindowResult{Conversation: conv, Err: errprocess.Wrap(errprocess.ErrHistoryFetchFailed, err)}
	}
	res.ReadPoints = points
	return res
}

// Older load up to count messages before position before (scroll-back)
func (w *WindowLoader) Older(ctx context.Context, conversationID string, before int64, count int) WindowResult {
	if count <= 0 {
		count = w.size
	}
	end := before - 1
	if end < 0 {
		return WindowResult{Window: domain.EmptyWindow()}
	}
	start := end - int64(count) + 1
	if start < 0 {
		start = 0
	}

	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	msgs, err := w.history.FetchMessages(ctx, conversationID, start, end)
	if errors.Is(err, errprocess.ErrRangeUnavailable) {
		return WindowResult{Window: domain.EmptyWindow()}
	}
	if err != nil {
		return WindowResult{Err: errprocess.Wrap(errprocess.ErrHistoryFetchFailed, err)}
	}
	return WindowResult{Window: domain.Window{Start: start, End: end}, Messages: msgs}
}
