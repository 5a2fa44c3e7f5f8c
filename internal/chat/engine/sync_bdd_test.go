package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chat_sync_service/internal/chat/domain"

	"github.com/cucumber/godog"
)

type syncWorld struct {
	ch       *fakeChannel
	history  *fakeHistory
	manager  *Manager
	session  *Session
	gate     chan struct{}
	lastSent domain.Message
}

// waitFor poll the session snapshot
func (w *syncWorld) waitFor(cond func(*Snapshot) bool, what string) error {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := w.session.Snapshot(); snap != nil && cond(snap) {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %s", what)
}

func (w *syncWorld) aConversationWithMessages(id string, count int) error {
	w.ch = newFakeChannel()
	w.history = newHistory(count)
	w.history.conv.ID = id
	return nil
}

func (w *syncWorld) theHistoryFetchIsSlow() error {
	w.gate = make(chan struct{})
	w.history.gate = w.gate
	return nil
}

func (w *syncWorld) opensTheConversation(participant string) error {
	w.manager = NewManager(w.ch, w.history, Options{WindowSize: 50})
	s, err := w.manager.Open(context.Background(), w.history.conv.ID, participant)
	if err != nil {
		return err
	}
	w.session = s
	if w.gate != nil {
		return nil
	}
	return w.waitFor(func(s *Snapshot) bool { return s.State == StateActive }, "active session")
}

func (w *syncWorld) noHistoryFetchWasIssued() error {
	if n := w.history.fetchCalls(); n != 0 {
		return fmt.Errorf("expected no message fetch, got %d", n)
	}
	return nil
}

func (w *syncWorld) sends(_ string, content string) error {
	m, err := w.session.Send(context.Background(), content)
	if err != nil {
		return err
	}
	w.lastSent = m
	return nil
}

func (w *syncWorld) theServerEchoesTheLastSentMessageAtPosition(pos int) error {
	echo := w.lastSent
	echo.Position = domain.Int64Ptr(int64(pos))
	w.ch.deliver(domain.NewMessageEvent(echo))
	return w.waitFor(func(s *Snapshot) bool {
		v, ok := s.Message(echo.ID)
		return ok && v.Position != nil
	}, "echo applied")
}

func (w *syncWorld) readsUpToPosition(participant string, pos int) error {
	w.ch.deliver(domain.NewReadEvent(w.session.ConversationID(), participant, int64(pos)))
	return nil
}

func (w *syncWorld) hasReadUpToPosition(participant string, pos int) error {
	// MarkRead 排在前面的事件之後
	if err := w.session.MarkRead(context.Background(), -1); err != nil {
		return err
	}
	if got := w.session.Snapshot().LastRead(participant); got != int64(pos) {
		return fmt.Errorf("expected %s at %d, got %d", participant, pos, got)
	}
	return nil
}

func (w *syncWorld) postsAMessageAtPosition(participant string, pos int) error {
	m := sequenced(fmt.Sprintf("live-%d", pos), participant, int64(pos))
	m.ConversationID = w.session.ConversationID()
	w.ch.deliver(domain.NewMessageEvent(m))
	return nil
}

func (w *syncWorld) theHistoryFetchCompletes() error {
	close(w.gate)
	return w.waitFor(func(s *Snapshot) bool { return s.State == StateActive }, "active session")
}

func (w *syncWorld) theLogHasEntries(n int) error {
	return w.waitFor(func(s *Snapshot) bool { return len(s.Messages) == n }, fmt.Sprintf("%d entries", n))
}

func (w *syncWorld) theMessageHasPosition(content string, pos int) error {
	for _, m := range w.session.Snapshot().Messages {
		if m.Content != content {
			continue
		}
		if m.Position == nil || *m.Position != int64(pos) {
			return fmt.Errorf("message %q position %v, want %d", content, m.Position, pos)
		}
		return nil
	}
	return fmt.Errorf("message %q not found", content)
}

func (w *syncWorld) noMessageAppearsTwice() error {
	seen := make(map[string]struct{})
	for _, m := range w.session.Snapshot().Messages {
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("duplicate message %s", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

// InitializeSyncScenario register steps of features/sync.feature
func InitializeSyncScenario(ctx *godog.ScenarioContext) {
	w := &syncWorld{}

	ctx.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		if w.manager != nil {
			_ = w.manager.Shutdown()
		}
		return ctx, nil
	})

	ctx.Step(`^a conversation "([^"]*)" with (\d+) messages$`, w.aConversationWithMessages)
	ctx.Step(`^the history fetch is slow$`, w.theHistoryFetchIsSlow)
	ctx.Step(`^"([^"]*)" opens the conversation$`, w.opensTheConversation)
	ctx.Step(`^no history fetch was issued$`, w.noHistoryFetchWasIssued)
	ctx.Step(`^"([^"]*)" sends "([^"]*)"$`, w.sends)
	ctx.Step(`^the server echoes the last sent message at position (\d+)$`, w.theServerEchoesTheLastSentMessageAtPosition)
	ctx.Step(`^"([^"]*)" reads up to position (\d+)$`, w.readsUpToPosition)
	ctx.Step(`^"([^"]*)" has read up to position (\d+)$`, w.hasReadUpToPosition)
	ctx.Step(`^"([^"]*)" posts a message at position (\d+)$`, w.postsAMessageAtPosition)
	ctx.Step(`^the history fetch completes$`, w.theHistoryFetchCompletes)
	ctx.Step(`^the log has (\d+) entries$`, w.theLogHasEntries)
	ctx.Step(`^the message "([^"]*)" has position (\d+)$`, w.theMessageHasPosition)
	ctx.Step(`^no message appears twice$`, w.noMessageAppearsTwice)
}

func TestSyncFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "sync",
		ScenarioInitializer: InitializeSyncScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("sync feature scenarios failed")
	}
}
