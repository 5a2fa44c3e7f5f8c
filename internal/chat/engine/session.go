package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options session tuning
type Options struct {
	// WindowSize messages loaded on open
	WindowSize int
	// FetchTimeout per history load, 0 means bounded only by the session lifetime
	FetchTimeout time.Duration
	// PublishTimeout per outbound event
	PublishTimeout time.Duration
}

const defaultPublishTimeout = 5 * time.Second

// Session one participant's live view of one conversation.
// All mutable state is owned by the event loop goroutine.
type Session struct {
	id             string
	conversationID string
	localID        string

	channel Channel
	loader  *WindowLoader
	opts    Options

	// loop owned
	log                *MessageLog
	reads              *ReadTracker
	reconciler         *Reconciler
	conversation       *domain.Conversation
	historyUnavailable bool
	loaded             bool
	held               []domain.Event
	version            uint64

	state    atomic.Int32
	inbox    *mailbox[func()]
	outbox   *mailbox[domain.Event]
	snapshot atomic.Pointer[Snapshot]
	updates  chan *Snapshot
	ready    chan struct{}
	done     chan struct{}

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
	onClose     func(*Session)
}

func newSession(conversationID, participantID string, channel Channel, history HistoryFetcher, opts Options) *Session {
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:             uuid.NewString(),
		conversationID: conversationID,
		localID:        participantID,
		channel:        channel,
		loader:         NewWindowLoader(history, opts.WindowSize, opts.FetchTimeout),
		opts:           opts,
		log:            NewMessageLog(),
		reads:          NewReadTracker(conversationID),
		reconciler:     NewReconciler(participantID),
		inbox:          newMailbox[func()](),
		outbox:         newMailbox[domain.Event](),
		updates:        make(chan *Snapshot, 1),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}
	s.state.Store(int32(StateConnecting))
	s.reads.Track(participantID)
	return s
}

// ID session id
func (s *Session) ID() string {
	return s.id
}

// ConversationID conversation viewed
func (s *Session) ConversationID() string {
	return s.conversationID
}

// ParticipantID local participant
func (s *Session) ParticipantID() string {
	return s.localID
}

// State current lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

// Snapshot latest published view
func (s *Session) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Updates latest-wins stream of snapshots, closed once the session is closed
func (s *Session) Updates() <-chan *Snapshot {
	return s.updates
}

// Ready closed when the session leaves Connecting
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Done closed when the event loop has exited
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// open subscribe first, then load; events arriving in between are held
func (s *Session) open(ctx context.Context) error {
	s.publishSnapshot()
	go s.run()
	go s.flush()

	unsubscribe, err := s.channel.Subscribe(ctx, s.conversationID, s.receive)
	if err != nil {
		s.Close()
		return err
	}
	s.unsubscribe = unsubscribe

	go func() {
		res := s.loader.Initial(s.ctx, s.conversationID)
		s.enqueue("initial_load", func() { s.applyInitial(res) })
	}()
	return nil
}

// receive channel handler, runs on the channel router goroutine and never blocks
func (s *Session) receive(ev domain.Event) {
	if ev.ConversationID() != s.conversationID {
		return
	}
	s.enqueue("event", func() { s.dispatch(ev) })
}

func (s *Session) enqueue(what string, fn func()) {
	if !s.inbox.push(fn) {
		logger.Log.Debug(errprocess.ErrStaleSessionWrite.Error(),
			zap.String("session_id", s.id),
			zap.String("conversation_id", s.conversationID),
			zap.String("op", what))
	}
}

// run event loop
func (s *Session) run() {
	defer close(s.done)
	defer close(s.updates)

	for {
		<-s.inbox.ready()
		ops, closed := s.inbox.drain()
		for _, op := range ops {
			if s.State() == StateClosed {
				break
			}
			op()
		}
		if closed {
			s.publishSnapshot()
			return
		}
	}
}

// flush outbox goroutine, publishes in order until closed and drained
func (s *Session) flush() {
	for {
		<-s.outbox.ready()
		events, closed := s.outbox.drain()
		for _, ev := range events {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.PublishTimeout)
			if err := s.channel.Publish(ctx, ev); err != nil {
				logger.Log.Error("publish event failed",
					zap.String("session_id", s.id),
					zap.String("conversation_id", s.conversationID),
					zap.String("event", string(ev.Type)),
					zap.Error(err))
			}
			cancel()
		}
		if closed {
			return
		}
	}
}

func (s *Session) emit(ev domain.Event) {
	if !s.outbox.push(ev) {
		logger.Log.Debug("outbox closed, event dropped",
			zap.String("session_id", s.id),
			zap.String("event", string(ev.Type)))
	}
}

func (s *Session) applyInitial(res WindowResult) {
	if res.Err != nil && errors.Is(s.ctx.Err(), context.Canceled) {
		logger.Log.Debug(errprocess.ErrStaleSessionWrite.Error(), zap.String("session_id", s.id))
		return
	}

	if res.Conversation != nil {
		s.conversation = res.Conversation
		for _, id := range res.Conversation.ParticipantIDs() {
			s.reads.Track(id)
		}
	}

	if res.Err != nil {
		s.historyUnavailable = true
		logger.Log.Warn("history unavailable, continuing with live events only",
			zap.String("session_id", s.id),
			zap.String("conversation_id", s.conversationID),
			zap.Error(res.Err))
	} else {
		if !res.Window.IsEmpty() {
			if err := s.log.LoadWindow(res.Window.Start, res.Window.End, res.Messages); err != nil {
				logger.Log.Debug("initial window empty", zap.String("conversation_id", s.conversationID))
			}
		}
		s.reads.Seed(res.ReadPoints)
		if res.Window.End >= 0 && s.reads.RecordRead(s.localID, res.Window.End) {
			s.emit(domain.NewReadEvent(s.conversationID, s.localID, res.Window.End))
		}
	}

	s.loaded = true
	held := s.held
	s.held = nil
	for _, ev := range held {
		s.apply(ev)
	}

	// Close 可能已經先一步把狀態設成 closed
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
	close(s.ready)
	logger.Log.Info("session active",
		zap.String("session_id", s.id),
		zap.String("conversation_id", s.conversationID),
		zap.String("participant_id", s.localID),
		zap.Int("messages", s.log.Len()),
		zap.Bool("history_unavailable", s.historyUnavailable))
	s.publishSnapshot()
}

// dispatch live event, held while the initial load is in flight
func (s *Session) dispatch(ev domain.Event) {
	if !s.loaded {
		s.held = append(s.held, ev)
		return
	}
	s.apply(ev)
	s.publishSnapshot()
}

func (s *Session) apply(ev domain.Event) {
	switch ev.Type {
	case domain.EventMessage:
		m := *ev.Message
		s.reads.Track(m.SenderID)
		outcome := s.reconciler.Reconcile(s.log, m)
		logger.Log.Debug("message applied",
			zap.String("session_id", s.id),
			zap.String("message_id", m.ID),
			zap.String("outcome", outcome.String()))
		if outcome != OutcomeRedelivered {
			s.readOnArrival()
		}
	case domain.EventRead:
		s.reads.RecordRead(ev.Read.UserID, ev.Read.MessageIdx)
	}
}

// readOnArrival local pointer follows the window end while the view is open
func (s *Session) readOnArrival() {
	end := s.log.Window().End
	if end < 0 {
		return
	}
	if s.reads.RecordRead(s.localID, end) {
		s.emit(domain.NewReadEvent(s.conversationID, s.localID, end))
	}
}

// do run fn on the event loop and wait for its result
func (s *Session) do(ctx context.Context, what string, fn func() error) error {
	if s.State() == StateClosed {
		return errprocess.ErrStaleSessionWrite
	}
	result := make(chan error, 1)
	if !s.inbox.push(func() { result <- fn() }) {
		return errprocess.ErrStaleSessionWrite
	}
	select {
	case err := <-result:
		return err
	case <-s.done:
		// loop exited before running fn
		select {
		case err := <-result:
			return err
		default:
			return errprocess.ErrStaleSessionWrite
		}
	case <-ctx.Done():
		logger.Log.Debug("caller gave up waiting", zap.String("session_id", s.id), zap.String("op", what))
		return ctx.Err()
	}
}

// Send append content optimistically and publish it. The returned message has no position yet.
func (s *Session) Send(ctx context.Context, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, errprocess.ErrEmptyContent
	}
	m := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: s.conversationID,
		SenderID:       s.localID,
		Kind:           domain.MessageKindNormal,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	err := s.do(ctx, "send", func() error {
		s.reconciler.Optimistic(s.log, m)
		s.emit(domain.NewMessageEvent(m))
		s.publishSnapshot()
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

// MarkRead advance the local read pointer; no event is emitted when it does not move
func (s *Session) MarkRead(ctx context.Context, position int64) error {
	return s.do(ctx, "mark_read", func() error {
		if s.reads.RecordRead(s.localID, position) {
			s.emit(domain.NewReadEvent(s.conversationID, s.localID, position))
			s.publishSnapshot()
		}
		return nil
	})
}

// LoadOlder extend the window backwards by up to count messages, returns how many were added
func (s *Session) LoadOlder(ctx context.Context, count int) (int, error) {
	var (
		start int64
		ok    bool
	)
	err := s.do(ctx, "load_older_start", func() error {
		if !s.loaded {
			return errprocess.ErrSessionConnecting
		}
		w := s.log.Window()
		start, ok = w.Start, !w.IsEmpty() && !s.historyUnavailable
		return nil
	})
	if err != nil || !ok || start == 0 {
		return 0, err
	}

	fetchCtx, cancel := mergeCancel(ctx, s.ctx)
	res := s.loader.Older(fetchCtx, s.conversationID, start, count)
	cancel()
	if res.Err != nil {
		if s.State() == StateClosed {
			return 0, errprocess.ErrStaleSessionWrite
		}
		return 0, res.Err
	}
	if res.Window.IsEmpty() {
		return 0, nil
	}

	added := 0
	err = s.do(ctx, "load_older_apply", func() error {
		before := s.log.Len()
		if err := s.log.LoadWindow(res.Window.Start, res.Window.End, res.Messages); err != nil {
			return nil
		}
		added = s.log.Len() - before
		s.publishSnapshot()
		return nil
	})
	return added, err
}

// Close stop the session: cancel fetches, unsubscribe once, stop the loop
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.cancel()
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.inbox.close()
		s.outbox.close()
		<-s.done
		select {
		case <-s.ready:
		default:
			close(s.ready)
		}
		logger.Log.Info("session closed",
			zap.String("session_id", s.id),
			zap.String("conversation_id", s.conversationID))
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// publishSnapshot build and publish, loop goroutine only
func (s *Session) publishSnapshot() {
	s.version++
	snap := s.buildSnapshot()
	s.snapshot.Store(snap)

	select {
	case s.updates <- snap:
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- snap:
		default:
		}
	}
}

func (s *Session) buildSnapshot() *Snapshot {
	snap := &Snapshot{
		SessionID:          s.id,
		ConversationID:     s.conversationID,
		State:              s.State(),
		Window:             s.log.Window(),
		ReadPoints:         s.reads.Points(),
		HistoryUnavailable: s.historyUnavailable,
		Version:            s.version,
	}
	if s.conversation != nil {
		snap.Name = s.conversation.Name
		snap.Participants = append([]domain.Participant(nil), s.conversation.Participants...)
	}

	msgs := s.log.Messages()
	snap.Messages = make([]MessageView, 0, len(msgs))
	// 尚未排序的訊息暫時排在 window end 之後，不與已排序的位置重複
	pending := int64(0)
	for _, m := range msgs {
		var idx int64
		if m.Position != nil {
			idx = *m.Position
		} else {
			pending++
			idx = snap.Window.End + pending
		}
		name := m.SenderID
		if s.conversation != nil {
			name = s.conversation.ParticipantName(m.SenderID)
		}
		snap.Messages = append(snap.Messages, MessageView{
			Message:     m,
			Index:       idx,
			SenderName:  name,
			UnreadCount: s.reads.UnreadCountFor(idx, m.SenderID),
			Pending:     s.reconciler.IsPending(m.ID),
		})
	}
	return snap
}

// mergeCancel ctx canceled when either parent is done
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
