package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const roomChannelPrefix = "chat:room:"

// RoomChannel redis channel of a conversation
func RoomChannel(conversationID string) string {
	return roomChannelPrefix + conversationID
}

// RedisPubSub definition redis pub/sub.
// One connection is shared by all subscribers; a room channel is subscribed
// while at least one handler is registered for it.
type RedisPubSub struct {
	client *redis.Client
	pubsub *redis.PubSub

	mu       sync.Mutex
	handlers map[string]map[uint64]func(domain.Event)
	// active channel 已收到 subscribe 確認
	active map[string]bool
	// waiters 每個 SUBSCRIBE 一個，依送出順序由 ack 依序取出
	waiters map[string][]chan struct{}
	rooms   map[string]*roomLock
	nextID  uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// roomLock serializes SUBSCRIBE/UNSUBSCRIBE of one channel
type roomLock struct {
	mu   sync.Mutex
	refs int
}

// NewRedisPubSub create RedisPubSub and start its router goroutine
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisPubSub{
		client:   client,
		pubsub:   client.Subscribe(ctx),
		handlers: make(map[string]map[uint64]func(domain.Event)),
		active:   make(map[string]bool),
		waiters:  make(map[string][]chan struct{}),
		rooms:    make(map[string]*roomLock),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go r.route(r.pubsub.ChannelWithSubscriptions(ctx, 256))
	return r
}

// Publish 將 event 序列化後，發布到聊天室 channel
func (r *RedisPubSub) Publish(ctx context.Context, ev domain.Event) error {
	data, err := domain.EncodeEvent(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, RoomChannel(ev.ConversationID()), data).Err()
}

// Subscribe 註冊 handler，回傳前 channel 一定已經被 redis 確認訂閱
func (r *RedisPubSub) Subscribe(ctx context.Context, conversationID string, handler func(domain.Event)) (func(), error) {
	channel := RoomChannel(conversationID)
	lock := r.lockRoom(channel)
	defer r.unlockRoom(channel, lock)

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	if r.handlers[channel] == nil {
		r.handlers[channel] = make(map[uint64]func(domain.Event))
	}
	r.handlers[channel][id] = handler
	if r.active[channel] {
		r.mu.Unlock()
		return r.unsubscriber(channel, id), nil
	}
	ack := make(chan struct{})
	r.waiters[channel] = append(r.waiters[channel], ack)
	r.mu.Unlock()

	if err := r.pubsub.Subscribe(ctx, channel); err != nil {
		r.mu.Lock()
		r.dropWaiter(channel, ack)
		r.mu.Unlock()
		r.removeLocked(channel, id)
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	select {
	case <-ack:
	case <-ctx.Done():
		// ack 之後仍會到，waiter 留在佇列裡讓它取走
		r.removeLocked(channel, id)
		return nil, ctx.Err()
	case <-r.done:
		return nil, fmt.Errorf("subscribe %s: pubsub closed", channel)
	}

	r.mu.Lock()
	r.active[channel] = true
	r.mu.Unlock()
	logger.Log.Debug("room channel subscribed", zap.String("channel", channel))
	return r.unsubscriber(channel, id), nil
}

// unsubscriber remove one handler exactly once, the last one unsubscribes the channel
func (r *RedisPubSub) unsubscriber(channel string, id uint64) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			lock := r.lockRoom(channel)
			defer r.unlockRoom(channel, lock)
			r.removeLocked(channel, id)
		})
	}
}

// removeLocked drop handler id; caller holds the room lock so no SUBSCRIBE can interleave
func (r *RedisPubSub) removeLocked(channel string, id uint64) {
	r.mu.Lock()
	delete(r.handlers[channel], id)
	if len(r.handlers[channel]) > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.handlers, channel)
	delete(r.active, channel)
	r.mu.Unlock()

	if err := r.pubsub.Unsubscribe(context.Background(), channel); err != nil {
		logger.Log.Warn("unsubscribe failed", zap.String("channel", channel), zap.Error(err))
	}
}

func (r *RedisPubSub) lockRoom(channel string) *roomLock {
	r.mu.Lock()
	lock, ok := r.rooms[channel]
	if !ok {
		lock = &roomLock{}
		r.rooms[channel] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (r *RedisPubSub) unlockRoom(channel string, lock *roomLock) {
	lock.mu.Unlock()

	r.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(r.rooms, channel)
	}
	r.mu.Unlock()
}

// dropWaiter remove a waiter whose SUBSCRIBE was never sent, r.mu held
func (r *RedisPubSub) dropWaiter(channel string, ack chan struct{}) {
	ws := r.waiters[channel]
	for i, w := range ws {
		if w == ack {
			r.waiters[channel] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(r.waiters[channel]) == 0 {
		delete(r.waiters, channel)
	}
}

// route fan out decoded events to the handlers of their channel
func (r *RedisPubSub) route(ch <-chan interface{}) {
	defer close(r.done)
	for msg := range ch {
		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind != "subscribe" {
				continue
			}
			r.mu.Lock()
			if ws := r.waiters[m.Channel]; len(ws) > 0 {
				close(ws[0])
				if len(ws) == 1 {
					delete(r.waiters, m.Channel)
				} else {
					r.waiters[m.Channel] = ws[1:]
				}
			}
			r.mu.Unlock()
		case *redis.Message:
			ev, err := domain.DecodeEvent([]byte(m.Payload))
			if err != nil {
				logger.Log.Error("drop undecodable event", zap.String("channel", m.Channel), zap.Error(err))
				continue
			}
			if want := strings.TrimPrefix(m.Channel, roomChannelPrefix); ev.ConversationID() != want {
				logger.Log.Warn("event on foreign channel", zap.String("channel", m.Channel), zap.String("conversation_id", ev.ConversationID()))
				continue
			}

			r.mu.Lock()
			hs := make([]func(domain.Event), 0, len(r.handlers[m.Channel]))
			for _, h := range r.handlers[m.Channel] {
				hs = append(hs, h)
			}
			r.mu.Unlock()

			for _, h := range hs {
				h(ev)
			}
		}
	}
	logger.Log.Info("redis pubsub router stopped")
}

// Close stop the router and the shared connection
func (r *RedisPubSub) Close() error {
	r.cancel()
	err := r.pubsub.Close()
	<-r.done
	return err
}
