package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/pkg/database"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"
	testtool "chat_sync_service/pkg/test_tool"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetNewNop()
}

func skipShort(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test needs docker")
	}
}

func startMongo(t *testing.T) *database.MongoDB {
	t.Helper()
	ctx := context.Background()
	c, uri, err := testtool.StartMongo(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	db, err := database.NewMongoDB(ctx, database.Connection{ConnectStr: uri, RetryCount: 5, RetryInterval: 1}, "test_chat_db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(ctx) })
	return db
}

func TestMongoRepositories(t *testing.T) {
	skipShort(t)
	ctx := context.Background()
	db := startMongo(t)

	convRepo := NewMongoConversationRepository(db.Database)
	msgRepo := NewMongoMessageRepository(db.Database)
	readRepo := NewMongoReadPointRepository(db.Database)
	require.NoError(t, msgRepo.EnsureIndexes(ctx))

	conv := &domain.Conversation{
		ID:           uuid.New().String(),
		Name:         "room",
		Participants: []domain.Participant{{ID: "alice", Name: "alice"}},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, convRepo.Create(ctx, conv))

	t.Run("participants", func(t *testing.T) {
		require.NoError(t, convRepo.AddParticipant(ctx, conv.ID, domain.Participant{ID: "bob", Name: "bob"}))
		// 重複加入不會多一筆
		require.NoError(t, convRepo.AddParticipant(ctx, conv.ID, domain.Participant{ID: "bob", Name: "bob"}))

		got, err := convRepo.FindByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, got.ParticipantIDs())

		rooms, err := convRepo.FindByMember(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, rooms, 1)

		require.NoError(t, convRepo.RemoveParticipant(ctx, conv.ID, "bob"))
		got, err = convRepo.FindByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.False(t, got.HasParticipant("bob"))

		_, err = convRepo.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, errprocess.ErrConversationNotFound)
	})

	t.Run("positions are dense under concurrency", func(t *testing.T) {
		const n = 20
		var wg sync.WaitGroup
		positions := make(chan int64, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pos, err := convRepo.NextPosition(ctx, conv.ID)
				assert.NoError(t, err)
				positions <- pos
			}()
		}
		wg.Wait()
		close(positions)

		seen := make(map[int64]bool, n)
		for p := range positions {
			seen[p] = true
		}
		for i := int64(0); i < n; i++ {
			assert.True(t, seen[i], "position %d missing", i)
		}

		got, err := convRepo.FindByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(n), got.MessageCount)
	})

	t.Run("messages by range", func(t *testing.T) {
		for i := int64(0); i < 5; i++ {
			require.NoError(t, msgRepo.Insert(ctx, &domain.Message{
				ID:             uuid.New().String(),
				ConversationID: conv.ID,
				SenderID:       "alice",
				Kind:           domain.MessageKindNormal,
				Content:        "hi",
				Position:       domain.Int64Ptr(4 - i),
				CreatedAt:      time.Now().UTC(),
			}))
		}

		msgs, err := msgRepo.FindRange(ctx, conv.ID, 1, 3)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		for i, m := range msgs {
			assert.Equal(t, int64(i+1), *m.Position)
		}

		stored, err := msgRepo.FindByID(ctx, conv.ID, msgs[0].ID)
		require.NoError(t, err)
		assert.Equal(t, msgs[0].ID, stored.ID)

		_, err = msgRepo.FindRange(ctx, conv.ID, 100, 200)
		assert.ErrorIs(t, err, errprocess.ErrRangeUnavailable)
		_, err = msgRepo.FindByID(ctx, conv.ID, "missing")
		assert.ErrorIs(t, err, errprocess.ErrRangeUnavailable)
	})

	t.Run("duplicate insert rolls back position", func(t *testing.T) {
		tx := NewMongoTransactor(db.Client)
		room := &domain.Conversation{ID: uuid.New().String(), Name: "tx", CreatedAt: time.Now().UTC()}
		require.NoError(t, convRepo.Create(ctx, room))

		insert := func(id string) error {
			return tx.WithTransaction(ctx, func(txCtx context.Context) error {
				pos, err := convRepo.NextPosition(txCtx, room.ID)
				if err != nil {
					return err
				}
				return msgRepo.Insert(txCtx, &domain.Message{
					ID:             id,
					ConversationID: room.ID,
					SenderID:       "alice",
					Kind:           domain.MessageKindNormal,
					Content:        "hi",
					Position:       domain.Int64Ptr(pos),
					CreatedAt:      time.Now().UTC(),
				})
			})
		}

		require.NoError(t, insert("m1"))
		assert.ErrorIs(t, insert("m1"), errprocess.ErrDuplicateMessage)
		require.NoError(t, insert("m2"))

		// 失敗的那次沒有佔掉位置
		msgs, err := msgRepo.FindRange(ctx, room.ID, 0, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, int64(0), *msgs[0].Position)
		assert.Equal(t, int64(1), *msgs[1].Position)
		got, err := convRepo.FindByID(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.MessageCount)
	})

	t.Run("read point only moves forward", func(t *testing.T) {
		p, err := readRepo.Find(ctx, conv.ID, "alice")
		require.NoError(t, err)
		assert.Nil(t, p)

		require.NoError(t, readRepo.Advance(ctx, conv.ID, "alice", 5))
		require.NoError(t, readRepo.Advance(ctx, conv.ID, "alice", 2))

		p, err = readRepo.Find(ctx, conv.ID, "alice")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, int64(5), p.LastReadPosition)

		points, err := readRepo.FindByConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Len(t, points, 1)
	})
}

func TestRedisPubSub(t *testing.T) {
	skipShort(t)
	ctx := context.Background()
	c, addr, err := testtool.StartRedis(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	client, err := database.NewRedisClientAddr(addr, "", 0)
	require.NoError(t, err)
	bus := NewRedisPubSub(client)
	t.Cleanup(func() { _ = bus.Close() })

	first := make(chan domain.Event, 4)
	second := make(chan domain.Event, 4)
	unsubFirst, err := bus.Subscribe(ctx, "room", func(ev domain.Event) { first <- ev })
	require.NoError(t, err)
	unsubSecond, err := bus.Subscribe(ctx, "room", func(ev domain.Event) { second <- ev })
	require.NoError(t, err)

	ev := domain.NewReadEvent("room", "bob", 3)
	require.NoError(t, bus.Publish(ctx, ev))

	for _, ch := range []chan domain.Event{first, second} {
		select {
		case got := <-ch:
			assert.Equal(t, ev, got)
		case <-time.After(5 * time.Second):
			t.Fatal("event not delivered")
		}
	}

	// 取消其中一個，另一個仍然收得到
	unsubFirst()
	unsubFirst()
	require.NoError(t, bus.Publish(ctx, domain.NewReadEvent("room", "bob", 4)))
	select {
	case got := <-second:
		assert.Equal(t, int64(4), got.Read.MessageIdx)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered after partial unsubscribe")
	}
	assert.Empty(t, first)
	unsubSecond()

	// 同一個聊天室反覆訂閱/取消：每個訂閱回傳後都必須收得到自己發的 event
	t.Run("concurrent subscribe and unsubscribe", func(t *testing.T) {
		const workers = 16
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				user := fmt.Sprintf("user-%d", w)
				for round := 0; round < 5; round++ {
					got := make(chan struct{}, 1)
					unsubscribe, err := bus.Subscribe(ctx, "churn", func(ev domain.Event) {
						if ev.Read != nil && ev.Read.UserID == user && ev.Read.MessageIdx == int64(round) {
							select {
							case got <- struct{}{}:
							default:
							}
						}
					})
					if !assert.NoError(t, err) {
						return
					}
					assert.NoError(t, bus.Publish(ctx, domain.NewReadEvent("churn", user, int64(round))))
					select {
					case <-got:
					case <-time.After(5 * time.Second):
						assert.Failf(t, "event lost", "%s round %d", user, round)
					}
					unsubscribe()
				}
			}(w)
		}
		wg.Wait()
	})
}

func TestMemberDirectoryWithCache(t *testing.T) {
	skipShort(t)
	ctx := context.Background()

	pgC, dsn, err := testtool.StartPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })
	pool, err := database.NewDatabaseConnection(database.Connection{ConnectStr: dsn, RetryCount: 5, RetryInterval: 1})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `CREATE TABLE member (member_id TEXT PRIMARY KEY, email TEXT NOT NULL, nickname TEXT)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO member VALUES ('alice', 'alice@example.com', 'Alice'), ('bob', 'bob@example.com', '')`)
	require.NoError(t, err)

	redisC, addr, err := testtool.StartRedis(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisC.Terminate(ctx) })
	client, err := database.NewRedisClientAddr(addr, "", 0)
	require.NoError(t, err)
	cache := database.NewRedisRepository[string](client, "test:member:name:")

	dir := NewCachedDirectory(NewMemberDirectory(pool), cache, time.Minute)

	names, err := dir.FindDisplayNames(ctx, []string{"alice", "bob", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "Alice", "bob": "bob@example.com"}, names)

	cached, err := cache.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", cached)

	// 第二次查詢走 cache
	_, err = pool.Exec(ctx, `UPDATE member SET nickname = 'Renamed' WHERE member_id = 'alice'`)
	require.NoError(t, err)
	names, err = dir.FindDisplayNames(ctx, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", names["alice"])
}
