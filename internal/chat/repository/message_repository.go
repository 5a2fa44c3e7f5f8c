package repository

import (
	"context"
	"errors"
	"fmt"

	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository definition sequenced message storage
type MessageRepository interface {
	// Insert 寫入一筆已排序的訊息；同一個 id 已存在回 ErrDuplicateMessage
	Insert(ctx context.Context, m *domain.Message) error
	// FindByID 重送時用來判斷是否已寫入
	FindByID(ctx context.Context, conversationID, messageID string) (*domain.Message, error)
	// FindRange position 介於 [start, end]，依 position 排序；沒有資料回 ErrRangeUnavailable
	FindRange(ctx context.Context, conversationID string, start, end int64) ([]domain.Message, error)
	EnsureIndexes(ctx context.Context) error
}

type messageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository create a MessageRepository
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &messageRepository{
		coll: db.Collection("messages"),
	}
}

// EnsureIndexes unique (conversation_id, id) and (conversation_id, position)
func (r *messageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "position", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

// Insert insert message
func (r *messageRepository) Insert(ctx context.Context, m *domain.Message) error {
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errprocess.Wrap(errprocess.ErrDuplicateMessage, err)
		}
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	return nil
}

// FindByID find message by id
func (r *messageRepository) FindByID(ctx context.Context, conversationID, messageID string) (*domain.Message, error) {
	var m domain.Message
	err := r.coll.FindOne(ctx, bson.M{"conversation_id": conversationID, "id": messageID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errprocess.ErrRangeUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("find message %s: %w", messageID, err)
	}
	return &m, nil
}

// FindRange find messages by position range
func (r *messageRepository) FindRange(ctx context.Context, conversationID string, start, end int64) ([]domain.Message, error) {
	if end < 0 || end < start {
		return nil, errprocess.ErrRangeUnavailable
	}
	filter := bson.M{
		"conversation_id": conversationID,
		"position":        bson.M{"$gte": start, "$lte": end},
	}
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages %d..%d: %w", start, end, err)
	}

	var msgs []domain.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("cursor All error: %w", err)
	}
	if len(msgs) == 0 {
		return nil, errprocess.ErrRangeUnavailable
	}
	return msgs, nil
}
