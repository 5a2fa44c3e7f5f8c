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

// ConversationRepository definition chat room metadata
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error)
	// AddParticipant 已存在則不重複加入
	AddParticipant(ctx context.Context, conversationID string, p domain.Participant) error
	RemoveParticipant(ctx context.Context, conversationID, participantID string) error
	FindByMember(ctx context.Context, memberID string) ([]*domain.Conversation, error)
	// NextPosition 原子地遞增 message_count，回傳新訊息的位置 (count-1)
	NextPosition(ctx context.Context, conversationID string) (int64, error)
}

type conversationRepository struct {
	coll *mongo.Collection
}

// NewMongoConversationRepository create new mongo conversation repository
func NewMongoConversationRepository(db *mongo.Database) ConversationRepository {
	return &conversationRepository{
		coll: db.Collection("conversations"),
	}
}

// Create create conversation
func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	_, err := r.coll.InsertOne(ctx, conv)
	if err != nil {
		return fmt.Errorf("insert conversation %s: %w", conv.ID, err)
	}
	return nil
}

// FindByID find conversation by id
func (r *conversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.coll.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errprocess.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation %s: %w", conversationID, err)
	}
	return &conv, nil
}

// AddParticipant push participant when absent
func (r *conversationRepository) AddParticipant(ctx context.Context, conversationID string, p domain.Participant) error {
	filter := bson.M{"_id": conversationID, "participants.id": bson.M{"$ne": p.ID}}
	update := bson.M{"$push": bson.M{"participants": p}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("add participant %s: %w", p.ID, err)
	}
	if res.MatchedCount == 0 {
		// 已經是成員，或聊天室不存在
		if _, err := r.FindByID(ctx, conversationID); err != nil {
			return err
		}
	}
	return nil
}

// RemoveParticipant pull participant
func (r *conversationRepository) RemoveParticipant(ctx context.Context, conversationID, participantID string) error {
	update := bson.M{"$pull": bson.M{"participants": bson.M{"id": participantID}}}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": conversationID}, update)
	if err != nil {
		return fmt.Errorf("remove participant %s: %w", participantID, err)
	}
	if res.MatchedCount == 0 {
		return errprocess.ErrConversationNotFound
	}
	return nil
}

// FindByMember conversations the member participates in, newest first
func (r *conversationRepository) FindByMember(ctx context.Context, memberID string) ([]*domain.Conversation, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	cur, err := r.coll.Find(ctx, bson.M{"participants.id": memberID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find conversations of %s: %w", memberID, err)
	}
	defer cur.Close(ctx)

	var convs []*domain.Conversation
	for cur.Next(ctx) {
		var c domain.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		convs = append(convs, &c)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return convs, nil
}

// NextPosition $inc message_count, position = count - 1
func (r *conversationRepository) NextPosition(ctx context.Context, conversationID string) (int64, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var conv domain.Conversation
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$inc": bson.M{"message_count": 1}},
		opts,
	).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, errprocess.ErrConversationNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("next position of %s: %w", conversationID, err)
	}
	return conv.MessageCount - 1, nil
}
