package repository

import (
	"context"
	"errors"
	"fmt"

	"chat_sync_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReadPointRepository definition per participant read pointer
type ReadPointRepository interface {
	// Advance upsert with $max, the stored pointer never moves back
	Advance(ctx context.Context, conversationID, participantID string, position int64) error
	Find(ctx context.Context, conversationID, participantID string) (*domain.ReadPoint, error)
	FindByConversation(ctx context.Context, conversationID string) ([]domain.ReadPoint, error)
}

type readPointRepository struct {
	coll *mongo.Collection
}

// NewMongoReadPointRepository create a ReadPointRepository
func NewMongoReadPointRepository(db *mongo.Database) ReadPointRepository {
	return &readPointRepository{
		coll: db.Collection("read_points"),
	}
}

// Advance set last_read_position = max(stored, position)
func (r *readPointRepository) Advance(ctx context.Context, conversationID, participantID string, position int64) error {
	filter := bson.M{"conversation_id": conversationID, "participant_id": participantID}
	update := bson.M{"$max": bson.M{"last_read_position": position}}
	_, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("advance read point %s/%s: %w", conversationID, participantID, err)
	}
	return nil
}

// Find read point of one participant, nil when nothing was read yet
func (r *readPointRepository) Find(ctx context.Context, conversationID, participantID string) (*domain.ReadPoint, error) {
	var p domain.ReadPoint
	err := r.coll.FindOne(ctx, bson.M{"conversation_id": conversationID, "participant_id": participantID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find read point: %w", err)
	}
	return &p, nil
}

// FindByConversation all read points of a conversation
func (r *readPointRepository) FindByConversation(ctx context.Context, conversationID string) ([]domain.ReadPoint, error) {
	cur, err := r.coll.Find(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("find read points of %s: %w", conversationID, err)
	}
	var points []domain.ReadPoint
	if err := cur.All(ctx, &points); err != nil {
		return nil, fmt.Errorf("cursor All error: %w", err)
	}
	return points, nil
}
