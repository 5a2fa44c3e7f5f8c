package database

import (
	"context"
	"fmt"
	"time"

	"chat_sync_service/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const mongoSelectionTimeout = 5 * time.Second

// NewMongoDB connect and ping mongo, retrying RetryCount times
func NewMongoDB(ctx context.Context, c Connection, dbName string) (*MongoDB, error) {
	clientOpts := options.Client().
		ApplyURI(c.ConnectStr).
		SetServerSelectionTimeout(mongoSelectionTimeout)

	var lastErr error
	for i := 0; i <= c.RetryCount; i++ {
		client, err := mongo.Connect(ctx, clientOpts)
		if err == nil {
			if err = client.Ping(ctx, readpref.Primary()); err == nil {
				return &MongoDB{Client: client, Database: client.Database(dbName)}, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err
		logger.Log.Warn("Failed to connect to mongoDB, retrying...",
			zap.Int("attempt", i+1),
			zap.String("database", dbName),
			zap.Error(err))

		if i < c.RetryCount {
			time.Sleep(c.RetryInterval * time.Second)
		}
	}

	return nil, fmt.Errorf("connect mongoDB after %d retries: %w", c.RetryCount, lastErr)
}

// Close disconnect mongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
