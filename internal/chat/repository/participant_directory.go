package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat_sync_service/pkg/database"
	"chat_sync_service/pkg/logger"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// ParticipantDirectory resolves participant display names
type ParticipantDirectory interface {
	// FindDisplayNames member id -> display name, unknown ids are omitted
	FindDisplayNames(ctx context.Context, memberIDs []string) (map[string]string, error)
}

type memberDirectory struct {
	db *pgxpool.Pool
}

// NewMemberDirectory read display names from the member table
func NewMemberDirectory(db *pgxpool.Pool) ParticipantDirectory {
	return &memberDirectory{db: db}
}

func (r *memberDirectory) FindDisplayNames(ctx context.Context, memberIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(memberIDs))
	if len(memberIDs) == 0 {
		return names, nil
	}

	rows, err := r.db.Query(ctx,
		"SELECT member_id, COALESCE(NULLIF(nickname, ''), email) FROM member WHERE member_id = ANY($1)",
		memberIDs)
	if err != nil {
		return nil, fmt.Errorf("query member names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

type cachedDirectory struct {
	next  ParticipantDirectory
	cache database.RedisRepository[string]
	ttl   time.Duration
}

// NewCachedDirectory cache display names in redis for ttl
func NewCachedDirectory(next ParticipantDirectory, cache database.RedisRepository[string], ttl time.Duration) ParticipantDirectory {
	return &cachedDirectory{next: next, cache: cache, ttl: ttl}
}

func (c *cachedDirectory) FindDisplayNames(ctx context.Context, memberIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(memberIDs))
	var missing []string
	for _, id := range memberIDs {
		name, err := c.cache.Get(ctx, id)
		switch {
		case err == nil:
			names[id] = name
		case errors.Is(err, database.ErrCacheMiss):
			missing = append(missing, id)
		default:
			logger.Log.Warn("member name cache unavailable", zap.String("member_id", id), zap.Error(err))
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return names, nil
	}

	found, err := c.next.FindDisplayNames(ctx, missing)
	if err != nil {
		return names, err
	}
	for id, name := range found {
		names[id] = name
		if err := c.cache.Set(ctx, id, name, c.ttl); err != nil {
			logger.Log.Warn("cache member name", zap.String("member_id", id), zap.Error(err))
		}
	}
	return names, nil
}
