package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sessionKeyPrefix = "session:"

var _ interfaces.SessionRepository = (*redisSessionRepository)(nil)

type redisSessionRepository struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewRedisSessionRepository(client redis.UniversalClient, logger *zap.Logger) interfaces.SessionRepository {
	return &redisSessionRepository{
		client: client,
		logger: logger.Named("RedisSessionRepo"),
	}
}

func sessionKey(sessionID string) string { return sessionKeyPrefix + sessionID }

func (r *redisSessionRepository) Create(ctx context.Context, session *models.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	stored := *session
	stored.Version = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	created, err := r.client.SetNX(ctx, sessionKey(session.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: session %s already exists", models.ErrConflict, session.ID)
	}
	session.Version = stored.Version
	return nil
}

func (r *redisSessionRepository) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (r *redisSessionRepository) Update(ctx context.Context, session *models.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	next, err := compareAndSwap(ctx, r.client, sessionKey(session.ID), session.Version, func(next int64) ([]byte, error) {
		stored := *session
		stored.Version = next
		return json.Marshal(stored)
	})
	if err != nil {
		r.logger.Warn("Session update rejected",
			zap.String("sessionID", session.ID),
			zap.Int64("version", session.Version),
			zap.Error(err),
		)
		return err
	}
	session.Version = next
	return nil
}

func (r *redisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *redisSessionRepository) Expire(ctx context.Context, sessionID string, after time.Duration) error {
	ok, err := r.client.Expire(ctx, sessionKey(sessionID), after).Result()
	if err != nil {
		return fmt.Errorf("failed to expire session: %w", err)
	}
	if !ok {
		return models.ErrNotFound
	}
	return nil
}
