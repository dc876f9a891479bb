package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"improv-client/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure redisRepository implements Repository
var _ Repository = (*redisRepository)(nil)

// redisRepository хранит записи сессии в Redis с TTL длиной в сессию.
type redisRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisRepository creates a new Redis-backed session Repository.
func NewRedisRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) Repository {
	return &redisRepository{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisSessionRepo"),
	}
}

func redisKey(sessionID, name string) string {
	return fmt.Sprintf("improv_session:%s:%s", sessionID, name)
}

func (r *redisRepository) Save(ctx context.Context, sessionID string, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи %s: %w", name, err)
	}
	if err := r.client.Set(ctx, redisKey(sessionID, name), raw, r.ttl).Err(); err != nil {
		r.logger.Error("Не удалось сохранить запись",
			zap.String("name", name),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return fmt.Errorf("ошибка сохранения записи %s: %w", name, err)
	}
	return nil
}

func (r *redisRepository) Load(ctx context.Context, sessionID string, name string, out any) error {
	raw, err := r.client.Get(ctx, redisKey(sessionID, name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.ErrNotFound
		}
		r.logger.Error("Не удалось прочитать запись",
			zap.String("name", name),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return fmt.Errorf("ошибка чтения записи %s: %w", name, err)
	}
	return json.Unmarshal(raw, out)
}

func (r *redisRepository) Delete(ctx context.Context, sessionID string, names ...string) error {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, redisKey(sessionID, name))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("ошибка удаления записей сессии: %w", err)
	}
	return nil
}
