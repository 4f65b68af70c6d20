package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/docflow-gateway/internal/domain"
	"github.com/xela07ax/docflow-gateway/internal/infra"
)

// RedisStore хранит снимок заявки одним JSON-блобом под ключом
// docflow:request:<id>. TTL защищает от бесконечного роста кэша.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) SaveSnapshot(ctx context.Context, req *domain.Request) error {
	blob, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("redis: marshal request: %w", err)
	}
	if err := s.rdb.Set(ctx, infra.GetRequestKey(req.ID), blob, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: save snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadSnapshot(ctx context.Context, requestID string) (*domain.Request, error) {
	blob, err := s.rdb.Get(ctx, infra.GetRequestKey(requestID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: load snapshot: %w", err)
	}
	req := &domain.Request{}
	if err := json.Unmarshal(blob, req); err != nil {
		// Битый снимок равносилен промаху, истина в Postgres
		return nil, fmt.Errorf("redis: decode snapshot: %w", err)
	}
	return req, nil
}
