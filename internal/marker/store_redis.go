package marker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"veil/pkg/platform/sentinel"
)

// Redis key prefix for anonymised markers.
const markerKeyPrefix = "anon:"

// RedisStore is a Redis-backed marker store for distributed deployments
// where "is this record anonymised?" is a hot read path shared across
// instances.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ Store = (*RedisStore)(nil)

func redisKey(typeName, key string) string {
	return markerKeyPrefix + typeName + ":" + key
}

// Mark stores the timestamp under the marker key. Markers never expire;
// retention is an external policy.
func (s *RedisStore) Mark(ctx context.Context, typeName, key string, at time.Time) error {
	return s.client.Set(ctx, redisKey(typeName, key), at.UTC().Format(time.RFC3339Nano), 0).Err()
}

func (s *RedisStore) IsMarked(ctx context.Context, typeName, key string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKey(typeName, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) MarkedAt(ctx context.Context, typeName, key string) (time.Time, error) {
	raw, err := s.client.Get(ctx, redisKey(typeName, key)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, fmt.Errorf("%w: marker %s/%s", sentinel.ErrNotFound, typeName, key)
	}
	if err != nil {
		return time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse marker timestamp: %w", err)
	}
	return at, nil
}
