package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "preview:"

// RedisStore keeps token records under preview:{hash}. A key lives for the
// token's remaining lifetime plus the retention window, so a lapsed token is
// reported as expired for a while before it disappears.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

func NewRedisStore(ctx context.Context, redisURL string, retention time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client, retention), nil
}

func NewRedisStoreWithClient(client *redis.Client, retention time.Duration) *RedisStore {
	if retention < 0 {
		retention = 0
	}
	return &RedisStore{
		client:    client,
		prefix:    redisKeyPrefix,
		retention: retention,
		now:       time.Now,
	}
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

func (s *RedisStore) SavePreviewToken(ctx context.Context, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal preview token: %w", err)
	}
	ttl := record.ExpiresAt.Sub(s.now()) + s.retention
	if ttl <= 0 {
		// Redis rejects non-positive expirations; keep the record briefly.
		ttl = time.Second
	}
	if err := s.client.Set(ctx, s.key(record.TokenHash), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save preview token: %w", err)
	}
	return nil
}

func (s *RedisStore) LookupPreviewToken(ctx context.Context, tokenHash string) (Record, error) {
	payload, err := s.client.Get(ctx, s.key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrTokenNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("lookup preview token: %w", err)
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return Record{}, fmt.Errorf("unmarshal preview token: %w", err)
	}
	return record, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
