package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps the token in Redis under a single key, expiring with it.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis-backed token store. profile namespaces the key
// so several installations can share one Redis.
func NewRedisStore(client *redis.Client, profile string) *RedisStore {
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{
		client: client,
		key:    "estate:session:" + profile,
	}
}

func (r *RedisStore) Load(ctx context.Context) (*Token, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tokenstore: get: %w", err)
	}

	var t Token
	if err := json.Unmarshal([]byte(val), &t); err != nil {
		return nil, fmt.Errorf("tokenstore: failed to unmarshal: %w", err)
	}
	return &t, nil
}

func (r *RedisStore) Save(ctx context.Context, t Token) error {
	if t.AccessToken == "" {
		return fmt.Errorf("tokenstore: missing access token")
	}

	var ttl time.Duration
	if !t.ExpiresAt.IsZero() {
		ttl = time.Until(t.ExpiresAt)
		if ttl <= 0 {
			return fmt.Errorf("tokenstore: expires_at must be in the future")
		}
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("tokenstore: failed to marshal: %w", err)
	}
	return r.client.Set(ctx, r.key, data, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
