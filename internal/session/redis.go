package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces session keys in a shared Redis.
const DefaultKeyPrefix = "pharmabot:session:"

// RedisStore is a Store shared by every server replica. Each user maps to a
// key holding the session ID with a sliding TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps client. A ttl of zero never expires sessions.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: DefaultKeyPrefix, ttl: ttl}
}

func (r *RedisStore) key(userID string) string { return r.prefix + userID }

// Resolve returns the stored session or atomically creates one. Concurrent
// first requests for the same user converge on a single session ID.
func (r *RedisStore) Resolve(ctx context.Context, userID string) (string, error) {
	key := r.key(userID)

	id, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if r.ttl > 0 {
			if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
				return "", fmt.Errorf("session: refresh ttl: %w", err)
			}
		}
		return id, nil
	case !errors.Is(err, redis.Nil):
		return "", fmt.Errorf("session: get: %w", err)
	}

	id = NewID()
	created, err := r.client.SetNX(ctx, key, id, r.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("session: create: %w", err)
	}
	if created {
		return id, nil
	}

	// Another request created the session first.
	id, err = r.client.Get(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("session: get after race: %w", err)
	}
	return id, nil
}

// Expire deletes the user's session key.
func (r *RedisStore) Expire(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("session: expire: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("session: redis ping: %w", err)
	}
	return nil
}
