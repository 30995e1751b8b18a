package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fastertools/drivelink/internal/auth"
)

// DefaultRedisPrefix namespaces the keys written by RedisStore
const DefaultRedisPrefix = "drivelink"

const redisTimeout = 5 * time.Second

// RedisClient is the subset of *redis.Client used by RedisStore
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore implements auth.SettingsStore on Redis so several hosts can share
// one authorization
type RedisStore struct {
	client    RedisClient
	prefix    string
	clientID  string
	accessTTL time.Duration
}

// Ensure RedisStore implements auth.SettingsStore
var _ auth.SettingsStore = (*RedisStore)(nil)

// NewRedisStore creates a new RedisStore
func NewRedisStore(client RedisClient, prefix, clientID string, accessTTL time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		clientID:  clientID,
		accessTTL: accessTTL,
	}
}

// NewRedisClient connects to the Redis server at addr
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// redisKey returns the Redis key for one of the cached tokens
func (r *RedisStore) redisKey(key string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, r.clientID, key)
}

func (r *RedisStore) get(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	value, err := r.client.Get(ctx, r.redisKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	return value, nil
}

func (r *RedisStore) set(key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if value == "" {
		return r.del(ctx, r.redisKey(key))
	}
	if err := r.client.Set(ctx, r.redisKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}

func (r *RedisStore) del(ctx context.Context, keys ...string) error {
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete tokens from Redis: %w", err)
	}
	return nil
}

// CachedAccessToken implements auth.SettingsStore
func (r *RedisStore) CachedAccessToken() (string, error) {
	return r.get(accessTokenKey)
}

// SetCachedAccessToken stores the access token with the configured TTL
func (r *RedisStore) SetCachedAccessToken(token string) error {
	return r.set(accessTokenKey, token, r.accessTTL)
}

// CachedRefreshToken implements auth.SettingsStore
func (r *RedisStore) CachedRefreshToken() (string, error) {
	return r.get(refreshTokenKey)
}

// SetCachedRefreshToken stores the refresh token without expiry
func (r *RedisStore) SetCachedRefreshToken(token string) error {
	return r.set(refreshTokenKey, token, 0)
}

// Clear deletes both tokens
func (r *RedisStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	return r.del(ctx, r.redisKey(accessTokenKey), r.redisKey(refreshTokenKey))
}

// Close closes the underlying client when it supports it
func (r *RedisStore) Close() error {
	if c, ok := r.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
