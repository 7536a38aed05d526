package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const audioCacheKeyPrefix = "audiocache:"

// AudioCache stores synthesized audio keyed by a content digest, so repeated
// reads of the same passage skip the backend.
type AudioCache interface {
	// Get returns the cached audio for a key, or (nil, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores audio under a key with a TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, audio []byte, ttl time.Duration) error
}

// RedisAudioCache implements AudioCache using Redis
type RedisAudioCache struct {
	client *redis.Client
}

// NewRedisAudioCache creates a new Redis-backed audio cache
func NewRedisAudioCache(client *redis.Client) *RedisAudioCache {
	return &RedisAudioCache{
		client: client,
	}
}

func (r *RedisAudioCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, audioCacheKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audio cache: %w", err)
	}
	return data, nil
}

func (r *RedisAudioCache) Set(ctx context.Context, key string, audio []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, audioCacheKeyPrefix+key, audio, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write audio cache: %w", err)
	}
	return nil
}
