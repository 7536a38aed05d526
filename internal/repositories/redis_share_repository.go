package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"reader-gateway/internal/models"
)

const (
	// Redis key prefixes
	shareKeyPrefix = "share:"
	shareIndexKey  = "shares:index"
)

// RedisShareRepository implements ShareRepository using Redis
type RedisShareRepository struct {
	client *redis.Client
}

// NewRedisShareRepository creates a new Redis-based share repository
func NewRedisShareRepository(client *redis.Client) *RedisShareRepository {
	return &RedisShareRepository{
		client: client,
	}
}

// Save stores a share record and indexes it by creation time
func (r *RedisShareRepository) Save(ctx context.Context, record *models.ShareRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return NewShareRepositoryError("save_share", record.ID, err, "failed to marshal share record")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, shareKeyPrefix+record.ID, recordJSON, 0)
	pipe.ZAdd(ctx, shareIndexKey, redis.Z{
		Score:  float64(record.CreatedAt.Unix()),
		Member: record.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return NewShareRepositoryError("save_share", record.ID, err, "")
	}
	return nil
}

// Get retrieves a share record by ID
func (r *RedisShareRepository) Get(ctx context.Context, shareID string) (*models.ShareRecord, error) {
	recordJSON, err := r.client.Get(ctx, shareKeyPrefix+shareID).Result()
	if err == redis.Nil {
		return nil, ShareNotFoundError(shareID)
	}
	if err != nil {
		return nil, NewShareRepositoryError("get_share", shareID, err, "")
	}

	var record models.ShareRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, NewShareRepositoryError("get_share", shareID, err, "failed to unmarshal share record")
	}
	return &record, nil
}

// List returns all share records, newest first
func (r *RedisShareRepository) List(ctx context.Context) ([]*models.ShareRecord, error) {
	shareIDs, err := r.client.ZRevRange(ctx, shareIndexKey, 0, -1).Result()
	if err != nil {
		return nil, NewShareRepositoryError("list_shares", "", err, "")
	}

	records := make([]*models.ShareRecord, 0, len(shareIDs))
	for _, id := range shareIDs {
		record, err := r.Get(ctx, id)
		if err != nil {
			// Index entries can outlive their records; skip the strays.
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes a share record and its index entry
func (r *RedisShareRepository) Delete(ctx context.Context, shareID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, shareKeyPrefix+shareID)
	pipe.ZRem(ctx, shareIndexKey, shareID)

	if _, err := pipe.Exec(ctx); err != nil {
		return NewShareRepositoryError("delete_share", shareID, err, "")
	}
	return nil
}

// Ping checks the Redis connection
func (r *RedisShareRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
