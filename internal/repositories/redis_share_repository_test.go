package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reader-gateway/internal/models"
)

// setupTestRedis creates a test Redis client, skipping when no server is
// reachable.
func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use separate DB for testing
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}

	// Flush test database
	require.NoError(t, client.FlushDB(ctx).Err())

	return client
}

func testShareRecord(id, filename string) *models.ShareRecord {
	return &models.ShareRecord{
		ID:       id,
		Filename: filename,
		URL:      "https://share.example/" + id,
		FileSize: 1024,
	}
}

func TestNewRedisShareRepository(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	repo := NewRedisShareRepository(client)
	assert.NotNil(t, repo)
	assert.Equal(t, client, repo.client)
}

func TestRedisShareRepository_SaveAndGet(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisShareRepository(client)
	ctx := context.Background()

	t.Run("successful save", func(t *testing.T) {
		record := testShareRecord("share-1", "paper.pdf")
		require.NoError(t, repo.Save(ctx, record))

		retrieved, err := repo.Get(ctx, "share-1")
		require.NoError(t, err)
		assert.Equal(t, record.Filename, retrieved.Filename)
		assert.Equal(t, record.URL, retrieved.URL)
		assert.NotZero(t, retrieved.CreatedAt)
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := repo.Get(ctx, "no-such-share")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("invalid record fails validation", func(t *testing.T) {
		err := repo.Save(ctx, &models.ShareRecord{ID: "share-2"})
		require.Error(t, err)
	})
}

func TestRedisShareRepository_List(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisShareRepository(client)
	ctx := context.Background()

	older := testShareRecord("share-old", "old.pdf")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := testShareRecord("share-new", "new.pdf")
	newer.CreatedAt = time.Now()

	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "share-new", records[0].ID, "list is newest first")
	assert.Equal(t, "share-old", records[1].ID)
}

func TestRedisShareRepository_Delete(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisShareRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testShareRecord("share-del", "gone.pdf")))
	require.NoError(t, repo.Delete(ctx, "share-del"))

	_, err := repo.Get(ctx, "share-del")
	require.Error(t, err)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records, "deleted records disappear from the index")
}

func TestRedisAudioCache(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	cache := NewRedisAudioCache(client)
	ctx := context.Background()

	t.Run("miss returns nil without error", func(t *testing.T) {
		data, err := cache.Get(ctx, "missing-key")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "clip-1", []byte("mp3-bytes"), time.Minute))

		data, err := cache.Get(ctx, "clip-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("mp3-bytes"), data)
	})

	t.Run("expired entries miss", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "clip-ttl", []byte("x"), 50*time.Millisecond))
		time.Sleep(100 * time.Millisecond)

		data, err := cache.Get(ctx, "clip-ttl")
		require.NoError(t, err)
		assert.Nil(t, data)
	})
}
