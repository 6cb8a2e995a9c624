package stats

import (
	"context"
	"os"
	"testing"
	"time"

	"media-pool/internal/mediapool"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis connects to STATS_TEST_REDIS_ADDR or skips the test.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("STATS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STATS_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisStore_Record(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	prefix := "mediapool:test:" + uuid.NewString()
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
	})

	s := NewRedisStore(rdb, WithPrefix(prefix+":"), WithTTL(time.Minute))
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Record(ctx, mediapool.Event{Container: "a", Kind: mediapool.EventGranted, Type: mediapool.Video, At: at}))
	require.NoError(t, s.Record(ctx, mediapool.Event{Container: "a", Kind: mediapool.EventGranted, Type: mediapool.Audio, At: at}))
	require.NoError(t, s.Record(ctx, mediapool.Event{Container: "a", Kind: mediapool.EventEvicted, Type: mediapool.Video, At: at}))

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"granted": 2, "evicted": 1}, totals)

	byType, err := rdb.HGetAll(ctx, prefix+":type").Result()
	require.NoError(t, err)
	assert.Equal(t, "1", byType["video:granted"])

	minute, err := rdb.HGet(ctx, prefix+":minute:202601020304", "granted").Result()
	require.NoError(t, err)
	assert.Equal(t, "2", minute)

	ttl, err := rdb.TTL(ctx, prefix+":container:a").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	counts, err := s.ContainerCounts(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Counters{mediapool.EventGranted: 2, mediapool.EventEvicted: 1}, counts)

	require.NoError(t, s.Record(ctx, mediapool.Event{Container: "a", Kind: mediapool.EventClosed, At: at}))

	n, err := rdb.Exists(ctx, prefix+":container:a").Result()
	require.NoError(t, err)
	assert.Zero(t, n, "closing a container deletes its hash")

	counts, err = s.ContainerCounts(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, counts)

	total, err := s.TotalCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total[mediapool.EventClosed])
}

func TestRedisStore_nilIsNoop(t *testing.T) {
	var s *RedisStore
	assert.NoError(t, s.Record(context.Background(), mediapool.Event{Kind: mediapool.EventGranted}))
}
