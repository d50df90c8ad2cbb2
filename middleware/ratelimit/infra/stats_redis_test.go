package infra

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"request-guard/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisActivitySink_NilIsNoop(t *testing.T) {
	var s *RedisActivitySink
	assert.NoError(t, s.Record(context.Background(), domain.Attempt{}))
	assert.NoError(t, NewRedisActivitySink(nil).Record(context.Background(), domain.Attempt{}))
}

func TestRouteField(t *testing.T) {
	assert.Equal(t, "GET /api/x", routeField(" GET ", "/api/x "))
	assert.Equal(t, "/api/x", routeField("", "/api/x"))
	assert.Empty(t, routeField("", ""))
}

// Roda só com um Redis disponível: REDIS_ADDR=localhost:6379 go test ./...
func TestRedisActivitySink_RecordWritesCounters(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	require.NoError(t, rdb.Ping(ctx).Err())

	prefix := "test:" + uuid.NewString()
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = rdb.Del(ctx, keys...).Err()
		}
	})

	s := NewRedisActivitySink(rdb,
		WithSinkPrefix(prefix),
		WithSinkTrackAddresses(true),
		WithSinkViolationCap(2),
	)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(ctx, domain.Attempt{
			Address: "1.1.1.1", Endpoint: "/api/x", Method: "POST",
			Policy: domain.PolicyAPI, IsViolation: i > 0, Limit: 1, AttemptCount: i + 1, At: at,
		}))
	}

	total, err := rdb.HGetAll(ctx, prefix+":total").Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"allowed": "1", "violations": "2"}, total)

	minute, err := rdb.HGet(ctx, prefix+":minute:202501020304", "violations").Result()
	require.NoError(t, err)
	assert.Equal(t, "2", minute)

	route, err := rdb.HGet(ctx, prefix+":route", "POST /api/x:allowed").Result()
	require.NoError(t, err)
	assert.Equal(t, "1", route)

	ip, err := rdb.HGet(ctx, prefix+":ip:1.1.1.1", "violations").Result()
	require.NoError(t, err)
	assert.Equal(t, "2", ip)

	raw, err := rdb.LRange(ctx, prefix+":violations", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, raw, 2)
	var newest domain.ViolationRecord
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &newest))
	assert.Equal(t, 3, newest.AttemptCount)
}
