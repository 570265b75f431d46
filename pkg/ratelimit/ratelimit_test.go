package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRateLimiterBurst(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	limiter := NewRedisRateLimiter(rdb)
	limit := PerMinute(2, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "checkout:user:1", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should pass", i)
	}

	res, err := limiter.Allow(ctx, "checkout:user:1", limit)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)

	// 不同主体互不影响
	res, err = limiter.Allow(ctx, "checkout:user:2", limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestUnlimitedSkipsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	res, err := NewRedisRateLimiter(rdb).Allow(context.Background(), "download:ip:1.2.3.4", PerSecond(0, 0))
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Empty(t, mr.Keys())
}

func TestPerSecondBurstFloor(t *testing.T) {
	assert.Equal(t, Limit{Rate: 5, Period: time.Second, Burst: 5}, PerSecond(5, 1))
}
