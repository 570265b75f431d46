package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/storefront/internal/catalog/domain"
	catalogmysql "github.com/wyfcoding/storefront/internal/catalog/infrastructure/persistence/mysql"
	catalogredis "github.com/wyfcoding/storefront/internal/catalog/infrastructure/persistence/redis"
	"github.com/wyfcoding/storefront/pkg/cache"
	"github.com/wyfcoding/storefront/pkg/db/dbtest"
)

func TestCategoryCache(t *testing.T) {
	ctx := context.Background()
	database := dbtest.New(t, catalogmysql.Models()...)
	mr := miniredis.RunT(t)
	rc := cache.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	base := catalogmysql.NewCategoryRepository(database)
	repo := catalogredis.NewCachedCategoryRepository(base, rc, time.Minute)

	require.NoError(t, repo.Create(ctx, &domain.Category{Name: "Mugs", Slug: "mugs"}))
	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, mr.Exists("storefront:catalog:categories"))

	// 绕过缓存直接写库，缓存仍返回旧结果
	require.NoError(t, base.Create(ctx, &domain.Category{Name: "Ebooks", Slug: "ebooks"}))
	list, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Create(ctx, &domain.Category{Name: "Classes", Slug: "classes"}))
	assert.False(t, mr.Exists("storefront:catalog:categories"))
	list, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("storefront:catalog:categories"))
}

func TestCategoryCacheFallsBackWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	database := dbtest.New(t, catalogmysql.Models()...)
	mr := miniredis.RunT(t)
	rc := cache.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	t.Cleanup(func() { _ = rc.Close() })

	base := catalogmysql.NewCategoryRepository(database)
	require.NoError(t, base.Create(ctx, &domain.Category{Name: "Mugs", Slug: "mugs"}))
	repo := catalogredis.NewCachedCategoryRepository(base, rc, time.Minute)

	mr.Close()
	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
