// Package redis 分类列表的读穿缓存
package redis

import (
	"context"
	"time"

	"github.com/wyfcoding/storefront/internal/catalog/domain"
	"github.com/wyfcoding/storefront/pkg/cache"
	"github.com/wyfcoding/storefront/pkg/logger"
)

const categoriesKey = "storefront:catalog:categories"

type cachedCategories struct {
	next  domain.CategoryRepository
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewCachedCategoryRepository 包装分类仓储，List 结果缓存在 Redis，写入后失效
// 缓存故障时退回到底层仓储
func NewCachedCategoryRepository(next domain.CategoryRepository, rc *cache.RedisCache, ttl time.Duration) domain.CategoryRepository {
	return &cachedCategories{next: next, cache: rc, ttl: ttl}
}

func (r *cachedCategories) Create(ctx context.Context, category *domain.Category) error {
	if err := r.next.Create(ctx, category); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, categoriesKey); err != nil {
		logger.Warn(ctx, "Failed to invalidate category cache", "error", err)
	}
	return nil
}

func (r *cachedCategories) List(ctx context.Context) ([]*domain.Category, error) {
	var cached []*domain.Category
	hit, err := r.cache.GetJSON(ctx, categoriesKey, &cached)
	if err != nil {
		logger.Warn(ctx, "Category cache read failed", "error", err)
	}
	if hit {
		return cached, nil
	}

	categories, err := r.next.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.cache.SetJSON(ctx, categoriesKey, categories, r.ttl); err != nil {
		logger.Warn(ctx, "Category cache write failed", "error", err)
	}
	return categories, nil
}
