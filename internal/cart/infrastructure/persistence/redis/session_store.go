// Package redis 匿名会话购物车的 Redis 存储：每个会话一个哈希，field 为商品 ID，value 为数量。
package redis

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/wyfcoding/storefront/internal/cart/domain"
	"github.com/wyfcoding/storefront/pkg/cache"
)

const keyPrefix = "cart:session:"

type sessionStore struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewSessionStore 创建会话购物车存储，每次写入都会刷新 ttl
func NewSessionStore(c *cache.RedisCache, ttl time.Duration) domain.Store {
	return &sessionStore{cache: c, ttl: ttl}
}

func key(owner domain.Owner) string {
	return keyPrefix + owner.SessionID
}

func (s *sessionStore) Lines(ctx context.Context, owner domain.Owner) ([]domain.Line, error) {
	fields, err := s.cache.HGetAll(ctx, key(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to read session cart: %w", err)
	}
	lines := make([]domain.Line, 0, len(fields))
	for field, value := range fields {
		productID, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.Atoi(value)
		if err != nil || qty < 1 {
			continue
		}
		lines = append(lines, domain.Line{ProductID: uint(productID), Quantity: qty})
	}
	slices.SortFunc(lines, func(a, b domain.Line) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return lines, nil
}

func (s *sessionStore) Quantity(ctx context.Context, owner domain.Owner, productID uint) (int, error) {
	val, err := s.cache.HGet(ctx, key(owner), field(productID))
	if err != nil {
		return 0, fmt.Errorf("failed to read session cart: %w", err)
	}
	if val == "" {
		return 0, nil
	}
	qty, err := strconv.Atoi(val)
	if err != nil {
		return 0, nil
	}
	return qty, nil
}

func (s *sessionStore) Put(ctx context.Context, owner domain.Owner, productID uint, qty int) error {
	if qty < 1 {
		return domain.ErrInvalidQuantity
	}
	return s.cache.HSetWithTTL(ctx, key(owner), s.ttl, field(productID), qty)
}

func (s *sessionStore) Delete(ctx context.Context, owner domain.Owner, productID uint) error {
	return s.cache.HDel(ctx, key(owner), field(productID))
}

func (s *sessionStore) Clear(ctx context.Context, owner domain.Owner) error {
	return s.cache.Delete(ctx, key(owner))
}

func field(productID uint) string {
	return strconv.FormatUint(uint64(productID), 10)
}
