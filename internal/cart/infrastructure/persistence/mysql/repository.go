// Package mysql 账户购物车的 GORM 存储
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/storefront/internal/cart/domain"
	"github.com/wyfcoding/storefront/pkg/db"
	"gorm.io/gorm"
)

// CartItemModel 购物车行，(user_id, product_id) 唯一
type CartItemModel struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"column:user_id;uniqueIndex:idx_cart_user_product;not null"`
	ProductID uint      `gorm:"column:product_id;uniqueIndex:idx_cart_user_product;not null"`
	Quantity  int       `gorm:"column:quantity;not null"`
	AddedAt   time.Time `gorm:"column:added_at;not null"`
}

func (CartItemModel) TableName() string { return "cart_items" }

// Models 返回需要迁移的模型
func Models() []any {
	return []any{&CartItemModel{}}
}

type accountStore struct {
	db *db.DB
}

// NewAccountStore 创建账户购物车存储
func NewAccountStore(database *db.DB) domain.Store {
	return &accountStore{db: database}
}

func (s *accountStore) Lines(ctx context.Context, owner domain.Owner) ([]domain.Line, error) {
	var models []CartItemModel
	if err := s.db.Conn(ctx).Where("user_id = ?", owner.UserID).Order("added_at, id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	lines := make([]domain.Line, len(models))
	for i, m := range models {
		lines[i] = domain.Line{ProductID: m.ProductID, Quantity: m.Quantity, AddedAt: m.AddedAt}
	}
	return lines, nil
}

func (s *accountStore) Quantity(ctx context.Context, owner domain.Owner, productID uint) (int, error) {
	var m CartItemModel
	err := s.db.Conn(ctx).Select("quantity").
		Where("user_id = ? AND product_id = ?", owner.UserID, productID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cart item: %w", err)
	}
	return m.Quantity, nil
}

func (s *accountStore) Put(ctx context.Context, owner domain.Owner, productID uint, qty int) error {
	if qty < 1 {
		return domain.ErrInvalidQuantity
	}
	record := &CartItemModel{UserID: owner.UserID, ProductID: productID, Quantity: qty, AddedAt: time.Now()}
	if err := s.db.UpsertWithConflict(ctx, record, []string{"user_id", "product_id"}, []string{"quantity"}); err != nil {
		return fmt.Errorf("failed to save cart item: %w", err)
	}
	return nil
}

func (s *accountStore) Delete(ctx context.Context, owner domain.Owner, productID uint) error {
	err := s.db.Conn(ctx).Where("user_id = ? AND product_id = ?", owner.UserID, productID).
		Delete(&CartItemModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return nil
}

func (s *accountStore) Clear(ctx context.Context, owner domain.Owner) error {
	if err := s.db.Conn(ctx).Where("user_id = ?", owner.UserID).Delete(&CartItemModel{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
