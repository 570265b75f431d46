// Package mysql 提供库存流水仓储的 GORM 实现。
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/storefront/internal/inventory/domain"
	"github.com/wyfcoding/storefront/pkg/db"
	"gorm.io/gorm"
)

// InventoryLogModel 库存流水表
type InventoryLogModel struct {
	ID         uint      `gorm:"primaryKey"`
	ProductID  uint      `gorm:"column:product_id;index;not null"`
	Delta      int       `gorm:"column:delta;not null"`
	ChangeType string    `gorm:"column:change_type;type:varchar(16);index;not null"`
	OrderID    *uint     `gorm:"column:order_id;index"`
	Actor      string    `gorm:"column:actor;type:varchar(255)"`
	Note       string    `gorm:"column:note;type:text"`
	CreatedAt  time.Time `gorm:"column:created_at;index"`
}

func (InventoryLogModel) TableName() string { return "inventory_logs" }

// productStock products 表中库存相关的列
type productStock struct {
	ID           uint
	Kind         string
	Stock        int
	ServiceSeats *int
}

func (productStock) TableName() string { return "products" }

// Models 返回需要迁移的模型
func Models() []any {
	return []any{&InventoryLogModel{}}
}

type inventoryRepository struct {
	db *db.DB
}

// NewInventoryRepository 创建库存仓储
func NewInventoryRepository(database *db.DB) domain.Repository {
	return &inventoryRepository{db: database}
}

func (r *inventoryRepository) ApplyStockDelta(ctx context.Context, productID uint, delta int) (int, error) {
	conn := r.db.Conn(ctx)
	res := conn.Model(&productStock{}).
		Where("id = ? AND kind = ? AND stock + ? >= 0", productID, "physical", delta).
		UpdateColumn("stock", gorm.Expr("stock + ?", delta))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update stock: %w", res.Error)
	}

	var row productStock
	if err := conn.Select("id", "kind", "stock").First(&row, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.ErrProductNotFound
		}
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}
	if res.RowsAffected == 0 {
		if row.Kind != "physical" {
			return 0, domain.ErrNotPhysical
		}
		return row.Stock, domain.ErrInsufficientStock
	}
	return row.Stock, nil
}

func (r *inventoryRepository) ConsumeSeats(ctx context.Context, productID uint, qty int) (int, bool, error) {
	conn := r.db.Conn(ctx)
	var row productStock
	if err := conn.Clauses(db.ForUpdate()).Select("id", "kind", "service_seats").First(&row, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, domain.ErrProductNotFound
		}
		return 0, false, fmt.Errorf("failed to read seats: %w", err)
	}
	if row.ServiceSeats == nil {
		return 0, false, nil
	}

	remaining := max(*row.ServiceSeats-qty, 0)
	if err := conn.Model(&productStock{}).Where("id = ?", productID).
		UpdateColumn("service_seats", remaining).Error; err != nil {
		return 0, false, fmt.Errorf("failed to update seats: %w", err)
	}
	return remaining - *row.ServiceSeats, true, nil
}

func (r *inventoryRepository) Append(ctx context.Context, entry *domain.Entry) error {
	model := &InventoryLogModel{
		ProductID:  entry.ProductID,
		Delta:      entry.Delta,
		ChangeType: string(entry.ChangeType),
		OrderID:    entry.OrderID,
		Actor:      entry.Actor,
		Note:       entry.Note,
	}
	if err := r.db.Conn(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to append inventory log: %w", err)
	}
	entry.ID = model.ID
	entry.CreatedAt = model.CreatedAt
	return nil
}

func (r *inventoryRepository) History(ctx context.Context, productID uint, limit int) ([]*domain.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []InventoryLogModel
	if err := r.db.Conn(ctx).Where("product_id = ?", productID).
		Order("created_at desc, id desc").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list inventory logs: %w", err)
	}
	return toEntries(models), nil
}

func (r *inventoryRepository) ListByOrder(ctx context.Context, orderID uint) ([]*domain.Entry, error) {
	var models []InventoryLogModel
	if err := r.db.Conn(ctx).Where("order_id = ?", orderID).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list inventory logs: %w", err)
	}
	return toEntries(models), nil
}

func (r *inventoryRepository) Sum(ctx context.Context, productID uint) (int, error) {
	var sum int
	if err := r.db.Conn(ctx).Model(&InventoryLogModel{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(delta), 0)").Scan(&sum).Error; err != nil {
		return 0, fmt.Errorf("failed to sum inventory logs: %w", err)
	}
	return sum, nil
}

func (r *inventoryRepository) Stock(ctx context.Context, productID uint) (int, error) {
	var row productStock
	if err := r.db.Conn(ctx).Select("id", "kind", "stock").First(&row, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.ErrProductNotFound
		}
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}
	if row.Kind != "physical" {
		return 0, domain.ErrNotPhysical
	}
	return row.Stock, nil
}

func toEntries(models []InventoryLogModel) []*domain.Entry {
	out := make([]*domain.Entry, len(models))
	for i, m := range models {
		out[i] = &domain.Entry{
			ID:         m.ID,
			ProductID:  m.ProductID,
			Delta:      m.Delta,
			ChangeType: domain.ChangeType(m.ChangeType),
			OrderID:    m.OrderID,
			Actor:      m.Actor,
			Note:       m.Note,
			CreatedAt:  m.CreatedAt,
		}
	}
	return out
}
