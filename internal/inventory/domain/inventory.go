// Package domain 定义库存流水（只追加）及库存调整规则。
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotPhysical       = errors.New("product does not track stock")
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// ChangeType 库存变动类型
type ChangeType string

const (
	ChangeInitial ChangeType = "INITIAL"
	ChangeOrder   ChangeType = "ORDER"
	ChangeRestock ChangeType = "RESTOCK"
	ChangeAdjust  ChangeType = "ADJUST"
	ChangeRefund  ChangeType = "REFUND"
)

// Valid 是否为已知类型
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeInitial, ChangeOrder, ChangeRestock, ChangeAdjust, ChangeRefund:
		return true
	}
	return false
}

// Entry 一条库存流水。OrderID 为松散引用，不建外键。
type Entry struct {
	ID         uint       `json:"id"`
	ProductID  uint       `json:"product_id"`
	Delta      int        `json:"delta"`
	ChangeType ChangeType `json:"change_type"`
	OrderID    *uint      `json:"order_id,omitempty"`
	Actor      string     `json:"actor,omitempty"`
	Note       string     `json:"note,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Reconciliation 流水合计与缓存库存的核对结果
type Reconciliation struct {
	ProductID  uint `json:"product_id"`
	LedgerSum  int  `json:"ledger_sum"`
	Stock      int  `json:"stock"`
	Consistent bool `json:"consistent"`
}

// Repository 库存仓储
type Repository interface {
	// ApplyStockDelta 条件更新实物库存，结果为负时返回 ErrInsufficientStock，返回更新后的库存
	ApplyStockDelta(ctx context.Context, productID uint, delta int) (int, error)
	// ConsumeSeats 扣减服务名额（最低为 0），返回实际变动量；名额不限时返回 (0, false)
	ConsumeSeats(ctx context.Context, productID uint, qty int) (int, bool, error)
	Append(ctx context.Context, entry *Entry) error
	History(ctx context.Context, productID uint, limit int) ([]*Entry, error)
	ListByOrder(ctx context.Context, orderID uint) ([]*Entry, error)
	Sum(ctx context.Context, productID uint) (int, error)
	Stock(ctx context.Context, productID uint) (int, error)
}
