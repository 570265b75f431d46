// Package application 提供库存流水服务：原子地调整库存并记账。
package application

import (
	"context"
	"fmt"

	"github.com/wyfcoding/storefront/internal/inventory/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/metrics"
)

// TxManager 事务执行器，*db.DB 实现了该接口
type TxManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AdjustCommand 库存调整指令
type AdjustCommand struct {
	ProductID  uint
	Delta      int
	ChangeType domain.ChangeType
	OrderID    *uint
	Actor      string
	Note       string
}

// Ledger 库存流水服务
type Ledger struct {
	repo    domain.Repository
	tx      TxManager
	metrics *metrics.Metrics
}

// NewLedger 创建库存流水服务
func NewLedger(repo domain.Repository, tx TxManager, m *metrics.Metrics) *Ledger {
	return &Ledger{repo: repo, tx: tx, metrics: m}
}

// Adjust 条件更新库存并追加一条流水，二者在同一事务内完成；
// 调用方已开启事务时加入该事务。结果为负时返回 ErrInsufficientStock。
func (l *Ledger) Adjust(ctx context.Context, cmd AdjustCommand) (*domain.Entry, error) {
	if !cmd.ChangeType.Valid() {
		return nil, fmt.Errorf("unknown change type %q", cmd.ChangeType)
	}

	entry := &domain.Entry{
		ProductID:  cmd.ProductID,
		Delta:      cmd.Delta,
		ChangeType: cmd.ChangeType,
		OrderID:    cmd.OrderID,
		Actor:      cmd.Actor,
		Note:       cmd.Note,
	}
	err := l.tx.Transaction(ctx, func(ctx context.Context) error {
		if _, err := l.repo.ApplyStockDelta(ctx, cmd.ProductID, cmd.Delta); err != nil {
			return err
		}
		return l.repo.Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	l.metrics.RecordInventoryAdjustment(string(cmd.ChangeType))
	logger.Debug(ctx, "Inventory adjusted",
		"product_id", cmd.ProductID,
		"delta", cmd.Delta,
		"change_type", cmd.ChangeType,
	)
	return entry, nil
}

// Restock 入库
func (l *Ledger) Restock(ctx context.Context, productID uint, qty int, actor, note string) (*domain.Entry, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	return l.Adjust(ctx, AdjustCommand{
		ProductID:  productID,
		Delta:      qty,
		ChangeType: domain.ChangeRestock,
		Actor:      actor,
		Note:       note,
	})
}

// ConsumeSeats 订单占用服务名额，扣减至 0 为止并记账；名额不限时不产生流水
func (l *Ledger) ConsumeSeats(ctx context.Context, productID uint, qty int, orderID *uint) (*domain.Entry, error) {
	var entry *domain.Entry
	err := l.tx.Transaction(ctx, func(ctx context.Context) error {
		applied, limited, err := l.repo.ConsumeSeats(ctx, productID, qty)
		if err != nil || !limited {
			return err
		}
		entry = &domain.Entry{
			ProductID:  productID,
			Delta:      applied,
			ChangeType: domain.ChangeOrder,
			OrderID:    orderID,
			Note:       "service seats",
		}
		return l.repo.Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	if entry != nil {
		l.metrics.RecordInventoryAdjustment(string(domain.ChangeOrder))
	}
	return entry, nil
}

// History 商品的库存流水，按时间倒序
func (l *Ledger) History(ctx context.Context, productID uint, limit int) ([]*domain.Entry, error) {
	return l.repo.History(ctx, productID, limit)
}

// OrderEntries 订单产生的库存流水
func (l *Ledger) OrderEntries(ctx context.Context, orderID uint) ([]*domain.Entry, error) {
	return l.repo.ListByOrder(ctx, orderID)
}

// Reconcile 核对流水合计与缓存库存
func (l *Ledger) Reconcile(ctx context.Context, productID uint) (*domain.Reconciliation, error) {
	stock, err := l.repo.Stock(ctx, productID)
	if err != nil {
		return nil, err
	}
	sum, err := l.repo.Sum(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &domain.Reconciliation{
		ProductID:  productID,
		LedgerSum:  sum,
		Stock:      stock,
		Consistent: sum == stock,
	}, nil
}

// CurrentStock 实物商品的缓存库存
func (l *Ledger) CurrentStock(ctx context.Context, productID uint) (int, error) {
	return l.repo.Stock(ctx, productID)
}
