package application

import (
	"context"
	"time"

	download "github.com/wyfcoding/storefront/internal/download/domain"
	"github.com/wyfcoding/storefront/internal/order/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
)

// DownloadView 订单详情中的下载项，只暴露令牌
type DownloadView struct {
	ProductID   uint           `json:"product_id"`
	ProductName string         `json:"product_name"`
	Token       string         `json:"token"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Remaining   int            `json:"remaining"`
	State       download.State `json:"state"`
}

// OrderDetail 订单详情
type OrderDetail struct {
	*domain.Order
	Downloads []DownloadView `json:"downloads"`
}

// OrderService 订单查询与后台维护
type OrderService struct {
	orders domain.Repository
	grants GrantIssuer
	tx     TxManager
	now    func() time.Time
}

// NewOrderService 创建订单服务
func NewOrderService(orders domain.Repository, grants GrantIssuer, tx TxManager) *OrderService {
	return &OrderService{orders: orders, grants: grants, tx: tx, now: time.Now}
}

// ListMine 用户的订单，新的在前
func (s *OrderService) ListMine(ctx context.Context, userID uint, limit, offset int) ([]*domain.Order, int64, error) {
	return s.orders.List(ctx, domain.Filter{UserID: &userID, Limit: limit, Offset: offset})
}

// GetMine 用户的订单详情，不属于该用户的订单按不存在处理
func (s *OrderService) GetMine(ctx context.Context, userID, orderID uint) (*OrderDetail, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID == nil || *o.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return s.detail(ctx, o)
}

// AdminList 后台订单列表
func (s *OrderService) AdminList(ctx context.Context, filter domain.Filter) ([]*domain.Order, int64, error) {
	return s.orders.List(ctx, filter)
}

// AdminGet 后台订单详情
func (s *OrderService) AdminGet(ctx context.Context, orderID uint) (*OrderDetail, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, o)
}

// UpdateOrder 后台修改状态、承运商、运单号或地址
func (s *OrderService) UpdateOrder(ctx context.Context, orderID uint, u domain.Update) (*domain.Order, error) {
	var order *domain.Order
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		from := o.Status
		if err := o.Apply(u); err != nil {
			return err
		}
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		if from != o.Status {
			logger.Info(ctx, "Order status changed", "order_id", o.ID, "from", from, "to", o.Status)
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// detail 补签缺失的下载授权后组装详情
func (s *OrderService) detail(ctx context.Context, o *domain.Order) (*OrderDetail, error) {
	d := &OrderDetail{Order: o, Downloads: []DownloadView{}}
	ids := o.DigitalProductIDs()
	if len(ids) == 0 {
		return d, nil
	}
	grants, err := s.grants.Backfill(ctx, o.ID, ids)
	if err != nil {
		return nil, err
	}

	names := make(map[uint]string, len(o.Items))
	for _, it := range o.Items {
		names[it.ProductID] = it.ProductName
	}
	now := s.now()
	for _, g := range grants {
		d.Downloads = append(d.Downloads, DownloadView{
			ProductID:   g.ProductID,
			ProductName: names[g.ProductID],
			Token:       g.Token,
			ExpiresAt:   g.ExpiresAt,
			Remaining:   g.Remaining(),
			State:       g.State(now),
		})
	}
	return d, nil
}
