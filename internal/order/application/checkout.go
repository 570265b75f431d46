// Package application 订单应用服务：结算下单、订单查询与后台维护。
package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	cartapp "github.com/wyfcoding/storefront/internal/cart/application"
	cart "github.com/wyfcoding/storefront/internal/cart/domain"
	catalog "github.com/wyfcoding/storefront/internal/catalog/domain"
	download "github.com/wyfcoding/storefront/internal/download/domain"
	invapp "github.com/wyfcoding/storefront/internal/inventory/application"
	inventory "github.com/wyfcoding/storefront/internal/inventory/domain"
	notification "github.com/wyfcoding/storefront/internal/notification/domain"
	"github.com/wyfcoding/storefront/internal/order/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/metrics"
)

// CartReader 读取与清空购物车
type CartReader interface {
	Items(ctx context.Context, owner cart.Owner) ([]cartapp.Item, error)
	Clear(ctx context.Context, owner cart.Owner) error
}

// ProductLocker 在事务中锁定商品行
type ProductLocker interface {
	LockForUpdate(ctx context.Context, ids []uint) (map[uint]*catalog.Product, error)
}

// PickupDirectory 自提点查询
type PickupDirectory interface {
	ListPickupLocations(ctx context.Context, activeOnly bool) ([]*catalog.PickupLocation, error)
	ActivePickupLocation(ctx context.Context, id uint) (*catalog.PickupLocation, error)
}

// StockLedger 库存流水
type StockLedger interface {
	Adjust(ctx context.Context, cmd invapp.AdjustCommand) (*inventory.Entry, error)
	ConsumeSeats(ctx context.Context, productID uint, qty int, orderID *uint) (*inventory.Entry, error)
}

// GrantIssuer 数字商品下载授权
type GrantIssuer interface {
	Issue(ctx context.Context, orderID, productID uint) (*download.Grant, error)
	Backfill(ctx context.Context, orderID uint, digitalProductIDs []uint) ([]*download.Grant, error)
}

// Notifier 订单通知
type Notifier interface {
	OrderConfirmed(ctx context.Context, summary notification.OrderSummary) error
	DownloadsIssued(ctx context.Context, orderID uint, email string, links []notification.DownloadLink) error
}

// TxManager 事务执行器
type TxManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// PlaceCommand 下单指令
type PlaceCommand struct {
	UserID           uint
	Email            string
	CustomerName     string
	Fulfillment      domain.Fulfillment
	Shipping         domain.ShippingForm
	PickupLocationID uint
}

// PreviewLine 结算页的一行
type PreviewLine struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Kind      catalog.Kind    `json:"kind"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
	Available int             `json:"available"`
}

// Preview 结算页数据
type Preview struct {
	Lines               []PreviewLine             `json:"lines"`
	Quote               domain.Quote              `json:"quote"`
	UnderStocked        []domain.StockConflict    `json:"under_stocked"`
	RequiresFulfillment bool                      `json:"requires_fulfillment"`
	PickupLocations     []*catalog.PickupLocation `json:"pickup_locations"`
}

// CheckoutService 结算服务
type CheckoutService struct {
	carts    CartReader
	products ProductLocker
	pickups  PickupDirectory
	ledger   StockLedger
	grants   GrantIssuer
	orders   domain.Repository
	notifier Notifier
	tx       TxManager
	rules    domain.PricingRules
	metrics  *metrics.Metrics
}

// NewCheckoutService 创建结算服务
func NewCheckoutService(
	carts CartReader,
	products ProductLocker,
	pickups PickupDirectory,
	ledger StockLedger,
	grants GrantIssuer,
	orders domain.Repository,
	notifier Notifier,
	tx TxManager,
	rules domain.PricingRules,
	m *metrics.Metrics,
) *CheckoutService {
	return &CheckoutService{
		carts:    carts,
		products: products,
		pickups:  pickups,
		ledger:   ledger,
		grants:   grants,
		orders:   orders,
		notifier: notifier,
		tx:       tx,
		rules:    rules,
		metrics:  m,
	}
}

// Preview 结算预览，pickup 为 true 时按自提计算运费
func (s *CheckoutService) Preview(ctx context.Context, userID uint, pickup bool) (*Preview, error) {
	items, err := s.carts.Items(ctx, cart.ForUser(userID))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	hasPhysical := containsPhysical(items)
	p := &Preview{
		Lines:               make([]PreviewLine, len(items)),
		Quote:               s.quote(items, hasPhysical && pickup),
		UnderStocked:        stockConflicts(items),
		RequiresFulfillment: hasPhysical,
	}
	for i, it := range items {
		p.Lines[i] = PreviewLine{
			ProductID: it.Product.ID,
			Name:      it.Product.Name,
			Kind:      it.Product.Kind(),
			UnitPrice: it.Product.Price,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal(),
			Available: it.Product.Capacity(),
		}
	}
	if hasPhysical {
		if p.PickupLocations, err = s.pickups.ListPickupLocations(ctx, true); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// placement 事务内产生、提交后用于通知的数据
type placement struct {
	order          *domain.Order
	links          []notification.DownloadLink
	customerName   string
	shippingLabel  string
	fulfillmentMsg string
}

// Place 下单。所有前置校验在任何写入之前完成；
// 订单、订单项、库存流水、下载授权与清空购物车在同一事务内提交，
// 锁定后发现库存变化时整体回滚并返回 ErrStockChanged。通知在提交后发送，失败只记录日志。
func (s *CheckoutService) Place(ctx context.Context, cmd PlaceCommand) (*domain.Order, error) {
	res, err := s.place(ctx, cmd)
	if err != nil {
		s.metrics.RecordCheckout(checkoutOutcome(err))
		return nil, err
	}
	s.metrics.RecordCheckout("success")
	s.metrics.ObserveOrderTotal(res.order.Total.InexactFloat64())
	logger.Info(ctx, "Order placed", "order_id", res.order.ID, "user_id", cmd.UserID, "total", res.order.Total.String())

	s.notify(ctx, res)
	return res.order, nil
}

func (s *CheckoutService) place(ctx context.Context, cmd PlaceCommand) (*placement, error) {
	owner := cart.ForUser(cmd.UserID)
	items, err := s.carts.Items(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if conflicts := stockConflicts(items); len(conflicts) > 0 {
		return nil, &domain.StockConflictError{Conflicts: conflicts}
	}

	res := &placement{customerName: cmd.CustomerName}
	fulfillment := domain.FulfillmentNone
	var (
		address  domain.Address
		pickupID *uint
	)
	if containsPhysical(items) {
		fulfillment = cmd.Fulfillment
		switch cmd.Fulfillment {
		case domain.FulfillmentShip:
			if address, err = cmd.Shipping.Validate(); err != nil {
				return nil, err
			}
			res.fulfillmentMsg = "Shipping to:\n" + address.Lines()
		case domain.FulfillmentPickup:
			loc, err := s.pickupLocation(ctx, cmd.PickupLocationID)
			if err != nil {
				return nil, err
			}
			pickupID = &loc.ID
			res.fulfillmentMsg = "Pickup at: " + loc.Name + "\n" + loc.Address1 + ", " + loc.City
			if loc.Instructions != "" {
				res.fulfillmentMsg += "\n" + loc.Instructions
			}
		default:
			return nil, &domain.ValidationError{Fields: map[string]string{"fulfillment": "Choose shipping or pickup."}}
		}
	}

	quote := s.quote(items, fulfillment == domain.FulfillmentPickup)
	lines := make([]domain.Item, len(items))
	for i, it := range items {
		lines[i] = domain.Item{
			ProductID:   it.Product.ID,
			ProductName: it.Product.Name,
			Kind:        string(it.Product.Kind()),
			Quantity:    it.Quantity,
			UnitPrice:   it.Product.Price,
		}
	}
	order, err := domain.NewOrder(cmd.UserID, cmd.Email, fulfillment, lines, quote.Totals())
	if err != nil {
		return nil, err
	}
	order.Address = address
	order.PickupLocationID = pickupID
	res.order = order
	res.shippingLabel = quote.ShippingLabel

	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		if err := s.lockAndRecheck(ctx, items); err != nil {
			return err
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}
		for _, it := range items {
			link, err := s.fulfillLine(ctx, order, it)
			if err != nil {
				return err
			}
			if link != nil {
				res.links = append(res.links, *link)
			}
		}
		return s.carts.Clear(ctx, owner)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// lockAndRecheck 锁定购物车中的实物商品并在锁内复核库存
func (s *CheckoutService) lockAndRecheck(ctx context.Context, items []cartapp.Item) error {
	var ids []uint
	for _, it := range items {
		if it.Product.IsPhysical() {
			ids = append(ids, it.Product.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	locked, err := s.products.LockForUpdate(ctx, ids)
	if err != nil {
		return err
	}
	for _, it := range items {
		if !it.Product.IsPhysical() {
			continue
		}
		p, ok := locked[it.Product.ID]
		if !ok || p.Stock() < it.Quantity {
			logger.Warn(ctx, "Stock changed during checkout", "product_id", it.Product.ID, "requested", it.Quantity)
			return domain.ErrStockChanged
		}
	}
	return nil
}

// fulfillLine 扣减库存或名额，数字商品签发下载授权
func (s *CheckoutService) fulfillLine(ctx context.Context, order *domain.Order, it cartapp.Item) (*notification.DownloadLink, error) {
	p := it.Product
	switch p.Kind() {
	case catalog.KindPhysical:
		_, err := s.ledger.Adjust(ctx, invapp.AdjustCommand{
			ProductID:  p.ID,
			Delta:      -it.Quantity,
			ChangeType: inventory.ChangeOrder,
			OrderID:    &order.ID,
			Actor:      order.Email,
			Note:       fmt.Sprintf("Order #%d", order.ID),
		})
		if errors.Is(err, inventory.ErrInsufficientStock) {
			return nil, domain.ErrStockChanged
		}
		return nil, err
	case catalog.KindService:
		_, err := s.ledger.ConsumeSeats(ctx, p.ID, it.Quantity, &order.ID)
		return nil, err
	case catalog.KindDigital:
		grant, err := s.grants.Issue(ctx, order.ID, p.ID)
		if err != nil {
			return nil, err
		}
		return &notification.DownloadLink{ProductName: p.Name, Token: grant.Token}, nil
	}
	return nil, nil
}

func (s *CheckoutService) pickupLocation(ctx context.Context, id uint) (*catalog.PickupLocation, error) {
	if id == 0 {
		return nil, &domain.ValidationError{Fields: map[string]string{"pickup_location": "Select a pickup location."}}
	}
	loc, err := s.pickups.ActivePickupLocation(ctx, id)
	if errors.Is(err, catalog.ErrPickupLocationNotFound) {
		return nil, &domain.ValidationError{Fields: map[string]string{"pickup_location": "Select a valid pickup location."}}
	}
	return loc, err
}

func (s *CheckoutService) notify(ctx context.Context, res *placement) {
	o := res.order
	summary := notification.OrderSummary{
		OrderID:       o.ID,
		Email:         o.Email,
		CustomerName:  res.customerName,
		Lines:         make([]notification.OrderLine, len(o.Items)),
		Subtotal:      o.Subtotal,
		Tax:           o.Tax,
		Shipping:      o.Shipping,
		ShippingLabel: res.shippingLabel,
		Total:         o.Total,
		Fulfillment:   res.fulfillmentMsg,
	}
	for i, it := range o.Items {
		summary.Lines[i] = notification.OrderLine{Name: it.ProductName, Quantity: it.Quantity, LineTotal: it.LineTotal()}
	}
	if err := s.notifier.OrderConfirmed(ctx, summary); err != nil {
		logger.Warn(ctx, "Failed to send order confirmation", "order_id", o.ID, "error", err)
	}
	if len(res.links) == 0 {
		return
	}
	if err := s.notifier.DownloadsIssued(ctx, o.ID, o.Email, res.links); err != nil {
		logger.Warn(ctx, "Failed to send download links", "order_id", o.ID, "error", err)
	}
}

func (s *CheckoutService) quote(items []cartapp.Item, pickup bool) domain.Quote {
	totals := make([]decimal.Decimal, len(items))
	for i, it := range items {
		totals[i] = it.LineTotal()
	}
	return s.rules.Quote(totals, containsPhysical(items), pickup)
}

func containsPhysical(items []cartapp.Item) bool {
	for _, it := range items {
		if it.Product.IsPhysical() {
			return true
		}
	}
	return false
}

func stockConflicts(items []cartapp.Item) []domain.StockConflict {
	var out []domain.StockConflict
	for _, it := range items {
		if it.Product.IsPhysical() && it.Quantity > it.Product.Stock() {
			out = append(out, domain.StockConflict{
				ProductID: it.Product.ID,
				Name:      it.Product.Name,
				Requested: it.Quantity,
				Available: it.Product.Stock(),
			})
		}
	}
	return out
}

func checkoutOutcome(err error) string {
	var (
		verr *domain.ValidationError
		cerr *domain.StockConflictError
	)
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.As(err, &verr):
		return "validation"
	case errors.As(err, &cerr):
		return "stock_conflict"
	case errors.Is(err, domain.ErrStockChanged):
		return "stock_changed"
	}
	return "error"
}
