// Package domain 包含订单服务的领域模型：订单、订单项、履约方式与状态流转。
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrStockChanged      = errors.New("stock changed, please retry")
	ErrTotalMismatch     = errors.New("order total does not equal subtotal + tax + shipping")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrInvalidCarrier    = errors.New("invalid shipping carrier")
)

// Status 订单状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusShipped, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo 状态是否允许流转到 next，原地不变视为允许
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// locksSnapshot 已付款、已发货、已送达的订单不再修改收货地址快照
func (s Status) locksSnapshot() bool {
	return s == StatusPaid || s == StatusShipped || s == StatusDelivered
}

// Fulfillment 履约方式
type Fulfillment string

const (
	FulfillmentNone   Fulfillment = "none"
	FulfillmentShip   Fulfillment = "ship"
	FulfillmentPickup Fulfillment = "pickup"
)

// Carrier 承运商
type Carrier string

const (
	CarrierCanadaPost Carrier = "canadapost"
	CarrierUPS        Carrier = "ups"
	CarrierFedEx      Carrier = "fedex"
	CarrierDHL        Carrier = "dhl"
	CarrierOther      Carrier = "other"
)

// Valid 空值表示未指定
func (c Carrier) Valid() bool {
	switch c {
	case "", CarrierCanadaPost, CarrierUPS, CarrierFedEx, CarrierDHL, CarrierOther:
		return true
	}
	return false
}

// Address 收货地址快照
type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Lines 多行格式，用于邮件与导出
func (a Address) Lines() string {
	var lines []string
	for _, s := range []string{a.Name, a.Phone, a.Address1, a.Address2} {
		if s != "" {
			lines = append(lines, s)
		}
	}
	var city []string
	for _, s := range []string{a.City, a.Province, a.PostalCode} {
		if s != "" {
			city = append(city, s)
		}
	}
	if len(city) > 0 {
		lines = append(lines, strings.Join(city, " "))
	}
	if a.Country != "" {
		lines = append(lines, a.Country)
	}
	return strings.Join(lines, "\n")
}

// Item 订单项，单价在下单时冻结
type Item struct {
	ID          uint            `json:"id"`
	OrderID     uint            `json:"order_id"`
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	Kind        string          `json:"kind"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// LineTotal 行金额
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Round(2)
}

// IsDigital 是否为数字商品行
func (i Item) IsDigital() bool { return i.Kind == "digital" }

// IsService 是否为服务商品行
func (i Item) IsService() bool { return i.Kind == "service" }

// Order 订单
type Order struct {
	ID               uint            `json:"id"`
	UserID           *uint           `json:"user_id,omitempty"`
	Email            string          `json:"email"`
	Status           Status          `json:"status"`
	Fulfillment      Fulfillment     `json:"fulfillment"`
	Address          Address         `json:"address"`
	PickupLocationID *uint           `json:"pickup_location_id,omitempty"`
	Carrier          Carrier         `json:"carrier,omitempty"`
	TrackingNumber   string          `json:"tracking_number,omitempty"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Tax              decimal.Decimal `json:"tax"`
	Shipping         decimal.Decimal `json:"shipping"`
	Total            decimal.Decimal `json:"total"`
	Items            []Item          `json:"items"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Totals 订单金额
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// NewOrder 创建已付款订单，金额必须满足 total = subtotal + tax + shipping
func NewOrder(userID uint, email string, fulfillment Fulfillment, items []Item, totals Totals) (*Order, error) {
	if !totals.Subtotal.Add(totals.Tax).Add(totals.Shipping).Equal(totals.Total) {
		return nil, fmt.Errorf("%w: %s + %s + %s != %s", ErrTotalMismatch,
			totals.Subtotal, totals.Tax, totals.Shipping, totals.Total)
	}
	o := &Order{
		Email:       email,
		Status:      StatusPaid,
		Fulfillment: fulfillment,
		Subtotal:    totals.Subtotal,
		Tax:         totals.Tax,
		Shipping:    totals.Shipping,
		Total:       totals.Total,
		Items:       items,
	}
	if userID != 0 {
		o.UserID = &userID
	}
	return o, nil
}

// DigitalProductIDs 订单中数字商品的 ID
func (o *Order) DigitalProductIDs() []uint {
	var ids []uint
	for _, it := range o.Items {
		if it.IsDigital() {
			ids = append(ids, it.ProductID)
		}
	}
	return ids
}

// Update 后台修改订单，nil 字段保持不变
type Update struct {
	Status         *Status
	Carrier        *Carrier
	TrackingNumber *string
	Address        *Address
}

// Apply 应用修改。状态必须按流转规则变化；
// 修改后的状态若锁定快照，地址修改被静默忽略。
func (o *Order) Apply(u Update) error {
	next := o.Status
	if u.Status != nil {
		if !u.Status.Valid() || !o.Status.CanTransitionTo(*u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, *u.Status)
		}
		next = *u.Status
	}
	if u.Carrier != nil && !u.Carrier.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidCarrier, *u.Carrier)
	}

	o.Status = next
	if u.Carrier != nil {
		o.Carrier = *u.Carrier
	}
	if u.TrackingNumber != nil {
		o.TrackingNumber = strings.TrimSpace(*u.TrackingNumber)
	}
	if u.Address != nil && !next.locksSnapshot() {
		o.Address = *u.Address
	}
	return nil
}

// Filter 订单列表查询条件
type Filter struct {
	UserID *uint
	Status Status
	// 导出时一并加载订单项
	WithItems bool
	Limit     int
	Offset    int
}

// Repository 订单仓储
type Repository interface {
	// Create 在当前事务中写入订单及订单项
	Create(ctx context.Context, order *Order) error
	// Get 不存在时返回 ErrOrderNotFound
	Get(ctx context.Context, id uint) (*Order, error)
	List(ctx context.Context, filter Filter) ([]*Order, int64, error)
	// Update 保存状态、承运商、运单号与地址快照
	Update(ctx context.Context, order *Order) error
}
