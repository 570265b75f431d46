// Package mysql 提供了订单仓储接口的 GORM 实现。
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	catalogmysql "github.com/wyfcoding/storefront/internal/catalog/infrastructure/persistence/mysql"
	"github.com/wyfcoding/storefront/internal/order/domain"
	"github.com/wyfcoding/storefront/pkg/db"
	"github.com/wyfcoding/storefront/pkg/logger"
	"gorm.io/gorm"
)

// OrderModel 订单表，收货地址以快照形式保存在订单上
type OrderModel struct {
	ID               uint            `gorm:"primaryKey"`
	UserID           *uint           `gorm:"column:user_id;index;comment:所属用户，用户删除后保留订单"`
	Email            string          `gorm:"column:email;type:varchar(255);not null"`
	Status           string          `gorm:"column:status;type:varchar(20);index;not null"`
	Fulfillment      string          `gorm:"column:fulfillment;type:varchar(10);not null"`
	ShipName         string          `gorm:"column:ship_name;type:varchar(200)"`
	ShipPhone        string          `gorm:"column:ship_phone;type:varchar(30)"`
	ShipAddress1     string          `gorm:"column:ship_address1;type:varchar(255)"`
	ShipAddress2     string          `gorm:"column:ship_address2;type:varchar(255)"`
	ShipCity         string          `gorm:"column:ship_city;type:varchar(100)"`
	ShipProvince     string          `gorm:"column:ship_province;type:varchar(100)"`
	ShipPostalCode   string          `gorm:"column:ship_postal_code;type:varchar(20)"`
	ShipCountry      string          `gorm:"column:ship_country;type:varchar(100)"`
	PickupLocationID *uint           `gorm:"column:pickup_location_id;index"`
	Carrier          string          `gorm:"column:carrier;type:varchar(20)"`
	TrackingNumber   string          `gorm:"column:tracking_number;type:varchar(100)"`
	Subtotal         decimal.Decimal `gorm:"column:subtotal;type:decimal(10,2);not null"`
	Tax              decimal.Decimal `gorm:"column:tax;type:decimal(10,2);not null"`
	Shipping         decimal.Decimal `gorm:"column:shipping;type:decimal(10,2);not null"`
	Total            decimal.Decimal `gorm:"column:total;type:decimal(10,2);not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;index"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`

	Items []OrderItemModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 订单项表，商品被引用时禁止删除
type OrderItemModel struct {
	ID          uint            `gorm:"primaryKey"`
	OrderID     uint            `gorm:"column:order_id;index;not null"`
	ProductID   uint            `gorm:"column:product_id;index;not null"`
	ProductName string          `gorm:"column:product_name;type:varchar(255);not null"`
	Kind        string          `gorm:"column:kind;type:varchar(16);not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:decimal(10,2);not null"`

	Product *catalogmysql.ProductModel `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT"`
}

func (OrderItemModel) TableName() string { return "order_items" }

// Models 返回需要迁移的模型
func Models() []any {
	return []any{&OrderModel{}, &OrderItemModel{}}
}

type orderRepository struct {
	db *db.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(database *db.DB) domain.Repository {
	return &orderRepository{db: database}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := fromDomain(order)
	if err := r.db.Conn(ctx).Create(model).Error; err != nil {
		logger.Error(ctx, "order_repository.create failed", "email", order.Email, "error", err)
		return fmt.Errorf("failed to create order: %w", err)
	}
	order.ID = model.ID
	order.CreatedAt = model.CreatedAt
	order.UpdatedAt = model.UpdatedAt
	for i := range order.Items {
		order.Items[i].ID = model.Items[i].ID
		order.Items[i].OrderID = model.ID
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id uint) (*domain.Order, error) {
	var model OrderModel
	err := r.db.Conn(ctx).Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return model.toDomain(), nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.Filter) ([]*domain.Order, int64, error) {
	q := r.db.Conn(ctx).Model(&OrderModel{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	if filter.WithItems {
		q = q.Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") })
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	}
	var models []OrderModel
	if err := q.Order("created_at desc, id desc").Find(&models).Error; err != nil {
		logger.Error(ctx, "order_repository.list failed", "error", err)
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]*domain.Order, len(models))
	for i := range models {
		orders[i] = models[i].toDomain()
	}
	return orders, total, nil
}

func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	m := fromDomain(order)
	res := r.db.Conn(ctx).Model(&OrderModel{ID: order.ID}).
		Select("status", "carrier", "tracking_number",
			"ship_name", "ship_phone", "ship_address1", "ship_address2",
			"ship_city", "ship_province", "ship_postal_code", "ship_country").
		Updates(m)
	if res.Error != nil {
		return fmt.Errorf("failed to update order: %w", res.Error)
	}
	return nil
}

func fromDomain(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:               o.ID,
		UserID:           o.UserID,
		Email:            o.Email,
		Status:           string(o.Status),
		Fulfillment:      string(o.Fulfillment),
		ShipName:         o.Address.Name,
		ShipPhone:        o.Address.Phone,
		ShipAddress1:     o.Address.Address1,
		ShipAddress2:     o.Address.Address2,
		ShipCity:         o.Address.City,
		ShipProvince:     o.Address.Province,
		ShipPostalCode:   o.Address.PostalCode,
		ShipCountry:      o.Address.Country,
		PickupLocationID: o.PickupLocationID,
		Carrier:          string(o.Carrier),
		TrackingNumber:   o.TrackingNumber,
		Subtotal:         o.Subtotal,
		Tax:              o.Tax,
		Shipping:         o.Shipping,
		Total:            o.Total,
	}
	m.Items = make([]OrderItemModel, len(o.Items))
	for i, it := range o.Items {
		m.Items[i] = OrderItemModel{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Kind:        it.Kind,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
	}
	return m
}

func (m *OrderModel) toDomain() *domain.Order {
	o := &domain.Order{
		ID:          m.ID,
		UserID:      m.UserID,
		Email:       m.Email,
		Status:      domain.Status(m.Status),
		Fulfillment: domain.Fulfillment(m.Fulfillment),
		Address: domain.Address{
			Name:       m.ShipName,
			Phone:      m.ShipPhone,
			Address1:   m.ShipAddress1,
			Address2:   m.ShipAddress2,
			City:       m.ShipCity,
			Province:   m.ShipProvince,
			PostalCode: m.ShipPostalCode,
			Country:    m.ShipCountry,
		},
		PickupLocationID: m.PickupLocationID,
		Carrier:          domain.Carrier(m.Carrier),
		TrackingNumber:   m.TrackingNumber,
		Subtotal:         m.Subtotal,
		Tax:              m.Tax,
		Shipping:         m.Shipping,
		Total:            m.Total,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	o.Items = make([]domain.Item, len(m.Items))
	for i, it := range m.Items {
		o.Items[i] = domain.Item{
			ID:          it.ID,
			OrderID:     it.OrderID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Kind:        it.Kind,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
	}
	return o
}
