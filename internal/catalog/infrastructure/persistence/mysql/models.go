// Package mysql 提供商品目录仓储的 GORM 实现。
package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/storefront/internal/catalog/domain"
)

// CategoryModel 分类表
type CategoryModel struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"column:name;type:varchar(100);uniqueIndex;not null"`
	Slug      string    `gorm:"column:slug;type:varchar(100);uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (CategoryModel) TableName() string { return "categories" }

// ProductModel 商品表。kind 决定哪些变体列有效。
type ProductModel struct {
	ID          uint            `gorm:"primaryKey"`
	Name        string          `gorm:"column:name;type:varchar(255);not null"`
	Description string          `gorm:"column:description;type:text"`
	Price       decimal.Decimal `gorm:"column:price;type:decimal(10,2);not null"`
	CategoryID  *uint           `gorm:"column:category_id;index"`
	Active      bool            `gorm:"column:active;index;not null"`
	Featured    bool            `gorm:"column:featured;index;not null"`
	GST         bool            `gorm:"column:gst;not null"`
	PST         bool            `gorm:"column:pst;not null"`
	Kind        string          `gorm:"column:kind;type:varchar(16);index;not null"`
	// 实物库存缓存值，只能通过库存流水修改
	Stock                  int        `gorm:"column:stock;not null"`
	DigitalFile            string     `gorm:"column:digital_file;type:varchar(255)"`
	DigitalURL             string     `gorm:"column:digital_url;type:varchar(512)"`
	ServiceSeats           *int       `gorm:"column:service_seats"`
	ServiceStartsAt        *time.Time `gorm:"column:service_starts_at"`
	ServiceDurationMinutes int        `gorm:"column:service_duration_minutes;not null"`
	ServiceLocation        string     `gorm:"column:service_location;type:varchar(255)"`
	CreatedAt              time.Time  `gorm:"column:created_at"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`

	Category *CategoryModel `gorm:"foreignKey:CategoryID"`
	Images   []ImageModel   `gorm:"foreignKey:ProductID"`
}

func (ProductModel) TableName() string { return "products" }

// ImageModel 商品图片表
type ImageModel struct {
	ID        uint   `gorm:"primaryKey"`
	ProductID uint   `gorm:"column:product_id;index;not null"`
	URL       string `gorm:"column:url;type:varchar(512);not null"`
	Alt       string `gorm:"column:alt;type:varchar(255)"`
	IsMain    bool   `gorm:"column:is_main;not null"`
	SortOrder int    `gorm:"column:sort_order;not null"`
}

func (ImageModel) TableName() string { return "product_images" }

// PickupLocationModel 自提点表
type PickupLocationModel struct {
	ID           uint      `gorm:"primaryKey"`
	Name         string    `gorm:"column:name;type:varchar(255);not null"`
	Address1     string    `gorm:"column:address1;type:varchar(255);not null"`
	Address2     string    `gorm:"column:address2;type:varchar(255)"`
	City         string    `gorm:"column:city;type:varchar(100);not null"`
	Province     string    `gorm:"column:province;type:varchar(50)"`
	PostalCode   string    `gorm:"column:postal_code;type:varchar(20)"`
	Country      string    `gorm:"column:country;type:varchar(50)"`
	Phone        string    `gorm:"column:phone;type:varchar(30)"`
	Instructions string    `gorm:"column:instructions;type:text"`
	Active       bool      `gorm:"column:active;index;not null"`
	DisplayOrder int       `gorm:"column:display_order;not null"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (PickupLocationModel) TableName() string { return "pickup_locations" }

// Models 返回需要迁移的模型
func Models() []any {
	return []any{&CategoryModel{}, &ProductModel{}, &ImageModel{}, &PickupLocationModel{}}
}

func productToModel(p *domain.Product) *ProductModel {
	m := &ProductModel{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		CategoryID:  p.CategoryID,
		Active:      p.Active,
		Featured:    p.Featured,
		GST:         p.GST,
		PST:         p.PST,
		Kind:        string(p.Kind()),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	switch v := p.Variant.(type) {
	case domain.Physical:
		m.Stock = v.Stock
	case domain.Digital:
		m.DigitalFile = v.File
		m.DigitalURL = v.URL
	case domain.Service:
		m.ServiceSeats = v.Seats
		m.ServiceStartsAt = v.StartsAt
		m.ServiceDurationMinutes = v.DurationMinutes
		m.ServiceLocation = v.Location
	}
	return m
}

func (m *ProductModel) toDomain() *domain.Product {
	p := &domain.Product{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Price:       m.Price,
		CategoryID:  m.CategoryID,
		Active:      m.Active,
		Featured:    m.Featured,
		GST:         m.GST,
		PST:         m.PST,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	switch domain.Kind(m.Kind) {
	case domain.KindDigital:
		p.Variant = domain.Digital{File: m.DigitalFile, URL: m.DigitalURL}
	case domain.KindService:
		p.Variant = domain.Service{
			Seats:           m.ServiceSeats,
			StartsAt:        m.ServiceStartsAt,
			DurationMinutes: m.ServiceDurationMinutes,
			Location:        m.ServiceLocation,
		}
	default:
		p.Variant = domain.Physical{Stock: m.Stock}
	}
	if m.Category != nil {
		p.Category = &domain.Category{ID: m.Category.ID, Name: m.Category.Name, Slug: m.Category.Slug}
	}
	for _, img := range m.Images {
		p.Images = append(p.Images, domain.Image{
			ID:        img.ID,
			ProductID: img.ProductID,
			URL:       img.URL,
			Alt:       img.Alt,
			IsMain:    img.IsMain,
			SortOrder: img.SortOrder,
		})
	}
	return p
}

func pickupToModel(l *domain.PickupLocation) *PickupLocationModel {
	return &PickupLocationModel{
		ID:           l.ID,
		Name:         l.Name,
		Address1:     l.Address1,
		Address2:     l.Address2,
		City:         l.City,
		Province:     l.Province,
		PostalCode:   l.PostalCode,
		Country:      l.Country,
		Phone:        l.Phone,
		Instructions: l.Instructions,
		Active:       l.Active,
		DisplayOrder: l.DisplayOrder,
	}
}

func (m *PickupLocationModel) toDomain() *domain.PickupLocation {
	return &domain.PickupLocation{
		ID:           m.ID,
		Name:         m.Name,
		Address1:     m.Address1,
		Address2:     m.Address2,
		City:         m.City,
		Province:     m.Province,
		PostalCode:   m.PostalCode,
		Country:      m.Country,
		Phone:        m.Phone,
		Instructions: m.Instructions,
		Active:       m.Active,
		DisplayOrder: m.DisplayOrder,
	}
}
