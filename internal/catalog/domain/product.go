// Package domain 定义商品目录的领域模型：商品及其类型变体、分类、图片与自提点。
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnlimitedCapacity 数字商品与不限名额服务的可购买上限
const UnlimitedCapacity = 999999

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrCategoryNotFound       = errors.New("category not found")
	ErrPickupLocationNotFound = errors.New("pickup location not found")
	ErrInvalidProduct         = errors.New("invalid product")
	ErrInvalidCategory        = errors.New("invalid category")
	ErrInvalidPickupLocation  = errors.New("invalid pickup location")
)

var (
	gstRate = decimal.RequireFromString("0.05")
	pstRate = decimal.RequireFromString("0.07")
)

// Kind 商品类型
type Kind string

const (
	KindPhysical Kind = "physical"
	KindDigital  Kind = "digital"
	KindService  Kind = "service"
)

// Variant 商品类型变体，三种实现互斥
type Variant interface {
	Kind() Kind
	capacity() int
	validate() error
}

// Physical 实物商品，库存为缓存的当前值，变更须经库存流水
type Physical struct {
	Stock int
}

func (Physical) Kind() Kind      { return KindPhysical }
func (p Physical) capacity() int { return p.Stock }
func (p Physical) validate() error {
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	}
	return nil
}

// Digital 数字商品，File 为媒体目录下的相对路径，URL 为外部下载地址
type Digital struct {
	File string
	URL  string
}

func (Digital) Kind() Kind    { return KindDigital }
func (Digital) capacity() int { return UnlimitedCapacity }
func (d Digital) validate() error {
	if strings.TrimSpace(d.File) == "" && strings.TrimSpace(d.URL) == "" {
		return fmt.Errorf("%w: digital product requires a file or url", ErrInvalidProduct)
	}
	return nil
}

// Service 服务类商品（课程、预约等），Seats 为 nil 表示不限名额
type Service struct {
	Seats           *int
	StartsAt        *time.Time
	DurationMinutes int
	Location        string
}

func (Service) Kind() Kind { return KindService }
func (s Service) capacity() int {
	if s.Seats == nil {
		return UnlimitedCapacity
	}
	return *s.Seats
}
func (s Service) validate() error {
	if s.Seats != nil && *s.Seats < 0 {
		return fmt.Errorf("%w: seats must not be negative", ErrInvalidProduct)
	}
	if s.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidProduct)
	}
	return nil
}

// Category 商品分类
type Category struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Image 商品图片，每个商品至多一张主图
type Image struct {
	ID        uint   `json:"id"`
	ProductID uint   `json:"product_id"`
	URL       string `json:"url"`
	Alt       string `json:"alt"`
	IsMain    bool   `json:"is_main"`
	SortOrder int    `json:"sort_order"`
}

// Product 商品
type Product struct {
	ID          uint
	Name        string
	Description string
	Price       decimal.Decimal
	CategoryID  *uint
	Category    *Category
	Active      bool
	Featured    bool
	// 仅用于展示含税价，结算统一使用配置的税率
	GST     bool
	PST     bool
	Variant Variant
	Images  []Image

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Kind 返回商品类型
func (p *Product) Kind() Kind {
	if p.Variant == nil {
		return ""
	}
	return p.Variant.Kind()
}

// IsPhysical 是否为实物商品
func (p *Product) IsPhysical() bool { return p.Kind() == KindPhysical }

// IsDigital 是否为数字商品
func (p *Product) IsDigital() bool { return p.Kind() == KindDigital }

// IsService 是否为服务类商品
func (p *Product) IsService() bool { return p.Kind() == KindService }

// Capacity 可购买上限：实物为库存，服务为名额，数字商品不限
func (p *Product) Capacity() int {
	if p.Variant == nil {
		return 0
	}
	return p.Variant.capacity()
}

// Stock 实物商品的当前库存，其他类型返回 0
func (p *Product) Stock() int {
	if v, ok := p.Variant.(Physical); ok {
		return v.Stock
	}
	return 0
}

// DigitalPayload 返回数字商品的文件或链接
func (p *Product) DigitalPayload() (Digital, bool) {
	v, ok := p.Variant.(Digital)
	if !ok {
		return Digital{}, false
	}
	return v, v.validate() == nil
}

// Validate 校验商品字段与变体
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	if p.Variant == nil {
		return fmt.Errorf("%w: product kind is required", ErrInvalidProduct)
	}
	return p.Variant.validate()
}

// TaxDisplay 商品页展示的 GST/PST 金额
type TaxDisplay struct {
	GSTAmount    decimal.Decimal `json:"gst_amount"`
	PSTAmount    decimal.Decimal `json:"pst_amount"`
	PriceWithTax decimal.Decimal `json:"price_with_tax"`
}

// Taxes 按商品上的 GST/PST 标志计算展示用税额
func (p *Product) Taxes() TaxDisplay {
	td := TaxDisplay{GSTAmount: decimal.Zero, PSTAmount: decimal.Zero}
	if p.GST {
		td.GSTAmount = p.Price.Mul(gstRate).RoundBank(2)
	}
	if p.PST {
		td.PSTAmount = p.Price.Mul(pstRate).RoundBank(2)
	}
	td.PriceWithTax = p.Price.Add(td.GSTAmount).Add(td.PSTAmount)
	return td
}

// MainImage 返回主图，没有主图时返回第一张
func (p *Product) MainImage() *Image {
	for i := range p.Images {
		if p.Images[i].IsMain {
			return &p.Images[i]
		}
	}
	if len(p.Images) > 0 {
		return &p.Images[0]
	}
	return nil
}

// PickupLocation 自提点
type PickupLocation struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Address1     string `json:"address1"`
	Address2     string `json:"address2"`
	City         string `json:"city"`
	Province     string `json:"province"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Phone        string `json:"phone"`
	Instructions string `json:"instructions"`
	Active       bool   `json:"active"`
	DisplayOrder int    `json:"display_order"`
}

// Validate 校验自提点必填字段
func (l *PickupLocation) Validate() error {
	if strings.TrimSpace(l.Name) == "" || strings.TrimSpace(l.Address1) == "" || strings.TrimSpace(l.City) == "" {
		return fmt.Errorf("%w: name, address1 and city are required", ErrInvalidPickupLocation)
	}
	return nil
}

// VariantSpec 构造变体所需的原始字段（来自后台表单或 API）
type VariantSpec struct {
	Stock           int
	DigitalFile     string
	DigitalURL      string
	Seats           *int
	StartsAt        *time.Time
	DurationMinutes int
	Location        string
}

// NewVariant 按类型构造变体并校验
func NewVariant(kind Kind, spec VariantSpec) (Variant, error) {
	var v Variant
	switch kind {
	case KindPhysical:
		v = Physical{Stock: spec.Stock}
	case KindDigital:
		v = Digital{File: strings.TrimSpace(spec.DigitalFile), URL: strings.TrimSpace(spec.DigitalURL)}
	case KindService:
		v = Service{
			Seats:           spec.Seats,
			StartsAt:        spec.StartsAt,
			DurationMinutes: spec.DurationMinutes,
			Location:        spec.Location,
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidProduct, kind)
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	return v, nil
}
