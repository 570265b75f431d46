// Package application 提供商品目录的应用服务：前台浏览与后台维护。
package application

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/storefront/internal/catalog/domain"
	invapp "github.com/wyfcoding/storefront/internal/inventory/application"
	invdomain "github.com/wyfcoding/storefront/internal/inventory/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
)

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// StockLedger 库存流水入口，商品的库存只能经由它变更
type StockLedger interface {
	Adjust(ctx context.Context, cmd invapp.AdjustCommand) (*invdomain.Entry, error)
	CurrentStock(ctx context.Context, productID uint) (int, error)
}

// ProductCommand 后台新建或修改商品
type ProductCommand struct {
	Name        string
	Description string
	Price       decimal.Decimal
	CategoryID  *uint
	Active      bool
	Featured    bool
	GST         bool
	PST         bool
	Kind        domain.Kind
	Variant     domain.VariantSpec
	Actor       string
}

// CatalogService 商品目录服务
type CatalogService struct {
	products   domain.ProductRepository
	categories domain.CategoryRepository
	pickups    domain.PickupLocationRepository
	ledger     StockLedger
	tx         invapp.TxManager
}

// NewCatalogService 创建商品目录服务
func NewCatalogService(
	products domain.ProductRepository,
	categories domain.CategoryRepository,
	pickups domain.PickupLocationRepository,
	ledger StockLedger,
	tx invapp.TxManager,
) *CatalogService {
	return &CatalogService{
		products:   products,
		categories: categories,
		pickups:    pickups,
		ledger:     ledger,
		tx:         tx,
	}
}

// ListProducts 前台商品列表，只包含上架商品
func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, error) {
	filter.ActiveOnly = true
	return s.products.List(ctx, filter)
}

// AdminListProducts 后台商品列表，包含已下架商品
func (s *CatalogService) AdminListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, error) {
	return s.products.List(ctx, filter)
}

// GetProduct 前台商品详情，已下架商品视为不存在
func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*domain.Product, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

// AdminGetProduct 后台商品详情
func (s *CatalogService) AdminGetProduct(ctx context.Context, id uint) (*domain.Product, error) {
	return s.products.Get(ctx, id)
}

// CreateProduct 新建商品。实物商品的初始库存记为一条 INITIAL 流水。
func (s *CatalogService) CreateProduct(ctx context.Context, cmd ProductCommand) (*domain.Product, error) {
	variant, err := domain.NewVariant(cmd.Kind, cmd.Variant)
	if err != nil {
		return nil, err
	}
	product := &domain.Product{
		Name:        strings.TrimSpace(cmd.Name),
		Description: cmd.Description,
		Price:       cmd.Price,
		CategoryID:  cmd.CategoryID,
		Active:      cmd.Active,
		Featured:    cmd.Featured,
		GST:         cmd.GST,
		PST:         cmd.PST,
		Variant:     variant,
	}
	if err := product.Validate(); err != nil {
		return nil, err
	}

	opening := product.Stock()
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		if opening > 0 {
			product.Variant = domain.Physical{Stock: 0}
		}
		if err := s.products.Create(ctx, product); err != nil {
			return err
		}
		if opening == 0 {
			return nil
		}
		if _, err := s.ledger.Adjust(ctx, invapp.AdjustCommand{
			ProductID:  product.ID,
			Delta:      opening,
			ChangeType: invdomain.ChangeInitial,
			Actor:      cmd.Actor,
			Note:       "opening stock",
		}); err != nil {
			return err
		}
		product.Variant = domain.Physical{Stock: opening}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "Product created", "product_id", product.ID, "kind", product.Kind(), "stock", opening)
	return product, nil
}

// UpdateProduct 修改商品。库存差额记为一条 ADJUST 流水。
func (s *CatalogService) UpdateProduct(ctx context.Context, id uint, cmd ProductCommand) (*domain.Product, error) {
	variant, err := domain.NewVariant(cmd.Kind, cmd.Variant)
	if err != nil {
		return nil, err
	}

	var updated *domain.Product
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		existing, err := s.products.Get(ctx, id)
		if err != nil {
			return err
		}
		existing.Name = strings.TrimSpace(cmd.Name)
		existing.Description = cmd.Description
		existing.Price = cmd.Price
		existing.CategoryID = cmd.CategoryID
		existing.Active = cmd.Active
		existing.Featured = cmd.Featured
		existing.GST = cmd.GST
		existing.PST = cmd.PST
		existing.Variant = variant
		if err := existing.Validate(); err != nil {
			return err
		}
		if err := s.products.Update(ctx, existing); err != nil {
			return err
		}

		if target, ok := variant.(domain.Physical); ok {
			current, err := s.ledger.CurrentStock(ctx, id)
			if err != nil {
				return err
			}
			if diff := target.Stock - current; diff != 0 {
				if _, err := s.ledger.Adjust(ctx, invapp.AdjustCommand{
					ProductID:  id,
					Delta:      diff,
					ChangeType: invdomain.ChangeAdjust,
					Actor:      cmd.Actor,
					Note:       "product edit",
				}); err != nil {
					return err
				}
			}
		}
		updated = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "Product updated", "product_id", id, "kind", updated.Kind())
	return updated, nil
}

// AddImage 为商品添加图片
func (s *CatalogService) AddImage(ctx context.Context, image *domain.Image) error {
	if strings.TrimSpace(image.URL) == "" {
		return fmt.Errorf("%w: image url is required", domain.ErrInvalidProduct)
	}
	if _, err := s.products.Get(ctx, image.ProductID); err != nil {
		return err
	}
	return s.products.AddImage(ctx, image)
}

// ListCategories 全部分类
func (s *CatalogService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	return s.categories.List(ctx)
}

// CreateCategory 新建分类，未指定 slug 时由名称生成
func (s *CatalogService) CreateCategory(ctx context.Context, name, slug string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidCategory)
	}
	if slug == "" {
		slug = Slugify(name)
	}
	category := &domain.Category{Name: name, Slug: slug}
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

// Slugify 生成 URL 友好的标识
func Slugify(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// ListPickupLocations 自提点列表
func (s *CatalogService) ListPickupLocations(ctx context.Context, activeOnly bool) ([]*domain.PickupLocation, error) {
	return s.pickups.List(ctx, activeOnly)
}

// ActivePickupLocation 结算时使用的自提点，未启用视为不存在
func (s *CatalogService) ActivePickupLocation(ctx context.Context, id uint) (*domain.PickupLocation, error) {
	loc, err := s.pickups.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !loc.Active {
		return nil, domain.ErrPickupLocationNotFound
	}
	return loc, nil
}

// SavePickupLocation 新建（ID 为 0）或修改自提点
func (s *CatalogService) SavePickupLocation(ctx context.Context, loc *domain.PickupLocation) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	if loc.ID == 0 {
		return s.pickups.Create(ctx, loc)
	}
	if _, err := s.pickups.Get(ctx, loc.ID); err != nil {
		return err
	}
	return s.pickups.Update(ctx, loc)
}

// ParseServiceStart 解析服务开始时间，空串返回 nil
func ParseServiceStart(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: starts_at must be RFC3339", domain.ErrInvalidProduct)
	}
	return &t, nil
}
