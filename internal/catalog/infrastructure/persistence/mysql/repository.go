package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/storefront/internal/catalog/domain"
	"github.com/wyfcoding/storefront/pkg/db"
	"github.com/wyfcoding/storefront/pkg/logger"
	"gorm.io/gorm"
)

// 商品更新时写入的列；stock 只能由库存流水修改
var productUpdateColumns = []string{
	"name", "description", "price", "category_id", "active", "featured", "gst", "pst", "kind",
	"digital_file", "digital_url",
	"service_seats", "service_starts_at", "service_duration_minutes", "service_location",
	"updated_at",
}

type productRepository struct {
	db *db.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(database *db.DB) domain.ProductRepository {
	return &productRepository{db: database}
}

func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	model := productToModel(product)
	if err := r.db.Conn(ctx).Create(model).Error; err != nil {
		logger.Error(ctx, "product_repository.create failed", "name", product.Name, "error", err)
		return fmt.Errorf("failed to create product: %w", err)
	}
	product.ID = model.ID
	product.CreatedAt = model.CreatedAt
	product.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	model := productToModel(product)
	err := r.db.Conn(ctx).Model(&ProductModel{ID: product.ID}).Select(productUpdateColumns).Updates(model).Error
	if err != nil {
		logger.Error(ctx, "product_repository.update failed", "product_id", product.ID, "error", err)
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id uint) (*domain.Product, error) {
	var model ProductModel
	err := r.db.Conn(ctx).
		Preload("Category").
		Preload("Images", func(tx *gorm.DB) *gorm.DB { return tx.Order("is_main desc, sort_order asc, id asc") }).
		First(&model, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return model.toDomain(), nil
}

func (r *productRepository) GetMany(ctx context.Context, ids []uint) (map[uint]*domain.Product, error) {
	out := make(map[uint]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var models []ProductModel
	err := r.db.Conn(ctx).
		Preload("Category").
		Preload("Images", func(tx *gorm.DB) *gorm.DB { return tx.Order("is_main desc, sort_order asc, id asc") }).
		Where("id IN ?", ids).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	for i := range models {
		out[models[i].ID] = models[i].toDomain()
	}
	return out, nil
}

func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int64, error) {
	q := r.db.Conn(ctx).Model(&ProductModel{})
	if filter.ActiveOnly {
		q = q.Where("products.active = ?", true)
	}
	if filter.FeaturedOnly {
		q = q.Where("products.featured = ?", true)
	}
	if filter.Kind != "" {
		q = q.Where("products.kind = ?", string(filter.Kind))
	}
	if filter.CategorySlug != "" {
		q = q.Joins("JOIN categories ON categories.id = products.category_id").
			Where("categories.slug = ?", filter.CategorySlug)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var models []ProductModel
	err := q.Preload("Category").
		Preload("Images", func(tx *gorm.DB) *gorm.DB { return tx.Order("is_main desc, sort_order asc, id asc") }).
		Order("products.featured desc, products.created_at desc, products.id desc").
		Limit(limit).Offset(filter.Offset).
		Find(&models).Error
	if err != nil {
		logger.Error(ctx, "product_repository.list failed", "error", err)
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	products := make([]*domain.Product, len(models))
	for i := range models {
		products[i] = models[i].toDomain()
	}
	return products, total, nil
}

func (r *productRepository) LockForUpdate(ctx context.Context, ids []uint) (map[uint]*domain.Product, error) {
	out := make(map[uint]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var models []ProductModel
	if err := r.db.Conn(ctx).Clauses(db.ForUpdate()).Where("id IN ?", ids).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	for i := range models {
		out[models[i].ID] = models[i].toDomain()
	}
	return out, nil
}

func (r *productRepository) AddImage(ctx context.Context, image *domain.Image) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		conn := r.db.Conn(ctx)
		if image.IsMain {
			if err := conn.Model(&ImageModel{}).
				Where("product_id = ? AND is_main = ?", image.ProductID, true).
				Update("is_main", false).Error; err != nil {
				return fmt.Errorf("failed to clear main image: %w", err)
			}
		}
		model := &ImageModel{
			ProductID: image.ProductID,
			URL:       image.URL,
			Alt:       image.Alt,
			IsMain:    image.IsMain,
			SortOrder: image.SortOrder,
		}
		if err := conn.Create(model).Error; err != nil {
			return fmt.Errorf("failed to create image: %w", err)
		}
		image.ID = model.ID
		return nil
	})
}

type categoryRepository struct {
	db *db.DB
}

// NewCategoryRepository 创建分类仓储
func NewCategoryRepository(database *db.DB) domain.CategoryRepository {
	return &categoryRepository{db: database}
}

func (r *categoryRepository) Create(ctx context.Context, category *domain.Category) error {
	model := &CategoryModel{Name: category.Name, Slug: category.Slug}
	if err := r.db.Conn(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	category.ID = model.ID
	return nil
}

func (r *categoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	var models []CategoryModel
	if err := r.db.Conn(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	out := make([]*domain.Category, len(models))
	for i, m := range models {
		out[i] = &domain.Category{ID: m.ID, Name: m.Name, Slug: m.Slug}
	}
	return out, nil
}

type pickupLocationRepository struct {
	db *db.DB
}

// NewPickupLocationRepository 创建自提点仓储
func NewPickupLocationRepository(database *db.DB) domain.PickupLocationRepository {
	return &pickupLocationRepository{db: database}
}

func (r *pickupLocationRepository) Create(ctx context.Context, loc *domain.PickupLocation) error {
	model := pickupToModel(loc)
	if err := r.db.Conn(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create pickup location: %w", err)
	}
	loc.ID = model.ID
	return nil
}

func (r *pickupLocationRepository) Update(ctx context.Context, loc *domain.PickupLocation) error {
	model := pickupToModel(loc)
	err := r.db.Conn(ctx).Model(&PickupLocationModel{ID: loc.ID}).
		Select("name", "address1", "address2", "city", "province", "postal_code", "country",
			"phone", "instructions", "active", "display_order").
		Updates(model).Error
	if err != nil {
		return fmt.Errorf("failed to update pickup location: %w", err)
	}
	return nil
}

func (r *pickupLocationRepository) Get(ctx context.Context, id uint) (*domain.PickupLocation, error) {
	var model PickupLocationModel
	err := r.db.Conn(ctx).First(&model, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPickupLocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pickup location: %w", err)
	}
	return model.toDomain(), nil
}

func (r *pickupLocationRepository) List(ctx context.Context, activeOnly bool) ([]*domain.PickupLocation, error) {
	q := r.db.Conn(ctx).Model(&PickupLocationModel{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var models []PickupLocationModel
	if err := q.Order("display_order asc, name asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list pickup locations: %w", err)
	}
	out := make([]*domain.PickupLocation, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, nil
}
