package domain

import "context"

// ProductFilter 商品列表查询条件
type ProductFilter struct {
	CategorySlug string
	FeaturedOnly bool
	Kind         Kind
	// 为 false 时包含已下架商品（后台使用）
	ActiveOnly bool
	Limit      int
	Offset     int
}

// ProductRepository 商品仓储
type ProductRepository interface {
	Create(ctx context.Context, product *Product) error
	Update(ctx context.Context, product *Product) error
	// Get 不存在时返回 ErrProductNotFound
	Get(ctx context.Context, id uint) (*Product, error)
	// GetMany 批量读取，缺失的 ID 不出现在结果中
	GetMany(ctx context.Context, ids []uint) (map[uint]*Product, error)
	List(ctx context.Context, filter ProductFilter) ([]*Product, int64, error)
	// LockForUpdate 在当前事务中对商品行加排他锁并返回最新数据
	LockForUpdate(ctx context.Context, ids []uint) (map[uint]*Product, error)
	// AddImage 添加图片；若为主图则取消该商品其他图片的主图标记
	AddImage(ctx context.Context, image *Image) error
}

// CategoryRepository 分类仓储
type CategoryRepository interface {
	Create(ctx context.Context, category *Category) error
	List(ctx context.Context) ([]*Category, error)
}

// PickupLocationRepository 自提点仓储
type PickupLocationRepository interface {
	Create(ctx context.Context, loc *PickupLocation) error
	Update(ctx context.Context, loc *PickupLocation) error
	Get(ctx context.Context, id uint) (*PickupLocation, error)
	List(ctx context.Context, activeOnly bool) ([]*PickupLocation, error)
}
