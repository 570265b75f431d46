// Package mysql 下载授权的 GORM 仓储
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/storefront/internal/download/domain"
	"github.com/wyfcoding/storefront/pkg/db"
	"gorm.io/gorm"
)

// DigitalDownloadModel 下载授权表
type DigitalDownloadModel struct {
	ID            uint      `gorm:"primaryKey"`
	OrderID       uint      `gorm:"column:order_id;uniqueIndex:idx_download_order_product;not null"`
	ProductID     uint      `gorm:"column:product_id;uniqueIndex:idx_download_order_product;not null"`
	Token         string    `gorm:"column:token;type:varchar(36);uniqueIndex;not null"`
	ExpiresAt     time.Time `gorm:"column:expires_at;not null"`
	MaxDownloads  int       `gorm:"column:max_downloads;not null"`
	DownloadCount int       `gorm:"column:download_count;not null"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (DigitalDownloadModel) TableName() string { return "digital_downloads" }

// Models 返回需要迁移的模型
func Models() []any {
	return []any{&DigitalDownloadModel{}}
}

type grantRepository struct {
	db *db.DB
}

// NewGrantRepository 创建下载授权仓储
func NewGrantRepository(database *db.DB) domain.Repository {
	return &grantRepository{db: database}
}

func (r *grantRepository) GetOrCreate(ctx context.Context, grant *domain.Grant) (*domain.Grant, bool, error) {
	existing, err := r.find(ctx, grant.OrderID, grant.ProductID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrGrantNotFound) {
		return nil, false, err
	}

	model := &DigitalDownloadModel{
		OrderID:      grant.OrderID,
		ProductID:    grant.ProductID,
		Token:        grant.Token,
		ExpiresAt:    grant.ExpiresAt,
		MaxDownloads: grant.MaxDownloads,
	}
	if err := r.db.Conn(ctx).Create(model).Error; err != nil {
		// 并发签发时另一方已写入
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, ferr := r.find(ctx, grant.OrderID, grant.ProductID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create download grant: %w", err)
	}
	return model.toDomain(), true, nil
}

func (r *grantRepository) find(ctx context.Context, orderID, productID uint) (*domain.Grant, error) {
	var model DigitalDownloadModel
	err := r.db.Conn(ctx).Where("order_id = ? AND product_id = ?", orderID, productID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download grant: %w", err)
	}
	return model.toDomain(), nil
}

func (r *grantRepository) FindOwned(ctx context.Context, token string, userID uint) (*domain.Grant, error) {
	var model DigitalDownloadModel
	err := r.db.Conn(ctx).
		Joins("JOIN orders ON orders.id = digital_downloads.order_id").
		Where("digital_downloads.token = ? AND orders.user_id = ?", token, userID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download grant: %w", err)
	}
	return model.toDomain(), nil
}

func (r *grantRepository) ListByOrder(ctx context.Context, orderID uint) ([]*domain.Grant, error) {
	var models []DigitalDownloadModel
	if err := r.db.Conn(ctx).Where("order_id = ?", orderID).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list download grants: %w", err)
	}
	out := make([]*domain.Grant, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, nil
}

func (r *grantRepository) IncrementIfAvailable(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := r.db.Conn(ctx).Model(&DigitalDownloadModel{}).
		Where("id = ? AND expires_at > ? AND (max_downloads = 0 OR download_count < max_downloads)", id, now).
		UpdateColumn("download_count", gorm.Expr("download_count + 1"))
	if res.Error != nil {
		return false, fmt.Errorf("failed to record download: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (m *DigitalDownloadModel) toDomain() *domain.Grant {
	return &domain.Grant{
		ID:            m.ID,
		OrderID:       m.OrderID,
		ProductID:     m.ProductID,
		Token:         m.Token,
		ExpiresAt:     m.ExpiresAt,
		MaxDownloads:  m.MaxDownloads,
		DownloadCount: m.DownloadCount,
		CreatedAt:     m.CreatedAt,
	}
}
