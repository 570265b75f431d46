// Package mysql 通知记录的 GORM 仓储
package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/storefront/internal/notification/domain"
	"github.com/wyfcoding/storefront/pkg/db"
)

// NotificationModel 通知记录表
type NotificationModel struct {
	ID           uint       `gorm:"primaryKey"`
	OrderID      uint       `gorm:"column:order_id;index;not null"`
	Kind         string     `gorm:"column:kind;type:varchar(32);not null"`
	Target       string     `gorm:"column:target;type:varchar(255);not null"`
	Subject      string     `gorm:"column:subject;type:varchar(255)"`
	Content      string     `gorm:"column:content;type:text"`
	Status       string     `gorm:"column:status;type:varchar(20);index;not null"`
	ErrorMessage string     `gorm:"column:error_message;type:text"`
	SentAt       *time.Time `gorm:"column:sent_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;index"`
}

func (NotificationModel) TableName() string { return "notifications" }

// Models 返回需要迁移的模型
func Models() []any {
	return []any{&NotificationModel{}}
}

type notificationRepository struct {
	db *db.DB
}

// NewNotificationRepository 创建通知记录仓储
func NewNotificationRepository(database *db.DB) domain.Repository {
	return &notificationRepository{db: database}
}

func (r *notificationRepository) Save(ctx context.Context, n *domain.Notification) error {
	model := &NotificationModel{
		ID:           n.ID,
		OrderID:      n.OrderID,
		Kind:         string(n.Kind),
		Target:       n.Target,
		Subject:      n.Subject,
		Content:      n.Content,
		Status:       string(n.Status),
		ErrorMessage: n.ErrorMessage,
		SentAt:       n.SentAt,
		CreatedAt:    n.CreatedAt,
	}
	if err := r.db.Conn(ctx).Save(model).Error; err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	n.ID = model.ID
	n.CreatedAt = model.CreatedAt
	return nil
}

func (r *notificationRepository) ListByOrder(ctx context.Context, orderID uint) ([]*domain.Notification, error) {
	var models []NotificationModel
	if err := r.db.Conn(ctx).Where("order_id = ?", orderID).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return toDomain(models), nil
}

func (r *notificationRepository) ListRecent(ctx context.Context, status domain.Status, limit int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.db.Conn(ctx).Model(&NotificationModel{})
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var models []NotificationModel
	if err := q.Order("id desc").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return toDomain(models), nil
}

func toDomain(models []NotificationModel) []*domain.Notification {
	out := make([]*domain.Notification, len(models))
	for i, m := range models {
		out[i] = &domain.Notification{
			ID:           m.ID,
			OrderID:      m.OrderID,
			Kind:         domain.Kind(m.Kind),
			Target:       m.Target,
			Subject:      m.Subject,
			Content:      m.Content,
			Status:       domain.Status(m.Status),
			ErrorMessage: m.ErrorMessage,
			SentAt:       m.SentAt,
			CreatedAt:    m.CreatedAt,
		}
	}
	return out
}
