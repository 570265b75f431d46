// Package mysql 会员档案的 GORM 存储
package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/storefront/internal/membership/domain"
	"github.com/wyfcoding/storefront/pkg/db"
	"gorm.io/gorm/clause"
)

// MemberProfileModel 会员档案表，user_id 唯一
type MemberProfileModel struct {
	ID              uint       `gorm:"primaryKey"`
	UserID          uint       `gorm:"column:user_id;uniqueIndex;not null"`
	Level           string     `gorm:"column:level;type:varchar(10);not null;default:none"`
	IsMember        bool       `gorm:"column:is_member;not null;default:false"`
	StartedAt       *time.Time `gorm:"column:started_at"`
	ExpiresAt       *time.Time `gorm:"column:expires_at"`
	AutoRenew       bool       `gorm:"column:auto_renew;not null;default:false"`
	NextBillingDate *time.Time `gorm:"column:next_billing_date;type:date;index"`
	LastBilledDate  *time.Time `gorm:"column:last_billed_date;type:date"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (MemberProfileModel) TableName() string { return "member_profiles" }

// Models 返回需要迁移的模型
func Models() []any {
	return []any{&MemberProfileModel{}}
}

type profileRepository struct {
	db *db.DB
}

// NewProfileRepository 创建会员档案仓储
func NewProfileRepository(database *db.DB) domain.Repository {
	return &profileRepository{db: database}
}

// GetOrCreate 并发首次访问时依赖唯一索引，冲突方直接读取已有行
func (r *profileRepository) GetOrCreate(ctx context.Context, userID uint) (*domain.Profile, error) {
	seed := &MemberProfileModel{UserID: userID, Level: string(domain.LevelNone)}
	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(seed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create member profile: %w", err)
	}

	var m MemberProfileModel
	if err := r.db.Conn(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, fmt.Errorf("failed to load member profile: %w", err)
	}
	return toDomain(&m), nil
}

func (r *profileRepository) Save(ctx context.Context, p *domain.Profile) error {
	m := fromDomain(p)
	if err := r.db.Conn(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("failed to save member profile: %w", err)
	}
	p.ID = m.ID
	p.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *profileRepository) ListDue(ctx context.Context, day time.Time) ([]*domain.Profile, error) {
	var models []MemberProfileModel
	err := r.db.Conn(ctx).
		Where("auto_renew = ? AND is_member = ? AND next_billing_date IS NOT NULL AND next_billing_date <= ?", true, true, day).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due member profiles: %w", err)
	}
	out := make([]*domain.Profile, len(models))
	for i := range models {
		out[i] = toDomain(&models[i])
	}
	return out, nil
}

func toDomain(m *MemberProfileModel) *domain.Profile {
	return &domain.Profile{
		ID:              m.ID,
		UserID:          m.UserID,
		Level:           domain.Level(m.Level),
		IsMember:        m.IsMember,
		StartedAt:       m.StartedAt,
		ExpiresAt:       m.ExpiresAt,
		AutoRenew:       m.AutoRenew,
		NextBillingDate: dateOnly(m.NextBillingDate),
		LastBilledDate:  dateOnly(m.LastBilledDate),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func fromDomain(p *domain.Profile) *MemberProfileModel {
	return &MemberProfileModel{
		ID:              p.ID,
		UserID:          p.UserID,
		Level:           string(p.Level),
		IsMember:        p.IsMember,
		StartedAt:       p.StartedAt,
		ExpiresAt:       p.ExpiresAt,
		AutoRenew:       p.AutoRenew,
		NextBillingDate: dateOnly(p.NextBillingDate),
		LastBilledDate:  dateOnly(p.LastBilledDate),
		CreatedAt:       p.CreatedAt,
	}
}

// dateOnly 驱动可能带回时区或时间部分，统一截到 UTC 日期
func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := domain.Date(*t)
	return &d
}
