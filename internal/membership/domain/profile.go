// Package domain 会员订阅领域模型
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotActive 会员未生效或已过期
	ErrNotActive = errors.New("membership is not active")
	// ErrInvalidLevel 不支持的会员等级
	ErrInvalidLevel = errors.New("invalid membership level")
)

// Level 会员等级
type Level string

const (
	LevelNone    Level = "none"
	LevelBasic   Level = "basic"
	LevelPremium Level = "premium"
)

// Subscribable 可订阅的等级，none 不可订阅
func (l Level) Subscribable() bool {
	return l == LevelBasic || l == LevelPremium
}

// DefaultTerm 每期时长
const DefaultTerm = 30 * 24 * time.Hour

// Profile 用户会员档案，每个用户一份
// 过期不单独存储，由 ExpiresAt 与当前时间推导
type Profile struct {
	ID              uint       `json:"id"`
	UserID          uint       `json:"user_id"`
	Level           Level      `json:"level"`
	IsMember        bool       `json:"is_member"`
	StartedAt       *time.Time `json:"started_at"`
	ExpiresAt       *time.Time `json:"expires_at"`
	AutoRenew       bool       `json:"auto_renew"`
	NextBillingDate *time.Time `json:"next_billing_date"`
	LastBilledDate  *time.Time `json:"last_billed_date"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewProfile 新用户的空档案
func NewProfile(userID uint) *Profile {
	return &Profile{UserID: userID, Level: LevelNone}
}

// IsActive 是会员且未到期（无到期时间视为长期有效）
func (p *Profile) IsActive(now time.Time) bool {
	return p.IsMember && (p.ExpiresAt == nil || !p.ExpiresAt.Before(now))
}

// Subscribe 开通或重新开通，从 now 起算一期
func (p *Profile) Subscribe(level Level, now time.Time, term time.Duration) error {
	if !level.Subscribable() {
		return ErrInvalidLevel
	}
	expires := now.Add(term)
	p.Level = level
	p.IsMember = true
	p.StartedAt = &now
	p.ExpiresAt = &expires
	p.AutoRenew = true
	p.LastBilledDate = ptr(Date(now))
	p.NextBillingDate = ptr(Date(expires).AddDate(0, 0, 1))
	return nil
}

// Cancel 关闭自动续费，会员保持到自然到期
func (p *Profile) Cancel(now time.Time) error {
	if !p.IsActive(now) {
		return ErrNotActive
	}
	p.AutoRenew = false
	p.NextBillingDate = nil
	return nil
}

// Resume 恢复自动续费，下次扣费日按现有到期时间重算
func (p *Profile) Resume(now time.Time) error {
	if !p.IsActive(now) {
		return ErrNotActive
	}
	p.AutoRenew = true
	if p.ExpiresAt != nil {
		p.NextBillingDate = ptr(Date(*p.ExpiresAt).AddDate(0, 0, 1))
	}
	return nil
}

// Switch 立即切换等级，不重置到期时间
func (p *Profile) Switch(level Level, now time.Time) error {
	if !level.Subscribable() {
		return ErrInvalidLevel
	}
	if !p.IsActive(now) {
		return ErrNotActive
	}
	p.Level = level
	return nil
}

// Due 是否到了扣费日
func (p *Profile) Due(now time.Time) bool {
	return p.AutoRenew && p.IsMember && p.NextBillingDate != nil && !Date(now).Before(*p.NextBillingDate)
}

// SimulateBillingCycle 模拟一次续费扣费，未到期或未开启自动续费时不做任何事
// 返回是否发生了续费
func (p *Profile) SimulateBillingCycle(now time.Time, term time.Duration) bool {
	if !p.Due(now) {
		return false
	}
	expires := now.Add(term)
	today := Date(now)
	p.ExpiresAt = &expires
	p.LastBilledDate = &today
	p.NextBillingDate = ptr(today.Add(term))
	return true
}

// Date 取 UTC 日期部分
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

// Repository 会员档案仓储
type Repository interface {
	// GetOrCreate 读取用户档案，不存在时创建空档案
	GetOrCreate(ctx context.Context, userID uint) (*Profile, error)
	Save(ctx context.Context, p *Profile) error
	// ListDue 列出扣费日不晚于 day 且开启自动续费的档案
	ListDue(ctx context.Context, day time.Time) ([]*Profile, error)
}
