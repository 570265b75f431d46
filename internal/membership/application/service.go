// Package application 会员订阅应用服务
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/storefront/internal/membership/domain"
	"github.com/wyfcoding/storefront/pkg/config"
	"github.com/wyfcoding/storefront/pkg/logger"
)

// TxManager 事务管理
type TxManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Plan 会员套餐
type Plan struct {
	Level domain.Level    `json:"level"`
	Price decimal.Decimal `json:"price"`
	Label string          `json:"label"`
}

// View 用户会员视图
type View struct {
	*domain.Profile
	Active bool   `json:"active"`
	Plans  []Plan `json:"plans"`
}

// BillingReport 一次模拟扣费的结果
type BillingReport struct {
	Checked int    `json:"checked"`
	Renewed []uint `json:"renewed"`
}

// MembershipService 会员订阅服务
type MembershipService struct {
	repo  domain.Repository
	tx    TxManager
	plans []Plan
	term  time.Duration
	now   func() time.Time
}

// NewMembershipService 根据配置的价格与期限创建服务
func NewMembershipService(repo domain.Repository, tx TxManager, cfg config.MembershipConfig) (*MembershipService, error) {
	basic, err := parsePrice(cfg.BasicPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid basic price: %w", err)
	}
	premium, err := parsePrice(cfg.PremiumPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid premium price: %w", err)
	}
	term := domain.DefaultTerm
	if cfg.TermDays > 0 {
		term = time.Duration(cfg.TermDays) * 24 * time.Hour
	}
	return &MembershipService{
		repo: repo,
		tx:   tx,
		plans: []Plan{
			{Level: domain.LevelBasic, Price: basic, Label: label(basic)},
			{Level: domain.LevelPremium, Price: premium, Label: label(premium)},
		},
		term: term,
		now:  time.Now,
	}, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %s", s)
	}
	return d, nil
}

func label(price decimal.Decimal) string {
	if price.IsZero() {
		return "Free"
	}
	return "$" + price.String() + "/month"
}

// Plans 套餐列表
func (s *MembershipService) Plans() []Plan {
	return s.plans
}

// Get 读取用户会员状态，首次访问时创建档案
func (s *MembershipService) Get(ctx context.Context, userID uint) (*View, error) {
	p, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(p), nil
}

// Subscribe 开通指定等级
func (s *MembershipService) Subscribe(ctx context.Context, userID uint, level domain.Level) (*View, error) {
	return s.mutate(ctx, userID, "subscribe", func(p *domain.Profile, now time.Time) error {
		return p.Subscribe(level, now, s.term)
	})
}

// Cancel 取消自动续费
func (s *MembershipService) Cancel(ctx context.Context, userID uint) (*View, error) {
	return s.mutate(ctx, userID, "cancel", func(p *domain.Profile, now time.Time) error {
		return p.Cancel(now)
	})
}

// Resume 恢复自动续费
func (s *MembershipService) Resume(ctx context.Context, userID uint) (*View, error) {
	return s.mutate(ctx, userID, "resume", func(p *domain.Profile, now time.Time) error {
		return p.Resume(now)
	})
}

// Switch 切换等级
func (s *MembershipService) Switch(ctx context.Context, userID uint, level domain.Level) (*View, error) {
	return s.mutate(ctx, userID, "switch", func(p *domain.Profile, now time.Time) error {
		return p.Switch(level, now)
	})
}

func (s *MembershipService) mutate(ctx context.Context, userID uint, action string, fn func(*domain.Profile, time.Time) error) (*View, error) {
	var profile *domain.Profile
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(p, s.now()); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, p); err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Membership updated", "user_id", userID, "action", action, "level", profile.Level, "auto_renew", profile.AutoRenew)
	return s.view(profile), nil
}

// BillingCycle 手动触发续费扣费
// userID 为 nil 时处理所有到期档案，否则只处理该用户
func (s *MembershipService) BillingCycle(ctx context.Context, userID *uint) (*BillingReport, error) {
	report := &BillingReport{Renewed: []uint{}}
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		now := s.now()
		var profiles []*domain.Profile
		if userID != nil {
			p, err := s.repo.GetOrCreate(ctx, *userID)
			if err != nil {
				return err
			}
			profiles = []*domain.Profile{p}
		} else {
			due, err := s.repo.ListDue(ctx, domain.Date(now))
			if err != nil {
				return err
			}
			profiles = due
		}

		report.Checked = len(profiles)
		for _, p := range profiles {
			if !p.SimulateBillingCycle(now, s.term) {
				continue
			}
			if err := s.repo.Save(ctx, p); err != nil {
				return err
			}
			report.Renewed = append(report.Renewed, p.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Membership billing cycle finished", "checked", report.Checked, "renewed", len(report.Renewed))
	return report, nil
}

func (s *MembershipService) view(p *domain.Profile) *View {
	return &View{Profile: p, Active: p.IsActive(s.now()), Plans: s.plans}
}
