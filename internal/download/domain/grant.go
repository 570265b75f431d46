// Package domain 数字商品下载授权：按 (订单, 商品) 唯一，凭令牌兑换，受有效期与次数限制。
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrGrantNotFound  = errors.New("download not found")
	ErrGrantExpired   = errors.New("download link has expired")
	ErrGrantExhausted = errors.New("download limit reached")
	ErrFileMissing    = errors.New("download file is unavailable")
)

// State 授权状态。expired 与 exhausted 为终态。
type State string

const (
	StateValid     State = "valid"
	StateExpired   State = "expired"
	StateExhausted State = "exhausted"
)

// Grant 下载授权
type Grant struct {
	ID            uint      `json:"id"`
	OrderID       uint      `json:"order_id"`
	ProductID     uint      `json:"product_id"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expires_at"`
	MaxDownloads  int       `json:"max_downloads"`
	DownloadCount int       `json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Bounded 是否限制下载次数（0 表示不限）
func (g *Grant) Bounded() bool { return g.MaxDownloads > 0 }

// State 在给定时刻的状态，过期优先于次数用尽
func (g *Grant) State(now time.Time) State {
	if !now.Before(g.ExpiresAt) {
		return StateExpired
	}
	if g.Bounded() && g.DownloadCount >= g.MaxDownloads {
		return StateExhausted
	}
	return StateValid
}

// Remaining 剩余次数，不限时返回 -1
func (g *Grant) Remaining() int {
	if !g.Bounded() {
		return -1
	}
	return max(g.MaxDownloads-g.DownloadCount, 0)
}

// Repository 下载授权仓储
type Repository interface {
	// GetOrCreate 按 (OrderID, ProductID) 取已有授权，不存在时以 grant 新建；已有授权原样返回
	GetOrCreate(ctx context.Context, grant *Grant) (*Grant, bool, error)
	// FindOwned 按令牌查找属于 userID 所下订单的授权
	FindOwned(ctx context.Context, token string, userID uint) (*Grant, error)
	ListByOrder(ctx context.Context, orderID uint) ([]*Grant, error)
	// IncrementIfAvailable 未过期且未达上限时计数加一，返回是否成功
	IncrementIfAvailable(ctx context.Context, id uint, now time.Time) (bool, error)
}
