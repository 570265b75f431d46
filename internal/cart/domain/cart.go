// Package domain 定义购物车：账户购物车与会话购物车共用同一套规则，仅存储后端不同。
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoOwner         = errors.New("cart owner is required")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Owner 购物车归属：已登录用户或匿名会话，二者取其一
type Owner struct {
	UserID    uint
	SessionID string
}

// ForUser 账户购物车
func ForUser(userID uint) Owner { return Owner{UserID: userID} }

// ForSession 会话购物车
func ForSession(sessionID string) Owner { return Owner{SessionID: sessionID} }

// IsUser 是否为账户购物车
func (o Owner) IsUser() bool { return o.UserID != 0 }

// Valid 是否有明确归属
func (o Owner) Valid() bool { return o.UserID != 0 || o.SessionID != "" }

// Line 购物车中的一行
type Line struct {
	ProductID uint
	Quantity  int
	AddedAt   time.Time
}

// Store 购物车存储后端
type Store interface {
	Lines(ctx context.Context, owner Owner) ([]Line, error)
	// Quantity 行不存在时返回 0
	Quantity(ctx context.Context, owner Owner, productID uint) (int, error)
	// Put 写入正数量（不存在则新建）
	Put(ctx context.Context, owner Owner, productID uint, qty int) error
	// Delete 删除一行，行不存在时不报错
	Delete(ctx context.Context, owner Owner, productID uint) error
	Clear(ctx context.Context, owner Owner) error
}

// Clamp 计算写入后的数量：override 时为请求量，否则累加，结果不超过 capacity。
// 请求量小于 1 时返回 0，表示删除该行。
func Clamp(current, requested int, override bool, capacity int) int {
	if requested < 1 {
		return 0
	}
	qty := requested
	if !override {
		qty = current + requested
	}
	return max(min(qty, capacity), 0)
}
