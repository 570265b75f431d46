// Package domain 通知服务的领域模型
package domain

import (
	"context"
	"time"
)

// Kind 通知类型
type Kind string

const (
	KindOrderConfirmation Kind = "ORDER_CONFIRMATION"
	KindDownloadLinks     Kind = "DOWNLOAD_LINKS"
)

// Status 通知状态
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Notification 一次通知发送记录
type Notification struct {
	ID           uint       `json:"id"`
	OrderID      uint       `json:"order_id"`
	Kind         Kind       `json:"kind"`
	Target       string     `json:"target"`
	Subject      string     `json:"subject"`
	Content      string     `json:"content"`
	Status       Status     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Repository 通知记录仓储
type Repository interface {
	Save(ctx context.Context, n *Notification) error
	ListByOrder(ctx context.Context, orderID uint) ([]*Notification, error)
	ListRecent(ctx context.Context, status Status, limit int) ([]*Notification, error)
}

// Sender 通知发送接口
type Sender interface {
	Send(ctx context.Context, target, subject, content string) error
}
