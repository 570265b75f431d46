// Package application 订单相关通知的组装、发送与记录
package application

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/storefront/internal/notification/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/metrics"
)

// ErrNoRecipient 收件人为空
var ErrNoRecipient = errors.New("notification recipient is empty")

// Notifier 通知服务
type Notifier struct {
	sender  domain.Sender
	repo    domain.Repository
	siteURL string
	metrics *metrics.Metrics
}

// NewNotifier 创建通知服务，repo 为 nil 时不记录发送历史
func NewNotifier(sender domain.Sender, repo domain.Repository, siteURL string, m *metrics.Metrics) *Notifier {
	return &Notifier{sender: sender, repo: repo, siteURL: siteURL, metrics: m}
}

// OrderConfirmed 发送订单确认
func (n *Notifier) OrderConfirmed(ctx context.Context, summary domain.OrderSummary) error {
	subject, body := domain.ConfirmationMessage(summary)
	return n.deliver(ctx, &domain.Notification{
		OrderID: summary.OrderID,
		Kind:    domain.KindOrderConfirmation,
		Target:  summary.Email,
		Subject: subject,
		Content: body,
	})
}

// DownloadsIssued 发送下载链接，没有链接时不发送
func (n *Notifier) DownloadsIssued(ctx context.Context, orderID uint, email string, links []domain.DownloadLink) error {
	if len(links) == 0 {
		return nil
	}
	subject, body := domain.DownloadLinksMessage(orderID, n.siteURL, links)
	return n.deliver(ctx, &domain.Notification{
		OrderID: orderID,
		Kind:    domain.KindDownloadLinks,
		Target:  email,
		Subject: subject,
		Content: body,
	})
}

// ForOrder 订单的通知记录
func (n *Notifier) ForOrder(ctx context.Context, orderID uint) ([]*domain.Notification, error) {
	if n.repo == nil {
		return nil, nil
	}
	return n.repo.ListByOrder(ctx, orderID)
}

// Recent 最近的通知记录，可按状态过滤
func (n *Notifier) Recent(ctx context.Context, status domain.Status, limit int) ([]*domain.Notification, error) {
	if n.repo == nil {
		return nil, nil
	}
	return n.repo.ListRecent(ctx, status, limit)
}

func (n *Notifier) deliver(ctx context.Context, msg *domain.Notification) error {
	if msg.Target == "" {
		return ErrNoRecipient
	}
	msg.Status = domain.StatusPending
	n.save(ctx, msg)

	if err := n.sender.Send(ctx, msg.Target, msg.Subject, msg.Content); err != nil {
		n.metrics.RecordNotificationFailure()
		msg.Status = domain.StatusFailed
		msg.ErrorMessage = err.Error()
		n.save(ctx, msg)
		return err
	}

	now := time.Now()
	msg.Status = domain.StatusSent
	msg.SentAt = &now
	n.save(ctx, msg)
	return nil
}

// 记录失败不影响发送
func (n *Notifier) save(ctx context.Context, msg *domain.Notification) {
	if n.repo == nil {
		return
	}
	if err := n.repo.Save(ctx, msg); err != nil {
		logger.Warn(ctx, "Failed to record notification", "order_id", msg.OrderID, "kind", msg.Kind, "error", err)
	}
}
