package sender

import (
	"context"

	"github.com/wyfcoding/storefront/internal/notification/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
)

// LogSender 只写日志，用于开发环境
type LogSender struct{}

// NewLogSender 创建日志发送器
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send 记录通知内容
func (s *LogSender) Send(ctx context.Context, target, subject, content string) error {
	logger.Info(ctx, "Sending email notification",
		"sender", "LogSender",
		"target", target,
		"subject", subject,
		"content", content,
	)
	return nil
}

var _ domain.Sender = (*LogSender)(nil)
