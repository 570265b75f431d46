package sender

import (
	"context"

	"github.com/wyfcoding/storefront/internal/notification/domain"
)

// Publisher 消息发布接口，*mq.KafkaProducer 实现了该接口
type Publisher interface {
	SendMessage(ctx context.Context, topic string, key string, value any) error
}

// KafkaNotificationSender 将通知指令发送到 Kafka，由独立的投递服务消费
type KafkaNotificationSender struct {
	producer Publisher
	topic    string
}

// NotificationCommand 发送到 Kafka 的统一指令格式
type NotificationCommand struct {
	Target  string `json:"target"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// NewKafkaNotificationSender 创建 Kafka 发送器
func NewKafkaNotificationSender(producer Publisher, topic string) *KafkaNotificationSender {
	return &KafkaNotificationSender{producer: producer, topic: topic}
}

// Send 将通知推送到消息队列，以收件人为 key 保证同一收件人的顺序
func (s *KafkaNotificationSender) Send(ctx context.Context, target, subject, content string) error {
	return s.producer.SendMessage(ctx, s.topic, target, NotificationCommand{
		Target:  target,
		Subject: subject,
		Content: content,
	})
}

var _ domain.Sender = (*KafkaNotificationSender)(nil)
