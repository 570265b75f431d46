package sender

import (
	"fmt"

	"github.com/wyfcoding/storefront/internal/notification/domain"
	"github.com/wyfcoding/storefront/pkg/config"
)

// New 按配置的驱动创建发送器，kafka 驱动需要 producer
func New(cfg config.NotificationConfig, producer Publisher) (domain.Sender, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogSender(), nil
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("notification.smtp_host is required for smtp driver")
		}
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.From), nil
	case "kafka":
		if producer == nil {
			return nil, fmt.Errorf("kafka producer is required for kafka driver")
		}
		return NewKafkaNotificationSender(producer, cfg.Topic), nil
	default:
		return nil, fmt.Errorf("unsupported notification driver: %s", cfg.Driver)
	}
}
