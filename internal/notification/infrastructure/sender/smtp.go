// Package sender 通知发送器：SMTP 邮件、Kafka 指令与仅记录日志三种实现。
package sender

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/wyfcoding/storefront/internal/notification/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
)

// SendMailFunc 与 smtp.SendMail 签名一致
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender 通过 SMTP 发送纯文本邮件
type SMTPSender struct {
	addr     string
	host     string
	username string
	password string
	from     string
	send     SendMailFunc
}

// NewSMTPSender 创建 SMTP 发送器
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%d", host, port),
		host:     host,
		username: username,
		password: password,
		from:     from,
		send:     smtp.SendMail,
	}
}

// WithSendMail 替换底层发送函数
func (s *SMTPSender) WithSendMail(fn SendMailFunc) *SMTPSender {
	s.send = fn
	return s
}

// Send 发送邮件
func (s *SMTPSender) Send(ctx context.Context, target, subject, content string) error {
	logger.Info(ctx, "Sending email", "target", target, "subject", subject)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	if err := s.send(s.addr, auth, s.from, []string{target}, buildMessage(s.from, target, subject, content)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, content string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(content, "\n", "\r\n"))
	return []byte(b.String())
}

var _ domain.Sender = (*SMTPSender)(nil)
