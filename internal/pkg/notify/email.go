package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"yamdb/internal/config"

	"github.com/sethvargo/go-retry"
	"gopkg.in/gomail.v2"
)

// EmailNotifier 通过 SMTP 投递确认码。
//
// 单次投递有超时上限，失败后做指数退避重试；
// 重试耗尽仍失败时把错误交还调用方，绝不静默吞掉。
type EmailNotifier struct {
	cfg     *config.EmailConfig
	timeout time.Duration
	retries uint64
	logger  *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, timeout time.Duration, retries int, logger *slog.Logger) *EmailNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &EmailNotifier{
		cfg:     cfg,
		timeout: timeout,
		retries: uint64(retries),
		logger:  logger,
	}
}

// SendConfirmationCode 发送邮箱确认码。
func (n *EmailNotifier) SendConfirmationCode(ctx context.Context, toEmail string, code string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		return fmt.Errorf("email config missing")
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "Код подтверждения от yamdb")
	m.SetBody("text/plain", fmt.Sprintf("Код подтверждения:%s", code))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)

	backoff := retry.WithMaxRetries(n.retries, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := n.dialAndSend(ctx, d, m); err != nil {
			n.logger.Warn("send confirmation email failed",
				slog.String("to", toEmail), slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("confirmation email sent", slog.String("to", toEmail))
	return nil
}

// dialAndSend 在有界超时内执行一次投递。
//
// gomail 的 DialAndSend 本身不感知 context，这里放到单独的
// goroutine 中并等待超时；超时后连接由 SMTP 服务器端回收。
func (n *EmailNotifier) dialAndSend(ctx context.Context, d *gomail.Dialer, m *gomail.Message) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
