package email

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/qs3c/calmness_server/config"
)

const brand = "Calmness FI"

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	cfg         *config.EmailConfig
	frontendURL string
	send        sendFunc
}

func NewService(cfg *config.EmailConfig, frontendURL string) *Service {
	return &Service{
		cfg:         cfg,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		send:        smtp.SendMail,
	}
}

// SendVerification 发送邮箱验证链接
func (s *Service) SendVerification(to, username, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.frontendURL, token)
	body := fmt.Sprintf(`Hello %s,

Please confirm your email address by opening the link below:

%s

The link is valid for 24 hours. If you did not create an account, ignore this email.
`, username, link)

	return s.sendPlain(to, "Verify your email - "+brand, body)
}

// SendPasswordReset 发送密码重置邮件
func (s *Service) SendPasswordReset(to, username, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
	body := fmt.Sprintf(`Hello %s,

A password reset was requested for your account. Open the link below to choose a new password:

%s

The link is valid for 30 minutes. If you did not request a reset, ignore this email.
`, username, link)

	return s.sendPlain(to, "Password reset - "+brand, body)
}

// SendWelcome 发送欢迎邮件
func (s *Service) SendWelcome(to, username string) error {
	body := fmt.Sprintf(`Hello %s,

Your email is verified and your %s account is ready.
`, username, brand)

	return s.sendPlain(to, "Welcome to "+brand, body)
}

// SendCode 发送二次验证码
func (s *Service) SendCode(to, code string) error {
	body := fmt.Sprintf(`Your verification code is %s

It expires in 10 minutes.
`, code)

	return s.sendPlain(to, "Your verification code - "+brand, body)
}

// SendExpiryReminder 订阅即将到期提醒
func (s *Service) SendExpiryReminder(to, username, planCode string, periodEnd time.Time) error {
	body := fmt.Sprintf(`Hello %s,

Your %s subscription ends on %s UTC. Renew it to keep your access.
`, username, planCode, periodEnd.UTC().Format("2006-01-02 15:04"))

	return s.sendPlain(to, "Your subscription is about to expire - "+brand, body)
}

// sendPlain 发送纯文本邮件
func (s *Service) sendPlain(to, subject, body string) error {
	headers := [][2]string{
		{"From", s.cfg.From},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
	}

	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], h[1]))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	return s.send(addr, auth, s.cfg.From, []string{to}, []byte(msg.String()))
}
