package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/in004/bookscape/internal/datamodels/subscriber"
	"github.com/in004/bookscape/internal/infra/mail"
)

// SendReport 群发结果
type SendReport struct {
	Message          string   `json:"message"`
	TotalSubscribers int      `json:"totalSubscribers"`
	EmailsSent       int      `json:"emailsSent"`
	Errors           int      `json:"errors"`
	FailedEmails     []string `json:"failedEmails"`
}

type NewsletterService struct {
	repo        subscriber.Repository
	queue       MailQueue
	sender      mail.Sender
	frontendURL string
	log         *zap.Logger
}

// NewNewsletterService queue 用于欢迎邮件，sender 用于群发
func NewNewsletterService(repo subscriber.Repository, queue MailQueue, sender mail.Sender, frontendURL string, log *zap.Logger) *NewsletterService {
	if log == nil {
		log = zap.NewNop()
	}
	return &NewsletterService{repo: repo, queue: queue, sender: sender, frontendURL: frontendURL, log: log}
}

// newSecretToken 32 字节随机令牌，用于退订、邮箱验证与重置密码
func newSecretToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Subscribe 订阅并投递欢迎邮件
func (s *NewsletterService) Subscribe(ctx context.Context, email string) (*subscriber.Subscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := netmail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, invalidf("invalid email")
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, invalidf("email already subscribed")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	token, err := newSecretToken()
	if err != nil {
		return nil, err
	}
	sub := &subscriber.Subscriber{Email: email, UnsubscribeToken: token}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, welcomeMail(email, unsubscribeURL(s.frontendURL, token))); err != nil {
			GetMonitor().RecordMQError()
			s.log.Warn("queue welcome mail failed", zap.String("email", email), zap.Error(err))
		}
	}
	return sub, nil
}

// Unsubscribe 按令牌退订
func (s *NewsletterService) Unsubscribe(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return invalidf("missing token")
	}
	n, err := s.repo.DeleteByToken(ctx, token)
	if err != nil {
		return err
	}
	if n == 0 {
		return invalidf("Invalid or expired token")
	}
	return nil
}

// Send 群发给全部订阅者，单个失败只计数不重试
func (s *NewsletterService) Send(ctx context.Context, subject, htmlContent string) (*SendReport, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(htmlContent) == "" {
		return nil, invalidf("missing subject or HTML content")
	}
	subs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	report := &SendReport{TotalSubscribers: len(subs), FailedEmails: []string{}}
	if len(subs) == 0 {
		report.Message = "No subscribers found to send emails."
		return report, nil
	}

	for _, sub := range subs {
		msg := mail.Message{
			Kind:    mail.KindNewsletter,
			To:      sub.Email,
			Subject: subject,
			HTML:    htmlContent + unsubscribeFooter(unsubscribeURL(s.frontendURL, sub.UnsubscribeToken)),
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			GetMonitor().RecordMailFailed()
			report.Errors++
			report.FailedEmails = append(report.FailedEmails, sub.Email)
			s.log.Warn("newsletter delivery failed", zap.String("email", sub.Email), zap.Error(err))
			continue
		}
		GetMonitor().RecordMailSent()
		report.EmailsSent++
	}
	report.Message = fmt.Sprintf("Newsletter sending completed. Sent to %d subscribers.", report.EmailsSent)
	return report, nil
}

func (s *NewsletterService) List(ctx context.Context) ([]*subscriber.Subscriber, error) {
	return s.repo.ListAll(ctx)
}
