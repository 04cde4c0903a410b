package mq

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/in004/bookscape/internal/infra/mail"
)

// MailPublisher 把邮件投递到队列，由 mail-worker 异步发送
type MailPublisher struct {
	mu    sync.Mutex
	ch    *amqp.Channel
	queue string
}

// NewMailPublisher 打开独立 channel 并声明队列
func NewMailPublisher(conn *amqp.Connection, queue string) (*MailPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := DeclareQueue(ch, queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &MailPublisher{ch: ch, queue: queue}, nil
}

// Enqueue 发布一封邮件
func (p *MailPublisher) Enqueue(ctx context.Context, m mail.Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *MailPublisher) Close() error {
	return p.ch.Close()
}
