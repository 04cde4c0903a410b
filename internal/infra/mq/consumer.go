package mq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/in004/bookscape/internal/infra/mail"
)

// MailHandler 处理一封出队的邮件
type MailHandler func(ctx context.Context, m mail.Message) error

// ConsumeMail 手动确认模式消费邮件队列，直到 ctx 取消或 deliveries 关闭。
// 格式错误直接丢弃；发送失败重新入队一次，重投后仍失败则丢弃。
func ConsumeMail(ctx context.Context, deliveries <-chan amqp.Delivery, handle MailHandler, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			handleDelivery(ctx, d, handle, log)
		}
	}
}

func handleDelivery(ctx context.Context, d amqp.Delivery, handle MailHandler, log *zap.Logger) {
	var m mail.Message
	if err := json.Unmarshal(d.Body, &m); err != nil {
		log.Warn("invalid mail message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	if err := handle(ctx, m); err != nil {
		requeue := !d.Redelivered
		log.Warn("send mail failed",
			zap.String("kind", m.Kind),
			zap.String("to", m.To),
			zap.Bool("requeue", requeue),
			zap.Error(err))
		_ = d.Nack(false, requeue)
		return
	}
	if err := d.Ack(false); err != nil {
		log.Warn("failed to ack message", zap.Error(err))
	}
}
