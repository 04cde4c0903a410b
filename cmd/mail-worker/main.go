package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/in004/bookscape/internal/config"
	"github.com/in004/bookscape/internal/infra/mail"
	"github.com/in004/bookscape/internal/infra/mq"
	"github.com/in004/bookscape/internal/logger"
	"github.com/in004/bookscape/internal/service"
)

func main() {
	cfg, err := config.Load(config.Dir())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg, err := logger.Init(&cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer lg.Sync()

	mqConn := mq.Init(&cfg.RabbitMQ)
	defer mqConn.Close()

	ch, err := mqConn.Channel()
	if err != nil {
		lg.Fatal("failed to open channel", zap.Error(err))
	}
	defer ch.Close()

	if err := mq.DeclareQueue(ch, cfg.RabbitMQ.MailQueue); err != nil {
		lg.Fatal("failed to declare queue", zap.Error(err))
	}
	// 一次只取一封，发送慢时不堆积在本地
	if err := ch.Qos(1, 0, false); err != nil {
		lg.Fatal("failed to set qos", zap.Error(err))
	}

	// 手动确认模式（auto-ack=false）
	msgs, err := ch.Consume(cfg.RabbitMQ.MailQueue, "", false, false, false, false, nil)
	if err != nil {
		lg.Fatal("failed to consume", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender := mail.NewSMTPSender(&cfg.SMTP)
	monitor := service.GetMonitor()
	handle := func(ctx context.Context, m mail.Message) error {
		if err := sender.Send(ctx, m); err != nil {
			monitor.RecordMailFailed()
			return err
		}
		monitor.RecordMailSent()
		return nil
	}

	lg.Info("mail worker started, waiting for messages...", zap.String("queue", cfg.RabbitMQ.MailQueue))
	mq.ConsumeMail(ctx, msgs, handle, lg.Named("mail-worker"))
	lg.Info("mail worker stopped")
}
