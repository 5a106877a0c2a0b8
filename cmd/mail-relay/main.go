package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jobboard/campaign-portal/internal/config"
	"github.com/jobboard/campaign-portal/internal/mail"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Mail relay: consumes the durable mail queue filled by MAIL_TRANSPORT=amqp
// and delivers over SMTP.

const maxRetries = 5

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.MustLoad(log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.SMTPHost == "" {
		log.Fatal("mail-relay requires SMTP_HOST")
	}
	smtp := mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal("failed to connect to amqp", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("failed to open amqp channel", zap.Error(err))
	}
	defer ch.Close()

	q, err := mail.DeclareQueue(ch, cfg.AMQPMailQueue)
	if err != nil {
		log.Fatal("failed to declare mail queue", zap.Error(err))
	}
	if err := ch.Qos(1, 0, false); err != nil {
		log.Fatal("failed to set qos", zap.Error(err))
	}

	deliveries, err := ch.Consume(
		q.Name,
		"mail-relay",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Fatal("failed to register consumer", zap.Error(err))
	}

	relay := mail.NewQueueRelay(q.Name, smtp, ch, maxRetries, cfg.NotificationSendTimeout, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(ctx, deliveries)
	}()

	log.Info("mail-relay started", zap.String("queue", q.Name))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-done:
		log.Error("mail queue consumer stopped")
	}

	log.Info("shutting down mail-relay")
	cancel()
}
