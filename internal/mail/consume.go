package mail

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jobboard/campaign-portal/internal/apperrors"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const retryHeader = "x-retry-count"

// Publisher is the subset of *amqp.Channel used to requeue a failed message.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

// QueueRelay drains the mail queue into a real transport. A failed send is
// republished with an incremented retry header until maxRetries, then dropped.
type QueueRelay struct {
	queue      string
	mailer     Mailer
	pub        Publisher
	maxRetries int
	timeout    time.Duration
	log        *zap.Logger
}

func NewQueueRelay(queue string, mailer Mailer, pub Publisher, maxRetries int, timeout time.Duration, log *zap.Logger) *QueueRelay {
	return &QueueRelay{queue: queue, mailer: mailer, pub: pub, maxRetries: maxRetries, timeout: timeout, log: log}
}

// Run consumes deliveries until ctx ends or the channel closes.
func (r *QueueRelay) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				r.log.Warn("delivery channel closed", zap.String("queue", r.queue))
				return
			}
			r.handle(ctx, d.Body, d.Headers)
			if err := d.Ack(false); err != nil {
				r.log.Error("failed to ack delivery", zap.Error(err))
			}
		}
	}
}

// handle processes one message body. It never asks for a broker-side requeue:
// retries are explicit republishes so the count survives.
func (r *QueueRelay) handle(ctx context.Context, body []byte, headers amqp.Table) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil || msg.To == "" {
		r.log.Warn("dropping malformed mail message", zap.Error(err))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err := r.mailer.Send(sendCtx, msg.To, msg.Subject, msg.HTML)
	cancel()
	if err == nil {
		r.log.Info("mail relayed", zap.String("subject", msg.Subject))
		return
	}

	log := r.log.With(tagFields(msg.Tags)...)
	retries := retryCount(headers)
	if retries >= r.maxRetries {
		log.Error("giving up on mail message",
			zap.String("subject", msg.Subject),
			zap.Int("retries", retries),
			zap.Error(apperrors.Wrap(apperrors.KindDeliveryFailure, err, "relay to %s", msg.To)))
		return
	}

	log.Warn("mail send failed, requeueing", zap.Int("retry", retries+1), zap.Error(err))
	if perr := r.pub.Publish("", r.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{retryHeader: int32(retries + 1)},
		Body:         body,
	}); perr != nil {
		log.Error("failed to requeue mail message", zap.Error(perr))
	}
}

func tagFields(tags map[string]string) []zap.Field {
	fields := make([]zap.Field, 0, len(tags))
	for k, v := range tags {
		fields = append(fields, zap.String(k, v))
	}
	return fields
}
