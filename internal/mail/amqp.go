package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// AMQPMailer enqueues messages on a durable queue; cmd/mail-relay delivers them.
// A successful Send means the broker accepted the message, not that it was
// delivered. Later failures surface only in the relay's log, keyed by the
// message's tags.
type AMQPMailer struct {
	url   string
	queue string
	log   *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPMailer(url, queue string, log *zap.Logger) (*AMQPMailer, error) {
	m := &AMQPMailer{url: url, queue: queue, log: log}
	if err := m.connect(); err != nil {
		return nil, err
	}
	return m, nil
}

// DeclareQueue declares the durable mail queue on ch. Both the publisher and
// the relay call it so either can start first.
func DeclareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
}

func (m *AMQPMailer) connect() error {
	conn, err := amqp.Dial(m.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := DeclareQueue(ch, m.queue); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp declare %s: %w", m.queue, err)
	}
	m.conn, m.ch = conn, ch
	return nil
}

func (m *AMQPMailer) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(Message{To: to, Subject: subject, HTML: html, Tags: TagsFrom(ctx)})
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.conn.IsClosed() {
		m.log.Warn("amqp connection lost, reconnecting", zap.String("queue", m.queue))
		if err := m.connect(); err != nil {
			return err
		}
	}

	return m.ch.Publish(
		"",
		m.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (m *AMQPMailer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch != nil {
		_ = m.ch.Close()
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
