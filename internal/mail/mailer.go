package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/jobboard/campaign-portal/internal/config"
	"go.uber.org/zap"
)

// Mailer delivers one HTML email. Implementations must honour ctx cancellation
// where the transport allows it.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Message is the wire form used by the relay and queue transports.
type Message struct {
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// New picks the transport named by MAIL_TRANSPORT. The returned close func
// releases transport resources and is never nil.
func New(cfg *config.Config, log *zap.Logger) (Mailer, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(cfg.MailTransport) {
	case "", "log":
		return NewLogMailer(log), noop, nil
	case "smtp":
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom), noop, nil
	case "http":
		return NewHTTPRelay(cfg.MailRelayURL, cfg.NotificationSendTimeout, log), noop, nil
	case "amqp":
		m, err := NewAMQPMailer(cfg.AMQPURL, cfg.AMQPMailQueue, log)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown mail transport %q", cfg.MailTransport)
	}
}

// LogMailer writes messages to the log instead of sending them. Development only.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.log.Info("mail (log transport)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("text", HTMLToText(html)),
	)
	return nil
}
