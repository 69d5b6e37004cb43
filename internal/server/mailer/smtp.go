package mailer

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS makes STARTTLS mandatory; otherwise it is used when offered.
	TLS bool
}

// SMTPDispatcher sends messages through an SMTP relay, one connection per
// message.
type SMTPDispatcher struct {
	cfg    SMTPConfig
	client *mail.Client
}

var dialAndSend = func(ctx context.Context, c *mail.Client, msgs ...*mail.Msg) error {
	return c.DialAndSendWithContext(ctx, msgs...)
}

func NewSMTPDispatcher(cfg SMTPConfig) (*SMTPDispatcher, error) {
	policy := mail.TLSOpportunistic
	if cfg.TLS {
		policy = mail.TLSMandatory
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(policy),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPDispatcher{cfg: cfg, client: client}, nil
}

func (d *SMTPDispatcher) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg, err := d.build(to, subject, htmlBody)
	if err != nil {
		return err
	}
	if err := dialAndSend(ctx, d.client, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (d *SMTPDispatcher) build(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(d.cfg.From); err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrInvalidMessage, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("%w: to: %v", ErrInvalidMessage, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}
