// Package mailer delivers outbound e-mail. The server only depends on the
// Dispatcher interface; the concrete transport (log, SMTP or a RabbitMQ
// queue drained by the mailer worker) is chosen by configuration.
package mailer

import (
	"context"
	"errors"
)

// Dispatcher sends one HTML message.
type Dispatcher interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Message is the queued form of a Send call.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

var ErrInvalidMessage = errors.New("invalid mail message")

func (m Message) validate() error {
	if m.To == "" || m.Subject == "" {
		return ErrInvalidMessage
	}
	return nil
}
