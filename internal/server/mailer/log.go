package mailer

import (
	"context"

	"github.com/dmitrijs2005/bantx/internal/logging"
)

// LogDispatcher writes messages to the log instead of sending them. Bodies
// are logged at debug level only since they may carry one-time links.
type LogDispatcher struct {
	log logging.Logger
}

func NewLogDispatcher(l logging.Logger) *LogDispatcher {
	return &LogDispatcher{log: l}
}

func (d *LogDispatcher) Send(ctx context.Context, to, subject, htmlBody string) error {
	d.log.Info(ctx, "mail dispatched", "to", to, "subject", subject)
	d.log.Debug(ctx, "mail body", "to", to, "body", htmlBody)
	return nil
}
