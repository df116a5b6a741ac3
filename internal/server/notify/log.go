package notify

import (
	"context"

	"github.com/subit-dev/posterd/internal/logging"
)

// Log writes codes to the application log instead of sending mail.
// Development only.
type Log struct {
	logger logging.Logger
}

func NewLog(logger logging.Logger) *Log {
	return &Log{logger: logger.With("component", "notify")}
}

func (l *Log) SendVerification(ctx context.Context, email string, code uint32, purpose string) error {
	l.logger.Info(ctx, "verification code issued", "email", email, "code", code, "purpose", purpose)
	return nil
}
