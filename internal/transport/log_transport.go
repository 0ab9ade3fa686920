package transport

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogTransport writes messages to the log instead of sending them. It still
// validates addresses so local runs surface the same failures as SMTP.
type LogTransport struct {
	Logger *logrus.Entry
}

func NewLogTransport(logger *logrus.Entry) *LogTransport {
	return &LogTransport{Logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, to, subject, body string) error {
	if err := ValidateAddress(to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return NewError(KindTimeout, err)
	}
	t.Logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
		"bytes":   len(body),
	}).Info("📨 message sent (log transport)")
	return nil
}
