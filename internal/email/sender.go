package email

import "context"

// Sender provides a testable abstraction over SES delivery.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// NoopSender discards every email. It is the sender when email delivery
// is disabled in config.
type NoopSender struct{}

func (NoopSender) Send(ctx context.Context, recipient, subject, body string) error { return nil }
