package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/laksac24/VeriFy/internal/platform/config"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

// SMTPNotifier delivers mail through a plain SMTP relay.
type SMTPNotifier struct {
	client *mail.Client
	from   string
}

func NewSMTP(cfg config.SMTPConfig) (*SMTPNotifier, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("build smtp client: %w", err)
	}
	return &SMTPNotifier{client: client, from: cfg.From}, nil
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(n.from); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid sender address")
	}
	if err := m.To(msg.To); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid recipient address")
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	if err := n.client.DialAndSendWithContext(ctx, m); err != nil {
		return dErrors.Wrap(err, dErrors.CodeExternal, "send mail")
	}
	return nil
}
