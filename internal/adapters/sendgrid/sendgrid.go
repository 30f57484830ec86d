// Package sendgrid adapts the SendGrid v3 Mail Send API into the email
// capability.
package sendgrid

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/providers"
)

const (
	providerName    = "sendgrid"
	defaultPriority = 10
	fromName        = "Freight Delay Notifications"
)

// Notifier implements providers.EmailNotifier.
type Notifier struct {
	client *sendgrid.Client
	from   string
}

// New builds the adapter. An empty key or sender address leaves it
// permanently unavailable.
func New(apiKey, fromAddr string) *Notifier {
	n := &Notifier{from: fromAddr}
	if apiKey != "" && fromAddr != "" {
		n.client = sendgrid.NewSendClient(apiKey)
	}
	return n
}

func (n *Notifier) ProviderName() string           { return providerName }
func (n *Notifier) Priority() int                  { return defaultPriority }
func (n *Notifier) Available(context.Context) bool { return n.client != nil }

// SendEmail dispatches one message. SendGrid reports the provider message id
// in the X-Message-Id response header.
func (n *Notifier) SendEmail(ctx context.Context, in providers.SendInput) (providers.SendResult, error) {
	subject := in.Subject
	if subject == "" {
		subject = fmt.Sprintf("Delivery %s update", in.DeliveryID)
	}
	msg := mail.NewSingleEmail(
		mail.NewEmail(fromName, n.from),
		subject,
		mail.NewEmail("", in.To),
		in.Message,
		"", // plain-text only; the generated body is not HTML
	)

	resp, err := n.client.SendWithContext(ctx, msg)
	if err != nil {
		return providers.SendResult{}, freight.WrapE(err, freight.KindInfrastructure, "sendgrid send")
	}
	if resp.StatusCode >= 300 {
		return providers.SendResult{}, freight.E(freight.KindInfrastructure,
			"sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}

	messageID := ""
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	return providers.SendResult{MessageID: messageID, Provider: providerName}, nil
}
