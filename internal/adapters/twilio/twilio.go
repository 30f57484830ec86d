// Package twilio adapts the Twilio Programmable Messaging API into the SMS
// capability. Message length budgeting (the 160-character rule) is handled in
// the notification service, so every SMS adapter receives an already-fitted
// body.
package twilio

import (
	"context"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/providers"
)

const (
	providerName    = "twilio"
	defaultPriority = 10
)

// Notifier implements providers.SMSNotifier.
type Notifier struct {
	client *twilio.RestClient
	from   string
}

// New builds the adapter. Missing credentials or sender number leave it
// permanently unavailable.
func New(accountSID, authToken, fromNumber string) *Notifier {
	n := &Notifier{from: fromNumber}
	if accountSID != "" && authToken != "" && fromNumber != "" {
		n.client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
	}
	return n
}

func (n *Notifier) ProviderName() string           { return providerName }
func (n *Notifier) Priority() int                  { return defaultPriority }
func (n *Notifier) Available(context.Context) bool { return n.client != nil }

// SendSMS dispatches one message and returns the Twilio SID as the provider
// message id. The twilio-go REST client has no context plumbing; the ctx is
// accepted for interface symmetry.
func (n *Notifier) SendSMS(_ context.Context, in providers.SendInput) (providers.SendResult, error) {
	params := &api.CreateMessageParams{}
	params.SetTo(in.To)
	params.SetFrom(n.from)
	params.SetBody(in.Message)

	msg, err := n.client.Api.CreateMessage(params)
	if err != nil {
		return providers.SendResult{}, freight.WrapE(err, freight.KindInfrastructure, "twilio send")
	}

	sid := ""
	if msg.Sid != nil {
		sid = *msg.Sid
	}
	return providers.SendResult{MessageID: sid, Provider: providerName}, nil
}
