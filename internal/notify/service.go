// Package notify is the channel-aware notification fan-out. It owns the
// per-channel adapter order, the email blacklist, and the channel-specific
// payload formatting; the delivery pipeline and any future callers go through
// it instead of talking to adapters directly.
package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/providers"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/logger"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/metrics"
)

// smsMaxLen is the single-segment SMS budget. Formatted bodies above it are
// cut at smsCutLen and suffixed with an ellipsis.
const (
	smsMaxLen = 160
	smsCutLen = 157
)

// DefaultBlacklist is the static recipient blacklist applied before any send
// attempt.
var DefaultBlacklist = []string{
	"blacklisted@example.com",
	"blocked@example.com",
}

// Outcome is the result of one channel delivery: exactly one of sent, failed
// or skipped, with enough detail to persist a Notification row.
type Outcome struct {
	Channel   freight.Channel
	Status    freight.NotificationStatus
	MessageID string
	Provider  string
	Error     string
}

// Sent reports whether the outcome is a successful delivery.
func (o Outcome) Sent() bool { return o.Status == freight.NotificationSent }

// Service fans a notification out to the adapters of a channel, first
// available in priority order, falling through on failure.
type Service struct {
	email     []providers.EmailNotifier
	sms       []providers.SMSNotifier
	blacklist map[string]struct{}
}

// NewService orders the adapters and indexes the blacklist. A nil blacklist
// falls back to DefaultBlacklist.
func NewService(email []providers.EmailNotifier, sms []providers.SMSNotifier, blacklist []string) *Service {
	providers.SortByPriority(email)
	providers.SortByPriority(sms)
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}
	idx := make(map[string]struct{}, len(blacklist))
	for _, addr := range blacklist {
		idx[strings.ToLower(strings.TrimSpace(addr))] = struct{}{}
	}
	return &Service{email: email, sms: sms, blacklist: idx}
}

// Blacklisted reports whether the recipient is on the static blacklist.
// Only email recipients are address-shaped, but the check is applied to every
// channel for symmetry.
func (s *Service) Blacklisted(recipient string) bool {
	_, ok := s.blacklist[strings.ToLower(strings.TrimSpace(recipient))]
	return ok
}

// Send delivers one notification on one channel. The blacklist short-circuits
// before any adapter is tried; adapter failures fall through to the next
// adapter; exhausting all adapters yields a failed outcome with the
// aggregated attempt list.
func (s *Service) Send(ctx context.Context, in providers.SendInput, channel freight.Channel) Outcome {
	out := Outcome{Channel: channel}

	if s.Blacklisted(in.To) {
		out.Status = freight.NotificationSkipped
		out.Error = "recipient is blacklisted"
		metrics.NotificationsSkipped.WithLabelValues(string(channel)).Inc()
		logger.Warn("notification skipped: blacklisted recipient",
			zap.String("channel", string(channel)), zap.String("delivery_id", in.DeliveryID))
		return out
	}

	var attempts []string
	try := func(name string, send func() (providers.SendResult, error)) bool {
		res, err := send()
		if err != nil {
			logger.Warn("notification attempt failed",
				zap.String("channel", string(channel)), zap.String("provider", name),
				zap.String("delivery_id", in.DeliveryID), zap.Error(err))
			attempts = append(attempts, name+": "+err.Error())
			return false
		}
		out.Status = freight.NotificationSent
		out.MessageID = res.MessageID
		out.Provider = res.Provider
		metrics.NotificationsSent.WithLabelValues(string(channel)).Inc()
		logger.Info("notification sent",
			zap.String("channel", string(channel)), zap.String("provider", name),
			zap.String("delivery_id", in.DeliveryID), zap.String("message_id", res.MessageID))
		return true
	}

	switch channel {
	case freight.ChannelEmail:
		for _, a := range s.email {
			if !a.Available(ctx) {
				attempts = append(attempts, a.ProviderName()+": unavailable")
				continue
			}
			if try(a.ProviderName(), func() (providers.SendResult, error) { return a.SendEmail(ctx, in) }) {
				return out
			}
		}
	case freight.ChannelSMS:
		smsIn := in
		smsIn.Message = FormatSMS(in.DeliveryID, in.Message)
		for _, a := range s.sms {
			if !a.Available(ctx) {
				attempts = append(attempts, a.ProviderName()+": unavailable")
				continue
			}
			if try(a.ProviderName(), func() (providers.SendResult, error) { return a.SendSMS(ctx, smsIn) }) {
				return out
			}
		}
	default:
		out.Status = freight.NotificationFailed
		out.Error = "unknown channel " + string(channel)
		return out
	}

	out.Status = freight.NotificationFailed
	if len(attempts) == 0 {
		out.Error = "no adapters registered for channel"
	} else {
		out.Error = "all adapters failed [" + strings.Join(attempts, "; ") + "]"
	}
	metrics.NotificationsFailed.WithLabelValues(string(channel)).Inc()
	return out
}

// SendBoth delivers the email and SMS variants concurrently and returns the
// pair of outcomes. Each channel may carry its own recipient.
func (s *Service) SendBoth(ctx context.Context, email, sms providers.SendInput) (Outcome, Outcome) {
	var emailOut, smsOut Outcome
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		emailOut = s.Send(gctx, email, freight.ChannelEmail)
		return nil
	})
	g.Go(func() error {
		smsOut = s.Send(gctx, sms, freight.ChannelSMS)
		return nil
	})
	_ = g.Wait() // outcomes carry their own failures
	return emailOut, smsOut
}

// FormatSMS fits a message into one SMS segment: a "Delivery {id} Update: "
// prefix, the first two content lines, and a hard cut at 157 characters with
// an ellipsis when the result would exceed 160.
func FormatSMS(deliveryID, message string) string {
	var content []string
	for _, line := range strings.Split(message, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		content = append(content, line)
		if len(content) == 2 {
			break
		}
	}

	text := "Delivery " + deliveryID + " Update: " + strings.Join(content, " ")
	runes := []rune(text)
	if len(runes) > smsMaxLen {
		text = string(runes[:smsCutLen]) + "..."
	}
	return text
}
