// Package providers defines the capability sets implemented by the vendor
// adapters (traffic lookup, geocoding, message generation, email, SMS) and
// the fallback chains that pick the first available adapter in priority
// order. Concrete implementations live under internal/adapters.
package providers

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/logger"

	"go.uber.org/zap"
)

// Info is the metadata every adapter exposes. Lower priority is preferred;
// mock adapters register at priority 999 so they only win when nothing real
// is configured. Available must be cheap: it gates every fallback decision.
type Info interface {
	ProviderName() string
	Priority() int
	Available(ctx context.Context) bool
}

// TrafficProvider answers live traffic for a route.
type TrafficProvider interface {
	Info
	GetTraffic(ctx context.Context, origin, destination freight.Coords) (freight.TrafficResult, error)
}

// Geocoder resolves a street address into coordinates. Fails on empty or
// unresolvable addresses.
type Geocoder interface {
	Info
	Geocode(ctx context.Context, address string) (freight.Coords, error)
}

// MessageContext carries everything a generator needs to personalize a delay
// notification.
type MessageContext struct {
	TrackingNumber   string                   `json:"tracking_number"`
	CustomerName     string                   `json:"customer_name"`
	Origin           string                   `json:"origin"`
	Destination      string                   `json:"destination"`
	DelayMinutes     int                      `json:"delay_minutes"`
	Condition        freight.TrafficCondition `json:"traffic_condition"`
	OriginalArrival  time.Time                `json:"original_arrival"`
	EstimatedArrival time.Time                `json:"estimated_arrival"`
}

// Message is a generated notification text.
type Message struct {
	Subject    string `json:"subject"`
	Body       string `json:"message"`
	ModelName  string `json:"model_name"`
	TokenCount int    `json:"token_count,omitempty"`
}

// MessageGenerator produces a personalized delay message.
type MessageGenerator interface {
	Info
	Generate(ctx context.Context, mctx MessageContext) (Message, error)
}

// SendInput is a channel-agnostic outbound notification.
type SendInput struct {
	To         string `json:"to"`
	Subject    string `json:"subject,omitempty"`
	Message    string `json:"message"`
	DeliveryID string `json:"delivery_id"`
}

// SendResult reports a successful dispatch: the provider's message id and
// which adapter handled it.
type SendResult struct {
	MessageID string `json:"message_id"`
	Provider  string `json:"provider"`
}

// EmailNotifier dispatches one email.
type EmailNotifier interface {
	Info
	SendEmail(ctx context.Context, in SendInput) (SendResult, error)
}

// SMSNotifier dispatches one SMS.
type SMSNotifier interface {
	Info
	SendSMS(ctx context.Context, in SendInput) (SendResult, error)
}

// SortByPriority orders adapters ascending by priority, name as tiebreaker
// so the order is stable across restarts.
func SortByPriority[P Info](list []P) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority() != list[j].Priority() {
			return list[i].Priority() < list[j].Priority()
		}
		return list[i].ProviderName() < list[j].ProviderName()
	})
}

// resolve runs call against each available provider in priority order and
// returns the first success. Unavailable providers are skipped; failures are
// collected and, if every provider fails, reported as one aggregated
// infrastructure error listing each attempt.
func resolve[P Info, R any](ctx context.Context, capability string, list []P, call func(P) (R, error)) (R, error) {
	var zero R
	if len(list) == 0 {
		return zero, freight.E(freight.KindInfrastructure, "%s: no providers registered", capability)
	}

	var attempts []string
	for _, p := range list {
		if !p.Available(ctx) {
			logger.Debug("provider unavailable, skipping",
				zap.String("capability", capability), zap.String("provider", p.ProviderName()))
			attempts = append(attempts, p.ProviderName()+": unavailable")
			continue
		}
		res, err := call(p)
		if err == nil {
			return res, nil
		}
		logger.Warn("provider failed, falling through",
			zap.String("capability", capability), zap.String("provider", p.ProviderName()), zap.Error(err))
		attempts = append(attempts, p.ProviderName()+": "+err.Error())
	}

	return zero, freight.E(freight.KindInfrastructure,
		"%s: all providers failed [%s]", capability, strings.Join(attempts, "; "))
}

// TrafficChain is the priority-ordered traffic fallback.
type TrafficChain struct{ list []TrafficProvider }

// NewTrafficChain sorts the providers; the slice is not copied.
func NewTrafficChain(list ...TrafficProvider) *TrafficChain {
	SortByPriority(list)
	return &TrafficChain{list: list}
}

// GetTraffic returns the first available provider's answer.
func (c *TrafficChain) GetTraffic(ctx context.Context, origin, destination freight.Coords) (freight.TrafficResult, error) {
	return resolve(ctx, "traffic", c.list, func(p TrafficProvider) (freight.TrafficResult, error) {
		return p.GetTraffic(ctx, origin, destination)
	})
}

// GeocoderChain is the priority-ordered geocoding fallback.
type GeocoderChain struct{ list []Geocoder }

func NewGeocoderChain(list ...Geocoder) *GeocoderChain {
	SortByPriority(list)
	return &GeocoderChain{list: list}
}

// Geocode returns the first available provider's answer. An empty address is
// rejected before any provider is asked.
func (c *GeocoderChain) Geocode(ctx context.Context, address string) (freight.Coords, error) {
	if strings.TrimSpace(address) == "" {
		return freight.Coords{}, freight.E(freight.KindValidation, "geocode: empty address")
	}
	return resolve(ctx, "geocode", c.list, func(p Geocoder) (freight.Coords, error) {
		return p.Geocode(ctx, address)
	})
}

// GeneratorChain is the priority-ordered message-generation fallback.
type GeneratorChain struct{ list []MessageGenerator }

func NewGeneratorChain(list ...MessageGenerator) *GeneratorChain {
	SortByPriority(list)
	return &GeneratorChain{list: list}
}

// Generate returns the first available generator's message.
func (c *GeneratorChain) Generate(ctx context.Context, mctx MessageContext) (Message, error) {
	return resolve(ctx, "message-generation", c.list, func(p MessageGenerator) (Message, error) {
		return p.Generate(ctx, mctx)
	})
}
