// Package threshold resolves the delay threshold applicable to a delivery:
// per-delivery override, then the stored system default, then a compile-time
// fallback so the pipeline always has a usable answer.
package threshold

import (
	"context"

	"go.uber.org/zap"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/logger"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/repo"
)

// FallbackMinutes is the compile-time last resort when nothing is configured.
const FallbackMinutes = 30

// Source says which rule produced the resolved threshold.
type Source string

const (
	SourceDelivery Source = "delivery_override"
	SourceDefault  Source = "system_default"
	SourceFallback Source = "fallback"
)

// Resolved is the threshold the pipeline works with.
type Resolved struct {
	DelayMinutes int               `json:"delay_minutes"`
	Channels     []freight.Channel `json:"channels"`
	Source       Source            `json:"source"`
}

// Resolver picks thresholds against the stored set.
type Resolver struct {
	store           repo.Thresholds
	fallbackMinutes int
}

// NewResolver builds a resolver. fallbackMinutes <= 0 selects the package
// fallback.
func NewResolver(store repo.Thresholds, fallbackMinutes int) *Resolver {
	if fallbackMinutes <= 0 {
		fallbackMinutes = FallbackMinutes
	}
	return &Resolver{store: store, fallbackMinutes: fallbackMinutes}
}

// Resolve applies the resolution order. The channel set always comes from the
// stored default when one exists, even when the delay minutes are overridden
// per delivery; without a stored default both channels are enabled.
// Repository errors other than not-found degrade to the fallback: a delayed
// freight customer is better served by a notification against a default
// threshold than by none.
func (r *Resolver) Resolve(ctx context.Context, d *freight.Delivery) Resolved {
	channels := []freight.Channel{freight.ChannelEmail, freight.ChannelSMS}

	def, err := r.store.DefaultThreshold(ctx)
	switch {
	case err == nil:
		channels = def.Channels
	case !freight.IsNotFound(err):
		logger.Warn("threshold lookup failed, using fallback",
			zap.String("delivery_id", d.ID), zap.Error(err))
	}

	if d.DelayThresholdMinutes > 0 {
		return Resolved{DelayMinutes: d.DelayThresholdMinutes, Channels: channels, Source: SourceDelivery}
	}
	if def != nil {
		return Resolved{DelayMinutes: def.DelayMinutes, Channels: def.Channels, Source: SourceDefault}
	}
	return Resolved{DelayMinutes: r.fallbackMinutes, Channels: channels, Source: SourceFallback}
}
