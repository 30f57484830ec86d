// Package mock provides always-available adapters for every provider
// capability, registered at priority 999 so they are hit only when nothing
// real is configured (or when FORCE_NOTIFICATION_MOCK_ADAPTER pins them).
// Outputs are deterministic: traffic figures are derived by hashing the
// coordinates, so retries and replays see the same world.
package mock

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/providers"
)

const (
	providerName = "mock"
	priority     = 999
)

// Provider implements all five capabilities in one value; it is registered
// into each chain separately.
type Provider struct{}

// New returns the shared mock provider.
func New() *Provider { return &Provider{} }

func (*Provider) ProviderName() string           { return providerName }
func (*Provider) Priority() int                  { return priority }
func (*Provider) Available(context.Context) bool { return true }

// hash64 folds arbitrary float pairs into a stable 64-bit value (FNV-1a).
func hash64(vals ...float64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// GetTraffic fabricates a plausible route: distance from the coordinate
// delta, a normal duration at ~60 km/h and a hash-derived delay of 0-59
// minutes. The same coordinates always produce the same answer.
func (*Provider) GetTraffic(_ context.Context, origin, destination freight.Coords) (freight.TrafficResult, error) {
	dLat := destination.Lat - origin.Lat
	dLng := destination.Lng - origin.Lng
	// ~111 km per degree; close enough for fabricated freight.
	distanceMeters := int(math.Sqrt(dLat*dLat+dLng*dLng) * 111_000)
	if distanceMeters < 1000 {
		distanceMeters = 1000
	}
	normalSec := distanceMeters * 60 / 1000 // 60 km/h
	delayMin := int(hash64(origin.Lat, origin.Lng, destination.Lat, destination.Lng) % 60)
	estimatedSec := normalSec + delayMin*60

	return freight.NewTrafficResult(distanceMeters, normalSec, estimatedSec, providerName), nil
}

// Geocode maps an address onto a stable pseudo-coordinate inside plausible
// bounds. Empty addresses are rejected, matching the real geocoders.
func (*Provider) Geocode(_ context.Context, address string) (freight.Coords, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return freight.Coords{}, freight.E(freight.KindValidation, "geocode: empty address")
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(address)))
	sum := h.Sum64()
	return freight.Coords{
		Lat: float64(sum%170_000)/1000 - 85,        // [-85, 85)
		Lng: float64((sum/170_000)%360_000)/1000 - 180, // [-180, 180)
	}, nil
}

// Generate renders the deterministic template message; it is the same text
// the pipeline falls back to when every AI generator fails.
func (*Provider) Generate(_ context.Context, mctx providers.MessageContext) (providers.Message, error) {
	return providers.Message{
		Subject:   fmt.Sprintf("Delivery %s delayed by %d minutes", mctx.TrackingNumber, mctx.DelayMinutes),
		Body:      TemplateMessage(mctx),
		ModelName: "mock-template",
	}, nil
}

// TemplateMessage is the deterministic fallback text shared with the
// pipeline's message-generation step.
func TemplateMessage(mctx providers.MessageContext) string {
	return fmt.Sprintf(
		"Delivery %s: expected delay of %d minutes due to %s traffic. New ETA %s.",
		mctx.TrackingNumber, mctx.DelayMinutes, mctx.Condition,
		mctx.EstimatedArrival.Format("15:04 MST, Jan 2"),
	)
}

// SendEmail pretends to deliver and returns a deterministic message id.
func (*Provider) SendEmail(_ context.Context, in providers.SendInput) (providers.SendResult, error) {
	return providers.SendResult{
		MessageID: fmt.Sprintf("mock-email-%016x", hashString(in.DeliveryID+"|"+in.To)),
		Provider:  providerName,
	}, nil
}

// SendSMS pretends to deliver and returns a deterministic message id.
func (*Provider) SendSMS(_ context.Context, in providers.SendInput) (providers.SendResult, error) {
	return providers.SendResult{
		MessageID: fmt.Sprintf("mock-sms-%016x", hashString(in.DeliveryID+"|"+in.To)),
		Provider:  providerName,
	}, nil
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
