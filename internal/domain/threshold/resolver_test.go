package threshold_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/threshold"
)

// fakeThresholds provides only the methods the resolver touches; the rest
// panic to catch accidental use.
type fakeThresholds struct {
	def *freight.Threshold
	err error
}

func (f *fakeThresholds) DefaultThreshold(context.Context) (*freight.Threshold, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.def == nil {
		return nil, freight.E(freight.KindNotFound, "no default threshold configured")
	}
	return f.def, nil
}

func (f *fakeThresholds) CreateThreshold(context.Context, *freight.Threshold) error { panic("unused") }
func (f *fakeThresholds) GetThreshold(context.Context, string) (*freight.Threshold, error) {
	panic("unused")
}
func (f *fakeThresholds) ListThresholds(context.Context) ([]freight.Threshold, error) {
	panic("unused")
}
func (f *fakeThresholds) UpdateThreshold(context.Context, *freight.Threshold) error { panic("unused") }
func (f *fakeThresholds) DeleteThreshold(context.Context, string) error             { panic("unused") }
func (f *fakeThresholds) SetDefaultThreshold(context.Context, string) error         { panic("unused") }

func TestResolveOrder(t *testing.T) {
	t.Parallel()

	def := &freight.Threshold{
		DelayMinutes: 20,
		Channels:     []freight.Channel{freight.ChannelEmail},
		IsDefault:    true,
	}

	cases := []struct {
		name         string
		store        *fakeThresholds
		delivery     freight.Delivery
		wantMinutes  int
		wantChannels []freight.Channel
		wantSource   threshold.Source
	}{
		{
			name:         "deliveryOverrideWins",
			store:        &fakeThresholds{def: def},
			delivery:     freight.Delivery{ID: "d1", DelayThresholdMinutes: 45},
			wantMinutes:  45,
			wantChannels: []freight.Channel{freight.ChannelEmail},
			wantSource:   threshold.SourceDelivery,
		},
		{
			name:         "systemDefault",
			store:        &fakeThresholds{def: def},
			delivery:     freight.Delivery{ID: "d1"},
			wantMinutes:  20,
			wantChannels: []freight.Channel{freight.ChannelEmail},
			wantSource:   threshold.SourceDefault,
		},
		{
			name:         "fallbackWhenNoDefault",
			store:        &fakeThresholds{},
			delivery:     freight.Delivery{ID: "d1"},
			wantMinutes:  30,
			wantChannels: []freight.Channel{freight.ChannelEmail, freight.ChannelSMS},
			wantSource:   threshold.SourceFallback,
		},
		{
			name:         "fallbackOnRepoError",
			store:        &fakeThresholds{err: freight.E(freight.KindInfrastructure, "db down")},
			delivery:     freight.Delivery{ID: "d1"},
			wantMinutes:  30,
			wantChannels: []freight.Channel{freight.ChannelEmail, freight.ChannelSMS},
			wantSource:   threshold.SourceFallback,
		},
		{
			name:         "negativeOverrideIgnored",
			store:        &fakeThresholds{def: def},
			delivery:     freight.Delivery{ID: "d1", DelayThresholdMinutes: -5},
			wantMinutes:  20,
			wantChannels: []freight.Channel{freight.ChannelEmail},
			wantSource:   threshold.SourceDefault,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := threshold.NewResolver(tc.store, 0)
			got := r.Resolve(context.Background(), &tc.delivery)
			require.Equal(t, tc.wantMinutes, got.DelayMinutes)
			require.Equal(t, tc.wantChannels, got.Channels)
			require.Equal(t, tc.wantSource, got.Source)
		})
	}
}
