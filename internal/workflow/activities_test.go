package workflow_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/adapters/mock"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/providers"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/threshold"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/notify"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/repo"
	wf "github.com/red-game-dev/the-freight-delay-notification-sub001/internal/workflow"
)

// failingGenerator simulates an AI backend that is up but erroring.
type failingGenerator struct{}

func (failingGenerator) ProviderName() string { return "broken-ai" }
func (failingGenerator) Priority() int { return 1 }
func (failingGenerator) Available(context.Context) bool { return true }
func (failingGenerator) Generate(context.Context, providers.MessageContext) (providers.Message, error) {
	return providers.Message{}, freight.E(freight.KindInfrastructure, "model overloaded")
}

// fakeChannel records sends on both channels and can be told to fail.
type fakeChannel struct {
	name   string
	fail   bool
	emails []providers.SendInput
	smss   []providers.SendInput
}

func (f *fakeChannel) ProviderName() string           { return f.name }
func (f *fakeChannel) Priority() int                  { return 1 }
func (f *fakeChannel) Available(context.Context) bool { return true }

func (f *fakeChannel) SendEmail(_ context.Context, in providers.SendInput) (providers.SendResult, error) {
	if f.fail {
		return providers.SendResult{}, freight.E(freight.KindInfrastructure, "smtp unreachable")
	}
	f.emails = append(f.emails, in)
	return providers.SendResult{MessageID: "em-1", Provider: f.name}, nil
}

func (f *fakeChannel) SendSMS(_ context.Context, in providers.SendInput) (providers.SendResult, error) {
	if f.fail {
		return providers.SendResult{}, freight.E(freight.KindInfrastructure, "sms gateway unreachable")
	}
	f.smss = append(f.smss, in)
	return providers.SendResult{MessageID: "sm-1", Provider: f.name}, nil
}

type harness struct {
	a     *wf.Activities
	store *repo.Bolt
	email *fakeChannel
	sms   *fakeChannel
}

func newHarness(t *testing.T, gens ...providers.MessageGenerator) *harness {
	t.Helper()
	st, err := repo.OpenBolt(filepath.Join(t.TempDir(), "freight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	m := mock.New()
	if len(gens) == 0 {
		gens = []providers.MessageGenerator{m}
	}
	email := &fakeChannel{name: "email-fake"}
	sms := &fakeChannel{name: "sms-fake"}
	a := wf.NewActivities(
		st,
		providers.NewTrafficChain(m),
		providers.NewGeneratorChain(gens...),
		notify.NewService([]providers.EmailNotifier{email}, []providers.SMSNotifier{sms}, nil),
		threshold.NewResolver(st, 0),
	)
	return &harness{a: a, store: st, email: email, sms: sms}
}

func (h *harness) seedDelivery(t *testing.T, mut func(*freight.Delivery)) *freight.Delivery {
	t.Helper()
	ctx := context.Background()

	cust := &freight.Customer{
		Name:  "Ana",
		Email: "ana@example.com",
		Phone: "+15550001111",
	}
	require.NoError(t, h.store.CreateCustomer(ctx, cust))

	route := &freight.Route{
		OriginAddress:         "1 Market St, San Francisco",
		OriginCoords:          freight.Coords{Lat: 37.7936, Lng: -122.3965},
		DestinationAddress:    "1 First St, San Jose",
		DestinationCoords:     freight.Coords{Lat: 37.3362, Lng: -121.8905},
		DistanceMeters:        78000,
		NormalDurationSeconds: 3600,
	}
	require.NoError(t, h.store.CreateRoute(ctx, route))

	d := &freight.Delivery{
		TrackingNumber:    "TRK-100",
		CustomerID:        cust.ID,
		RouteID:           route.ID,
		ScheduledDelivery: time.Now().Add(6 * time.Hour),
		MaxChecks:         -1,
	}
	if mut != nil {
		mut(d)
	}
	require.NoError(t, h.store.CreateDelivery(ctx, d))
	return d
}

func (h *harness) recordSent(t *testing.T, deliveryID string, delayAtSend int, sentAt time.Time) {
	t.Helper()
	n := &freight.Notification{
		DeliveryID:         deliveryID,
		Channel:            freight.ChannelEmail,
		Recipient:          "ana@example.com",
		Message:            "earlier notice",
		Status:             freight.NotificationSent,
		SentAt:             &sentAt,
		DelayMinutesAtSend: delayAtSend,
	}
	require.NoError(t, h.store.CreateNotification(context.Background(), n))
}

func TestCheckTrafficPersistsSnapshot(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	d := h.seedDelivery(t, nil)
	ctx := context.Background()

	res, err := h.a.CheckTraffic(ctx, wf.CheckTrafficInput{DeliveryID: d.ID})
	require.NoError(t, err)
	require.NotEmpty(t, res.Traffic.ProviderName)
	require.GreaterOrEqual(t, res.Traffic.DelayMinutes, 0)

	route, err := h.store.GetRoute(ctx, d.RouteID)
	require.NoError(t, err)
	require.NotZero(t, route.CurrentDurationSeconds)
	require.NotEmpty(t, route.TrafficCondition)

	snaps, err := h.store.ListSnapshotsByRoute(ctx, d.RouteID, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, res.Traffic.DelayMinutes, snaps[0].DelayMinutes)
}

func TestEvaluateDelayGates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("below fallback threshold", func(t *testing.T) {
		h := newHarness(t)
		d := h.seedDelivery(t, nil)

		out, err := h.a.EvaluateDelay(ctx, wf.EvaluateDelayInput{
			DeliveryID: d.ID,
			Traffic:    freight.TrafficResult{DelayMinutes: 20},
		})
		require.NoError(t, err)
		require.False(t, out.Notify)
		require.Equal(t, wf.ReasonBelowThreshold, out.Reason)
		require.Equal(t, threshold.SourceFallback, out.Threshold.Source)
	})

	t.Run("above threshold with no prior notification", func(t *testing.T) {
		h := newHarness(t)
		d := h.seedDelivery(t, nil)

		out, err := h.a.EvaluateDelay(ctx, wf.EvaluateDelayInput{
			DeliveryID: d.ID,
			Traffic:    freight.TrafficResult{DelayMinutes: 45},
		})
		require.NoError(t, err)
		require.True(t, out.Notify)
		require.Equal(t, wf.ReasonNotify, out.Reason)
	})

	t.Run("cooldown suppresses a fresh repeat", func(t *testing.T) {
		h := newHarness(t)
		d := h.seedDelivery(t, func(d *freight.Delivery) {
			d.MinHoursBetweenNotifications = 2
		})
		h.recordSent(t, d.ID, 40, time.Now().Add(-30*time.Minute))

		out, err := h.a.EvaluateDelay(ctx, wf.EvaluateDelayInput{
			DeliveryID: d.ID,
			Traffic:    freight.TrafficResult{DelayMinutes: 90},
		})
		require.NoError(t, err)
		require.False(t, out.Notify)
		require.Equal(t, wf.ReasonCooldown, out.Reason)
	})

	t.Run("small delay change suppressed after cooldown", func(t *testing.T) {
		h := newHarness(t)
		d := h.seedDelivery(t, func(d *freight.Delivery) {
			d.MinHoursBetweenNotifications = 1
			d.MinDelayChangeThreshold = 10
		})
		h.recordSent(t, d.ID, 40, time.Now().Add(-3*time.Hour))

		out, err := h.a.EvaluateDelay(ctx, wf.EvaluateDelayInput{
			DeliveryID: d.ID,
			Traffic:    freight.TrafficResult{DelayMinutes: 45},
		})
		require.NoError(t, err)
		require.False(t, out.Notify)
		require.Equal(t, wf.ReasonDelta, out.Reason)
	})

	t.Run("big delay change notifies again", func(t *testing.T) {
		h := newHarness(t)
		d := h.seedDelivery(t, func(d *freight.Delivery) {
			d.MinHoursBetweenNotifications = 1
			d.MinDelayChangeThreshold = 10
		})
		h.recordSent(t, d.ID, 40, time.Now().Add(-3*time.Hour))

		out, err := h.a.EvaluateDelay(ctx, wf.EvaluateDelayInput{
			DeliveryID: d.ID,
			Traffic:    freight.TrafficResult{DelayMinutes: 60},
		})
		require.NoError(t, err)
		require.True(t, out.Notify)
	})
}

func TestGenerateMessageFallsBackToTemplate(t *testing.T) {
	t.Parallel()
	h := newHarness(t, failingGenerator{})
	d := h.seedDelivery(t, nil)

	msg, err := h.a.GenerateMessage(context.Background(), wf.GenerateMessageInput{
		DeliveryID: d.ID,
		Traffic:    freight.TrafficResult{DelayMinutes: 50, Condition: freight.ConditionHeavy},
	})
	require.NoError(t, err)
	require.Equal(t, "template-fallback", msg.ModelName)
	require.Contains(t, msg.Body, "TRK-100")
	require.Contains(t, msg.Body, "50 minutes")
	require.Contains(t, msg.Subject, "delayed by 50 minutes")
}

func TestSendNotificationsMarksDelayed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	d := h.seedDelivery(t, nil)
	ctx := context.Background()

	out, err := h.a.SendNotifications(ctx, wf.SendNotificationsInput{
		DeliveryID:   d.ID,
		Channels:     []freight.Channel{freight.ChannelEmail, freight.ChannelSMS},
		Message:      providersMessage("heavy traffic on your route"),
		DelayMinutes: 50,
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Sent)
	require.Len(t, h.email.emails, 1)
	require.Len(t, h.sms.smss, 1)

	got, err := h.store.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, freight.StatusDelayed, got.Status)

	rows, err := h.store.ListNotificationsByDelivery(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	last, err := h.store.LatestSentNotification(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, 50, last.DelayMinutesAtSend)
	require.NotNil(t, last.SentAt)
}

func TestSendNotificationsAllChannelsFail(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.email.fail = true
	h.sms.fail = true
	d := h.seedDelivery(t, nil)
	ctx := context.Background()

	_, err := h.a.SendNotifications(ctx, wf.SendNotificationsInput{
		DeliveryID:   d.ID,
		Channels:     []freight.Channel{freight.ChannelEmail, freight.ChannelSMS},
		Message:      providersMessage("late"),
		DelayMinutes: 50,
	})
	require.Error(t, err)

	got, err := h.store.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, freight.StatusPending, got.Status)

	rows, err := h.store.ListNotificationsByDelivery(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, n := range rows {
		require.Equal(t, freight.NotificationFailed, n.Status)
	}
}

func TestSendNotificationsSkipsMissingPhone(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	cust := &freight.Customer{Name: "Bo", Email: "bo@example.com"}
	require.NoError(t, h.store.CreateCustomer(ctx, cust))
	route := &freight.Route{OriginAddress: "A", DestinationAddress: "B"}
	require.NoError(t, h.store.CreateRoute(ctx, route))
	d := &freight.Delivery{
		TrackingNumber:    "TRK-200",
		CustomerID:        cust.ID,
		RouteID:           route.ID,
		ScheduledDelivery: time.Now().Add(4 * time.Hour),
		MaxChecks:         -1,
	}
	require.NoError(t, h.store.CreateDelivery(ctx, d))

	out, err := h.a.SendNotifications(ctx, wf.SendNotificationsInput{
		DeliveryID:   d.ID,
		Channels:     []freight.Channel{freight.ChannelEmail, freight.ChannelSMS},
		Message:      providersMessage("late"),
		DelayMinutes: 35,
	})
	require.NoError(t, err)
	require.Equal(t, 1, out.Sent)
	require.Len(t, out.Outcomes, 2)
	require.Equal(t, freight.NotificationSkipped, out.Outcomes[1].Status)
}

func TestIncrementChecksActivity(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	d := h.seedDelivery(t, func(d *freight.Delivery) {
		d.MaxChecks = 1
	})
	ctx := context.Background()

	n, err := h.a.IncrementChecks(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = h.a.IncrementChecks(ctx, d.ID)
	require.Error(t, err)
}
