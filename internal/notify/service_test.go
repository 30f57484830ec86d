package notify_test

import (
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/providers"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/notify"
)

// fakeNotifier serves both channels in tests.
type fakeNotifier struct {
	name      string
	priority  int
	available bool
	fail      bool
	calls     int
	gotBody   string
}

func (f *fakeNotifier) ProviderName() string           { return f.name }
func (f *fakeNotifier) Priority() int                  { return f.priority }
func (f *fakeNotifier) Available(context.Context) bool { return f.available }

func (f *fakeNotifier) send(in providers.SendInput) (providers.SendResult, error) {
	f.calls++
	f.gotBody = in.Message
	if f.fail {
		return providers.SendResult{}, errors.New("boom")
	}
	return providers.SendResult{MessageID: f.name + "-msg-1", Provider: f.name}, nil
}

func (f *fakeNotifier) SendEmail(_ context.Context, in providers.SendInput) (providers.SendResult, error) {
	return f.send(in)
}

func (f *fakeNotifier) SendSMS(_ context.Context, in providers.SendInput) (providers.SendResult, error) {
	return f.send(in)
}

func TestSendFallsThroughOnFailure(t *testing.T) {
	t.Parallel()

	primary := &fakeNotifier{name: "primary", priority: 1, available: true, fail: true}
	offline := &fakeNotifier{name: "offline", priority: 2}
	backup := &fakeNotifier{name: "backup", priority: 3, available: true}
	svc := notify.NewService([]providers.EmailNotifier{backup, primary, offline}, nil, nil)

	out := svc.Send(context.Background(), providers.SendInput{
		To: "user@example.com", Message: "delayed", DeliveryID: "d1",
	}, freight.ChannelEmail)

	require.True(t, out.Sent())
	require.Equal(t, "backup", out.Provider)
	require.Equal(t, "backup-msg-1", out.MessageID)
	require.Equal(t, 1, primary.calls, "primary tried first")
	require.Equal(t, 0, offline.calls, "unavailable adapter skipped")
}

func TestSendAggregatesTotalFailure(t *testing.T) {
	t.Parallel()

	a := &fakeNotifier{name: "a", priority: 1, available: true, fail: true}
	b := &fakeNotifier{name: "b", priority: 2, available: true, fail: true}
	svc := notify.NewService([]providers.EmailNotifier{a, b}, nil, nil)

	out := svc.Send(context.Background(), providers.SendInput{
		To: "user@example.com", Message: "delayed", DeliveryID: "d1",
	}, freight.ChannelEmail)

	require.Equal(t, freight.NotificationFailed, out.Status)
	require.Contains(t, out.Error, "a: boom")
	require.Contains(t, out.Error, "b: boom")
}

func TestSendBlacklistShortCircuits(t *testing.T) {
	t.Parallel()

	a := &fakeNotifier{name: "a", priority: 1, available: true}
	svc := notify.NewService([]providers.EmailNotifier{a}, nil, []string{"Blocked@Example.com"})

	out := svc.Send(context.Background(), providers.SendInput{
		To: "blocked@example.com", Message: "delayed", DeliveryID: "d1",
	}, freight.ChannelEmail)

	require.Equal(t, freight.NotificationSkipped, out.Status)
	require.Contains(t, out.Error, "blacklisted")
	require.Equal(t, 0, a.calls, "no adapter may be tried for a blacklisted recipient")
}

func TestSendBoth(t *testing.T) {
	t.Parallel()

	email := &fakeNotifier{name: "email", priority: 1, available: true}
	sms := &fakeNotifier{name: "sms", priority: 1, available: true}
	svc := notify.NewService([]providers.EmailNotifier{email}, []providers.SMSNotifier{sms}, nil)

	in := providers.SendInput{Message: "line one\nline two\nline three", DeliveryID: "d1"}
	emailIn, smsIn := in, in
	emailIn.To = "user@example.com"
	smsIn.To = "+35699000000"

	eOut, sOut := svc.SendBoth(context.Background(), emailIn, smsIn)
	require.True(t, eOut.Sent())
	require.True(t, sOut.Sent())
	require.Equal(t, freight.ChannelEmail, eOut.Channel)
	require.Equal(t, freight.ChannelSMS, sOut.Channel)

	// The SMS adapter must receive the formatted body, the email adapter the
	// original one.
	require.Equal(t, "line one\nline two\nline three", email.gotBody)
	require.Equal(t, "Delivery d1 Update: line one line two", sms.gotBody)
}

func TestFormatSMS(t *testing.T) {
	t.Parallel()

	short := notify.FormatSMS("d1", "Running late.\n\nNew ETA 16:30.")
	require.Equal(t, "Delivery d1 Update: Running late. New ETA 16:30.", short)
	require.LessOrEqual(t, len(short), 160)

	long := notify.FormatSMS("d1", strings.Repeat("delay ", 60))
	require.Equal(t, 160, len([]rune(long)))
	require.True(t, strings.HasSuffix(long, "..."))
	require.True(t, strings.HasPrefix(long, "Delivery d1 Update: "))
}
