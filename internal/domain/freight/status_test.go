package freight_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
)

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	allowed := []struct {
		from, to freight.DeliveryStatus
	}{
		{freight.StatusPending, freight.StatusInTransit},
		{freight.StatusPending, freight.StatusCancelled},
		{freight.StatusInTransit, freight.StatusDelayed},
		{freight.StatusInTransit, freight.StatusDelivered},
		{freight.StatusInTransit, freight.StatusFailed},
		{freight.StatusDelayed, freight.StatusDelivered},
		{freight.StatusDelayed, freight.StatusFailed},
		{freight.StatusDelayed, freight.StatusCancelled},
	}
	for _, tc := range allowed {
		d := &freight.Delivery{ID: "d1", Status: tc.from}
		require.NoError(t, d.TransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
		require.Equal(t, tc.to, d.Status)
	}

	rejected := []struct {
		from, to freight.DeliveryStatus
	}{
		{freight.StatusPending, freight.StatusDelivered},
		{freight.StatusPending, freight.StatusFailed},
		{freight.StatusInTransit, freight.StatusCancelled},
		{freight.StatusInTransit, freight.StatusPending},
		{freight.StatusDelivered, freight.StatusPending},
		{freight.StatusDelivered, freight.StatusDelayed},
		{freight.StatusCancelled, freight.StatusInTransit},
		{freight.StatusFailed, freight.StatusDelivered},
	}
	for _, tc := range rejected {
		d := &freight.Delivery{ID: "d1", Status: tc.from}
		err := d.TransitionTo(tc.to)
		require.Error(t, err, "%s -> %s", tc.from, tc.to)
		require.Equal(t, freight.KindDomain, freight.KindOf(err))
		require.Equal(t, tc.from, d.Status, "state must stay unchanged on rejection")
	}
}

func TestTransitionToUnknownStatus(t *testing.T) {
	t.Parallel()

	d := &freight.Delivery{ID: "d1", Status: freight.StatusPending}
	err := d.TransitionTo("teleported")
	require.Error(t, err)
	require.Equal(t, freight.KindValidation, freight.KindOf(err))
	require.Equal(t, freight.StatusPending, d.Status)
}

func TestMarkDelayed(t *testing.T) {
	t.Parallel()

	for _, from := range []freight.DeliveryStatus{freight.StatusPending, freight.StatusInTransit} {
		d := &freight.Delivery{ID: "d1", Status: from}
		require.NoError(t, d.MarkDelayed())
		require.Equal(t, freight.StatusDelayed, d.Status)
	}

	for _, from := range []freight.DeliveryStatus{
		freight.StatusDelayed, freight.StatusDelivered, freight.StatusCancelled, freight.StatusFailed,
	} {
		d := &freight.Delivery{ID: "d1", Status: from}
		err := d.MarkDelayed()
		require.Error(t, err, "from %s", from)
		require.Equal(t, freight.KindDomain, freight.KindOf(err))
		require.Equal(t, from, d.Status)
	}
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	err := freight.E(freight.KindNotFound, "delivery %s", "d1")
	require.True(t, freight.IsNotFound(err))
	require.Equal(t, "not_found: delivery d1", err.Error())

	wrapped := freight.WrapE(err, freight.KindInfrastructure, "load delivery")
	// The outermost kind wins; the cause stays reachable through Unwrap.
	require.Equal(t, freight.KindInfrastructure, freight.KindOf(wrapped))

	require.Nil(t, freight.WrapE(nil, freight.KindDomain, "ignored"))
	require.Equal(t, freight.KindInfrastructure, freight.KindOf(freight.WrapE(freight.E(freight.KindDomain, "x"), freight.KindInfrastructure, "y")))
}
