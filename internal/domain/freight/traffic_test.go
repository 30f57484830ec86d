package freight_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
)

func TestDelayMinutes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		normal    int
		current   int
		wantRound int
		wantCeil  int
	}{
		{name: "noDelay", normal: 600, current: 600, wantRound: 0, wantCeil: 0},
		{name: "fasterThanNormal", normal: 600, current: 500, wantRound: 0, wantCeil: 0},
		{name: "tenSecondsOver", normal: 600, current: 610, wantRound: 0, wantCeil: 1},
		{name: "halfMinuteRoundsUp", normal: 600, current: 630, wantRound: 1, wantCeil: 1},
		{name: "exactMinutes", normal: 600, current: 900, wantRound: 5, wantCeil: 5},
		{name: "largeDelay", normal: 1800, current: 3930, wantRound: 36, wantCeil: 36},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.wantRound, freight.DelayMinutesRound(tc.normal, tc.current))
			require.Equal(t, tc.wantCeil, freight.DelayMinutesCeil(tc.normal, tc.current))
		})
	}
}

func TestRouteDelayMinutes(t *testing.T) {
	t.Parallel()

	r := &freight.Route{NormalDurationSeconds: 600, CurrentDurationSeconds: 610}
	require.Equal(t, 1, r.DelayMinutes())

	// Unknown current duration means no delay can be derived.
	r = &freight.Route{NormalDurationSeconds: 600}
	require.Equal(t, 0, r.DelayMinutes())
}

func TestClassifyCondition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		delay int
		want  freight.TrafficCondition
	}{
		{0, freight.ConditionLight},
		{5, freight.ConditionLight},
		{6, freight.ConditionModerate},
		{15, freight.ConditionModerate},
		{16, freight.ConditionHeavy},
		{30, freight.ConditionHeavy},
		{31, freight.ConditionSevere},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, freight.ClassifyCondition(tc.delay), "delay=%d", tc.delay)
	}
}

func TestClassifySeverityAndIncident(t *testing.T) {
	t.Parallel()

	require.Equal(t, freight.SeverityMinor, freight.ClassifySeverity(15))
	require.Equal(t, freight.SeverityModerate, freight.ClassifySeverity(16))
	require.Equal(t, freight.SeverityMajor, freight.ClassifySeverity(60))
	require.Equal(t, freight.SeveritySevere, freight.ClassifySeverity(61))

	require.Equal(t, freight.IncidentCongestion, freight.ClassifyIncident(45))
	require.Equal(t, freight.IncidentAccident, freight.ClassifyIncident(46))
}

func TestSnapshotFromResult(t *testing.T) {
	t.Parallel()

	route := &freight.Route{
		ID:                 "r1",
		OriginAddress:      "Valletta",
		DestinationAddress: "Mdina",
		OriginCoords:       freight.Coords{Lat: 35.8989, Lng: 14.5146},
		DestinationCoords:  freight.Coords{Lat: 35.8860, Lng: 14.4030},
	}
	res := freight.NewTrafficResult(12000, 1800, 4800, "test")

	snap := freight.SnapshotFromResult(route, res)
	require.Equal(t, "r1", snap.RouteID)
	require.Equal(t, 50, snap.DelayMinutes)
	require.Equal(t, freight.SeverityMajor, snap.Severity)
	require.Equal(t, freight.IncidentAccident, snap.IncidentType)
	require.NotNil(t, snap.IncidentLocation)
	require.InDelta(t, 35.89245, snap.IncidentLocation.Lat, 1e-9)
	require.Contains(t, snap.Description, "50 min delay")
	require.Contains(t, snap.AffectedArea, "Valletta")
}

func TestApplyResult(t *testing.T) {
	t.Parallel()

	route := &freight.Route{ID: "r1"}
	res := freight.NewTrafficResult(5000, 600, 1200, "test")
	route.ApplyResult(res)

	require.Equal(t, 5000, route.DistanceMeters)
	require.Equal(t, 600, route.NormalDurationSeconds)
	require.Equal(t, 1200, route.CurrentDurationSeconds)
	require.Equal(t, freight.ConditionModerate, route.TrafficCondition)
}
