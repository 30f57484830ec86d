package freight

import "fmt"

// Delay classification boundaries, in minutes. Traffic conditions come from
// the provider contract; snapshot severity uses its own, coarser scale.
const (
	conditionLightMax    = 5
	conditionModerateMax = 15
	conditionHeavyMax    = 30

	severityMinorMax    = 15
	severityModerateMax = 30
	severityMajorMax    = 60

	incidentAccidentMin = 45
)

// TrafficResult is the normalized answer of a traffic provider for one route.
type TrafficResult struct {
	DistanceMeters           int              `json:"distance_meters"`
	NormalDurationSeconds    int              `json:"normal_duration_seconds"`
	EstimatedDurationSeconds int              `json:"estimated_duration_seconds"`
	DelayMinutes             int              `json:"delay_minutes"`
	Condition                TrafficCondition `json:"traffic_condition"`
	ProviderName             string           `json:"provider_name"`
}

// NewTrafficResult derives the delay and condition from raw provider figures.
// Delay uses round-to-nearest per the provider contract.
func NewTrafficResult(distanceMeters, normalSec, estimatedSec int, provider string) TrafficResult {
	delay := DelayMinutesRound(normalSec, estimatedSec)
	return TrafficResult{
		DistanceMeters:           distanceMeters,
		NormalDurationSeconds:    normalSec,
		EstimatedDurationSeconds: estimatedSec,
		DelayMinutes:             delay,
		Condition:                ClassifyCondition(delay),
		ProviderName:             provider,
	}
}

// DelayMinutesRound converts a duration difference to whole minutes,
// rounding to nearest and clamping at zero.
func DelayMinutesRound(normalSec, estimatedSec int) int {
	diff := estimatedSec - normalSec
	if diff <= 0 {
		return 0
	}
	return (diff + 30) / 60
}

// DelayMinutesCeil converts a duration difference to whole minutes, rounding
// partial minutes up and clamping at zero. Used when deriving the delay from
// stored route durations.
func DelayMinutesCeil(normalSec, currentSec int) int {
	diff := currentSec - normalSec
	if diff <= 0 {
		return 0
	}
	return (diff + 59) / 60
}

// ClassifyCondition maps a delay to the provider-contract traffic condition.
func ClassifyCondition(delayMinutes int) TrafficCondition {
	switch {
	case delayMinutes <= conditionLightMax:
		return ConditionLight
	case delayMinutes <= conditionModerateMax:
		return ConditionModerate
	case delayMinutes <= conditionHeavyMax:
		return ConditionHeavy
	default:
		return ConditionSevere
	}
}

// ClassifySeverity grades a snapshot by delay.
func ClassifySeverity(delayMinutes int) Severity {
	switch {
	case delayMinutes <= severityMinorMax:
		return SeverityMinor
	case delayMinutes <= severityModerateMax:
		return SeverityModerate
	case delayMinutes <= severityMajorMax:
		return SeverityMajor
	default:
		return SeveritySevere
	}
}

// ClassifyIncident labels the probable cause: long delays are assumed to be
// accidents, everything else plain congestion.
func ClassifyIncident(delayMinutes int) IncidentType {
	if delayMinutes > incidentAccidentMin {
		return IncidentAccident
	}
	return IncidentCongestion
}

// SnapshotFromResult builds a snapshot entry for a route from a traffic
// result. The incident marker is placed at the route midpoint; description
// and affected area are human-readable summaries for the UI.
func SnapshotFromResult(route *Route, res TrafficResult) TrafficSnapshot {
	var loc *Coords
	if route.HasCoords() {
		mid := Midpoint(route.OriginCoords, route.DestinationCoords)
		loc = &mid
	}
	return TrafficSnapshot{
		RouteID:          route.ID,
		Condition:        res.Condition,
		DelayMinutes:     res.DelayMinutes,
		DurationSeconds:  res.EstimatedDurationSeconds,
		Severity:         ClassifySeverity(res.DelayMinutes),
		IncidentType:     ClassifyIncident(res.DelayMinutes),
		Description:      fmt.Sprintf("%s traffic, %d min delay", res.Condition, res.DelayMinutes),
		AffectedArea:     fmt.Sprintf("%s -> %s", route.OriginAddress, route.DestinationAddress),
		IncidentLocation: loc,
	}
}

// ApplyResult writes a traffic result onto the route. The first successful
// fetch is authoritative for distance and normal duration; later fetches keep
// refreshing them, matching the "route row is the source of truth" policy.
func (r *Route) ApplyResult(res TrafficResult) {
	r.DistanceMeters = res.DistanceMeters
	r.NormalDurationSeconds = res.NormalDurationSeconds
	r.CurrentDurationSeconds = res.EstimatedDurationSeconds
	r.TrafficCondition = res.Condition
}
