// Package freight holds the domain model of the delay-notification service:
// customers, routes, deliveries with their status machine, thresholds,
// traffic snapshots, notifications and workflow execution records, plus the
// traffic arithmetic shared by the providers, the pipeline and the fleet
// sweep. The package has no I/O; persistence lives in internal/repo.
package freight

import (
	"time"
)

// TrafficCondition describes the live traffic on a route.
type TrafficCondition string

const (
	ConditionLight    TrafficCondition = "light"
	ConditionModerate TrafficCondition = "moderate"
	ConditionHeavy    TrafficCondition = "heavy"
	ConditionSevere   TrafficCondition = "severe"
)

// DeliveryStatus is the lifecycle state of a delivery.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusInTransit DeliveryStatus = "in_transit"
	StatusDelayed   DeliveryStatus = "delayed"
	StatusDelivered DeliveryStatus = "delivered"
	StatusCancelled DeliveryStatus = "cancelled"
	StatusFailed    DeliveryStatus = "failed"
)

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// NotificationStatus is the outcome recorded for a single notification row.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationSkipped NotificationStatus = "skipped"
)

// Severity grades a traffic snapshot.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeveritySevere   Severity = "severe"
)

// IncidentType labels the probable cause recorded on a snapshot.
type IncidentType string

const (
	IncidentCongestion IncidentType = "congestion"
	IncidentAccident   IncidentType = "accident"
)

// WorkflowStatus is the lifecycle state of a workflow execution record.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
	WorkflowTimedOut  WorkflowStatus = "timed_out"
)

// Coords is a WGS84 point. Lat/lng is the canonical encoding at rest.
type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the point is unset. (0,0) is in the Gulf of Guinea
// and never a real freight endpoint, so the zero value doubles as "missing".
func (c Coords) IsZero() bool { return c.Lat == 0 && c.Lng == 0 }

// Midpoint returns the arithmetic midpoint between two coordinates. Good
// enough for placing an incident marker; not a geodesic.
func Midpoint(a, b Coords) Coords {
	return Coords{Lat: (a.Lat + b.Lat) / 2, Lng: (a.Lng + b.Lng) / 2}
}

// Customer is created on first delivery mention and never auto-deleted.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Route is created together with a delivery but outlives it. The traffic
// fields are mutated both by workflow activities and by the fleet sweep;
// last-writer-wins is accepted there.
type Route struct {
	ID                 string `json:"id"`
	OriginAddress      string `json:"origin_address"`
	OriginCoords       Coords `json:"origin_coords"`
	DestinationAddress string `json:"destination_address"`
	DestinationCoords  Coords `json:"destination_coords"`

	DistanceMeters         int              `json:"distance_meters"`
	NormalDurationSeconds  int              `json:"normal_duration_seconds"`
	CurrentDurationSeconds int              `json:"current_duration_seconds,omitempty"`
	TrafficCondition       TrafficCondition `json:"traffic_condition,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCoords reports whether both endpoints are geocoded. Routes without
// coordinates are skipped by the fleet sweep.
func (r *Route) HasCoords() bool {
	return !r.OriginCoords.IsZero() && !r.DestinationCoords.IsZero()
}

// DelayMinutes derives the current delay from the stored durations,
// rounding partial minutes up. Zero when current duration is unknown.
func (r *Route) DelayMinutes() int {
	if r.CurrentDurationSeconds == 0 || r.NormalDurationSeconds == 0 {
		return 0
	}
	return DelayMinutesCeil(r.NormalDurationSeconds, r.CurrentDurationSeconds)
}

// Delivery is a tracked shipment. The zero MaxChecks is meaningful, so -1
// (not 0) encodes "unlimited".
type Delivery struct {
	ID             string `json:"id"`
	TrackingNumber string `json:"tracking_number"`
	CustomerID     string `json:"customer_id"`
	RouteID        string `json:"route_id"`

	Status            DeliveryStatus `json:"status"`
	ScheduledDelivery time.Time      `json:"scheduled_delivery"`
	ActualDelivery    *time.Time     `json:"actual_delivery,omitempty"`

	DelayThresholdMinutes int  `json:"delay_threshold_minutes"`
	AutoCheckTraffic      bool `json:"auto_check_traffic"`

	EnableRecurringChecks bool `json:"enable_recurring_checks"`
	CheckIntervalMinutes  int  `json:"check_interval_minutes"`
	MaxChecks             int  `json:"max_checks"`
	ChecksPerformed       int  `json:"checks_performed"`

	MinDelayChangeThreshold      int     `json:"min_delay_change_threshold"`
	MinHoursBetweenNotifications float64 `json:"min_hours_between_notifications"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Threshold pairs a minimum delay with the channels to notify on. Exactly one
// threshold is the system default at any time; the repository enforces it.
type Threshold struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DelayMinutes int       `json:"delay_minutes"`
	Channels     []Channel `json:"notification_channels"`
	IsDefault    bool      `json:"is_default"`
	IsSystem     bool      `json:"is_system"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TrafficSnapshot is one entry of the append-only per-route traffic log.
type TrafficSnapshot struct {
	ID               string           `json:"id"`
	RouteID          string           `json:"route_id"`
	Condition        TrafficCondition `json:"traffic_condition"`
	DelayMinutes     int              `json:"delay_minutes"`
	DurationSeconds  int              `json:"duration_seconds"`
	Severity         Severity         `json:"severity"`
	IncidentType     IncidentType     `json:"incident_type"`
	Description      string           `json:"description"`
	AffectedArea     string           `json:"affected_area"`
	IncidentLocation *Coords          `json:"incident_location,omitempty"`
	SnapshotAt       time.Time        `json:"snapshot_at"`
}

// Notification records one delivery attempt on one channel. Rows are
// insert-only; the dedup gates read the latest sent row per delivery.
type Notification struct {
	ID                 string             `json:"id"`
	DeliveryID         string             `json:"delivery_id"`
	Channel            Channel            `json:"channel"`
	Recipient          string             `json:"recipient"`
	Message            string             `json:"message"`
	Status             NotificationStatus `json:"status"`
	ExternalID         string             `json:"external_id,omitempty"`
	SentAt             *time.Time         `json:"sent_at,omitempty"`
	DelayMinutesAtSend int                `json:"delay_minutes_at_send"`
	ErrorMessage       string             `json:"error_message,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// StepState tracks one pipeline step inside a workflow execution record.
type StepState struct {
	Started   bool `json:"started"`
	Completed bool `json:"completed"`
}

// WorkflowSteps mirrors the four pipeline steps so UI polling can show
// progress of a run.
type WorkflowSteps struct {
	TrafficCheck         StepState `json:"trafficCheck"`
	DelayEvaluation      StepState `json:"delayEvaluation"`
	MessageGeneration    StepState `json:"messageGeneration"`
	NotificationDelivery StepState `json:"notificationDelivery"`
}

// WorkflowExecution is the persisted record of one engine run. Unique key:
// (WorkflowID, RunID). It outlives the engine's own retention, so terminal
// workflows stay queryable.
type WorkflowExecution struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	RunID       string         `json:"run_id"`
	DeliveryID  string         `json:"delivery_id"`
	Status      WorkflowStatus `json:"status"`
	Steps       WorkflowSteps  `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}
