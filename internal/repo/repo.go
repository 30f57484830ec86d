// Package repo is the data-access layer. repo.go states the contract the rest
// of the service consumes; bolt.go implements it on bbolt. Every method
// returns (value, error) with the error carrying a freight.Kind, never a bare
// storage error.
package repo

import (
	"context"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
)

// Customers is the customer contract. Emails are unique; CreateCustomer
// rejects a duplicate email with a domain error.
type Customers interface {
	CreateCustomer(ctx context.Context, c *freight.Customer) error
	GetCustomer(ctx context.Context, id string) (*freight.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*freight.Customer, error)
	UpdateCustomer(ctx context.Context, c *freight.Customer) error
	ListCustomers(ctx context.Context) ([]freight.Customer, error)
}

// Routes is the route contract. ListRoutes pages from the beginning; limit<=0
// means no cap.
type Routes interface {
	CreateRoute(ctx context.Context, r *freight.Route) error
	GetRoute(ctx context.Context, id string) (*freight.Route, error)
	UpdateRoute(ctx context.Context, r *freight.Route) error
	ListRoutes(ctx context.Context, limit int) ([]freight.Route, error)
}

// Deliveries is the delivery contract. Status mutations go through
// TransitionDelivery / MarkDeliveryDelayed, which enforce the status machine
// inside the storage transaction (conditional update).
type Deliveries interface {
	CreateDelivery(ctx context.Context, d *freight.Delivery) error
	GetDelivery(ctx context.Context, id string) (*freight.Delivery, error)
	UpdateDelivery(ctx context.Context, d *freight.Delivery) error
	ListDeliveries(ctx context.Context) ([]freight.Delivery, error)
	ListDeliveriesByStatus(ctx context.Context, status freight.DeliveryStatus) ([]freight.Delivery, error)
	TransitionDelivery(ctx context.Context, id string, to freight.DeliveryStatus) (*freight.Delivery, error)
	MarkDeliveryDelayed(ctx context.Context, id string) (*freight.Delivery, error)
	IncrementChecks(ctx context.Context, id string) (*freight.Delivery, error)
}

// Thresholds is the threshold contract. Exactly one threshold is the default
// at any time; SetDefaultThreshold clears the previous default atomically.
// Deleting the default or a system threshold is rejected.
type Thresholds interface {
	CreateThreshold(ctx context.Context, t *freight.Threshold) error
	GetThreshold(ctx context.Context, id string) (*freight.Threshold, error)
	ListThresholds(ctx context.Context) ([]freight.Threshold, error)
	UpdateThreshold(ctx context.Context, t *freight.Threshold) error
	DeleteThreshold(ctx context.Context, id string) error
	DefaultThreshold(ctx context.Context) (*freight.Threshold, error)
	SetDefaultThreshold(ctx context.Context, id string) error
}

// Snapshots is the append-only traffic log contract.
type Snapshots interface {
	CreateSnapshot(ctx context.Context, s *freight.TrafficSnapshot) error
	ListSnapshotsByRoute(ctx context.Context, routeID string, limit int) ([]freight.TrafficSnapshot, error)
}

// Notifications is the notification log contract. Rows are insert-only.
// LatestSentNotification feeds the cooldown/delta dedup gates.
type Notifications interface {
	CreateNotification(ctx context.Context, n *freight.Notification) error
	ListNotificationsByDelivery(ctx context.Context, deliveryID string) ([]freight.Notification, error)
	LatestSentNotification(ctx context.Context, deliveryID string) (*freight.Notification, error)
}

// WorkflowExecutions is the engine-run bookkeeping contract.
type WorkflowExecutions interface {
	CreateWorkflowExecution(ctx context.Context, e *freight.WorkflowExecution) error
	UpdateWorkflowExecution(ctx context.Context, e *freight.WorkflowExecution) error
	LatestExecutionByWorkflowID(ctx context.Context, workflowID string) (*freight.WorkflowExecution, error)
	ListExecutionsByDelivery(ctx context.Context, deliveryID string) ([]freight.WorkflowExecution, error)
}

// Store aggregates the per-entity contracts. The process holds exactly one
// Store, built at startup and closed on teardown.
type Store interface {
	Customers
	Routes
	Deliveries
	Thresholds
	Snapshots
	Notifications
	WorkflowExecutions

	Close() error
}
