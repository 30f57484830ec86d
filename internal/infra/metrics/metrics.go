// Package metrics registers the service's prometheus counters. Everything is
// registered once on the default registry; the /metrics endpoint is mounted by
// the web server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsSent counts successfully delivered notifications per channel.
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freight_notifications_sent_total",
		Help: "Notifications delivered successfully, by channel.",
	}, []string{"channel"})

	// NotificationsFailed counts notifications that failed every adapter.
	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freight_notifications_failed_total",
		Help: "Notifications that exhausted all adapters, by channel.",
	}, []string{"channel"})

	// NotificationsSkipped counts notifications suppressed before any send
	// attempt (blacklisted recipient).
	NotificationsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freight_notifications_skipped_total",
		Help: "Notifications suppressed before dispatch, by channel.",
	}, []string{"channel"})

	// WorkflowsStarted counts workflow starts accepted by the engine, by kind.
	WorkflowsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freight_workflows_started_total",
		Help: "Workflow executions started, by kind.",
	}, []string{"kind"})

	// SweepRoutesChecked counts routes visited by the fleet sweep.
	SweepRoutesChecked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freight_sweep_routes_checked_total",
		Help: "Routes visited by the fleet sweep.",
	})

	// SweepErrors counts per-route failures during fleet sweeps.
	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freight_sweep_route_errors_total",
		Help: "Per-route failures during fleet sweeps.",
	})
)
