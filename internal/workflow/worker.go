package workflow

import (
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// NewWorker builds the task-queue worker with both workflow definitions and
// the activity set registered. The caller owns its lifecycle.
func NewWorker(tc client.Client, taskQueue string, a *Activities) worker.Worker {
	w := worker.New(tc, taskQueue, worker.Options{})
	w.RegisterWorkflow(DelayNotificationWorkflow)
	w.RegisterWorkflow(RecurringTrafficCheckWorkflow)
	w.RegisterActivity(a)
	return w
}
