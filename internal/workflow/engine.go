package workflow

import (
	"context"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/logger"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/metrics"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/repo"
)

// Kind selects which workflow definition a delivery runs under.
type Kind string

const (
	KindDelayNotification Kind = "delay-notification"
	KindRecurringCheck    Kind = "recurring-check"
)

// WorkflowID derives the deterministic workflow id for a delivery. One
// delivery maps to at most one live run per kind.
func WorkflowID(kind Kind, deliveryID string) string {
	return fmt.Sprintf("%s-%s", kind, deliveryID)
}

// Engine starts, cancels and describes workflow runs. It is the only place
// that talks to the Temporal frontend; HTTP handlers and the fleet sweep go
// through it.
type Engine struct {
	tc          client.Client
	store       repo.Store
	taskQueue   string
	cutoffHours int
}

// NewEngine wraps an established Temporal client.
func NewEngine(tc client.Client, store repo.Store, taskQueue string, cutoffHours int) *Engine {
	if cutoffHours <= 0 {
		cutoffHours = 1
	}
	return &Engine{tc: tc, store: store, taskQueue: taskQueue, cutoffHours: cutoffHours}
}

// StartResult identifies the run the engine started or attached to.
type StartResult struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	Kind       Kind   `json:"kind"`
}

// StartForDelivery launches the workflow matching the delivery's
// configuration: the recurring loop when recurring checks are enabled, the
// one-shot pipeline otherwise. The deterministic id plus the use-existing
// conflict policy makes the call idempotent while a run is live; once the
// previous run finished, the duplicate-allowing reuse policy lets the same id
// start again.
func (e *Engine) StartForDelivery(ctx context.Context, d *freight.Delivery) (StartResult, error) {
	kind := KindDelayNotification
	if d.EnableRecurringChecks {
		kind = KindRecurringCheck
	}

	opts := client.StartWorkflowOptions{
		ID:                       WorkflowID(kind, d.ID),
		TaskQueue:                e.taskQueue,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}

	var (
		run client.WorkflowRun
		err error
	)
	if kind == KindRecurringCheck {
		run, err = e.tc.ExecuteWorkflow(ctx, opts, RecurringTrafficCheckWorkflow,
			RecurringInput{DeliveryID: d.ID, CutoffHours: e.cutoffHours})
	} else {
		run, err = e.tc.ExecuteWorkflow(ctx, opts, DelayNotificationWorkflow,
			DelayInput{DeliveryID: d.ID})
	}
	if err != nil {
		return StartResult{}, freight.WrapE(err, freight.KindInfrastructure,
			"start %s workflow for delivery %s", kind, d.ID)
	}

	metrics.WorkflowsStarted.WithLabelValues(string(kind)).Inc()
	logger.Info("workflow started",
		zap.String("workflow_id", run.GetID()), zap.String("run_id", run.GetRunID()),
		zap.String("kind", string(kind)), zap.String("delivery_id", d.ID))
	return StartResult{WorkflowID: run.GetID(), RunID: run.GetRunID(), Kind: kind}, nil
}

// StatusResult combines the engine's live view of a run with the persisted
// execution record. Source says which side answered.
type StatusResult struct {
	WorkflowID string                     `json:"workflow_id"`
	RunID      string                     `json:"run_id,omitempty"`
	Status     freight.WorkflowStatus     `json:"status"`
	Source     string                     `json:"source"`
	Execution  *freight.WorkflowExecution `json:"execution,omitempty"`
}

// Status describes a workflow by id. When the engine no longer knows the run
// (retention elapsed, engine unreachable) the persisted execution record
// answers instead.
func (e *Engine) Status(ctx context.Context, workflowID string) (StatusResult, error) {
	desc, err := e.tc.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		exec, repoErr := e.store.LatestExecutionByWorkflowID(ctx, workflowID)
		if repoErr != nil {
			if freight.IsNotFound(repoErr) {
				return StatusResult{}, freight.E(freight.KindNotFound,
					"workflow %s not known to engine or repository", workflowID)
			}
			return StatusResult{}, repoErr
		}
		return StatusResult{
			WorkflowID: workflowID,
			RunID:      exec.RunID,
			Status:     exec.Status,
			Source:     "repository",
			Execution:  exec,
		}, nil
	}

	info := desc.GetWorkflowExecutionInfo()
	out := StatusResult{
		WorkflowID: workflowID,
		Status:     mapEngineStatus(info.GetStatus()),
		Source:     "engine",
	}
	if exec := info.GetExecution(); exec != nil {
		out.RunID = exec.GetRunId()
	}
	if row, repoErr := e.store.LatestExecutionByWorkflowID(ctx, workflowID); repoErr == nil {
		out.Execution = row
	}
	return out, nil
}

// Cancel stops a run. The graceful path requests cooperative cancellation and
// lets the workflow write its own terminal record; force terminates
// immediately, so the engine updates the persisted record itself.
func (e *Engine) Cancel(ctx context.Context, workflowID string, force bool) error {
	if !force {
		if err := e.tc.CancelWorkflow(ctx, workflowID, ""); err != nil {
			return freight.WrapE(err, freight.KindInfrastructure, "cancel workflow %s", workflowID)
		}
		logger.Info("workflow cancellation requested", zap.String("workflow_id", workflowID))
		return nil
	}

	if err := e.tc.TerminateWorkflow(ctx, workflowID, "", "force cancel requested"); err != nil {
		return freight.WrapE(err, freight.KindInfrastructure, "terminate workflow %s", workflowID)
	}
	logger.Warn("workflow terminated", zap.String("workflow_id", workflowID))

	exec, err := e.store.LatestExecutionByWorkflowID(ctx, workflowID)
	if err != nil {
		if freight.IsNotFound(err) {
			return nil
		}
		return err
	}
	if exec.Status == freight.WorkflowRunning {
		exec.Status = freight.WorkflowCancelled
		exec.Error = "terminated by operator"
		now := time.Now().UTC()
		exec.CompletedAt = &now
		if err := e.store.UpdateWorkflowExecution(ctx, exec); err != nil {
			logger.Error("could not record termination",
				zap.String("workflow_id", workflowID), zap.Error(err))
		}
	}
	return nil
}

func mapEngineStatus(s enumspb.WorkflowExecutionStatus) freight.WorkflowStatus {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING,
		enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return freight.WorkflowRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return freight.WorkflowCompleted
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return freight.WorkflowCancelled
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return freight.WorkflowTimedOut
	default:
		return freight.WorkflowFailed
	}
}
