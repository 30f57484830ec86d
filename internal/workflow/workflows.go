package workflow

import (
	"time"

	"github.com/go-faster/errors"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/providers"
)

// QueryStatus is the query name exposed by both workflows for progress
// polling.
const QueryStatus = "status"

// maxConsecutiveFailures bounds how many pipeline iterations in a row may
// fail before the recurring workflow gives up. Each iteration already went
// through the activity retry policy.
const maxConsecutiveFailures = 3

// Stop reasons reported by the recurring workflow.
const (
	StopMaxChecks        = "max_checks_reached"
	StopCutoff           = "cutoff_reached"
	StopDeliveryTerminal = "delivery_terminal"
)

func defaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
			NonRetryableErrorTypes: []string{
				string(freight.KindValidation),
				string(freight.KindNotFound),
				string(freight.KindDomain),
				string(freight.KindUnauthorized),
			},
		},
	}
}

// DelayInput starts a one-shot delay notification run.
type DelayInput struct {
	DeliveryID string `json:"delivery_id"`
}

// RecurringInput starts the periodic traffic-check loop for a delivery.
type RecurringInput struct {
	DeliveryID  string `json:"delivery_id"`
	CutoffHours int    `json:"cutoff_hours"`
}

// PipelineResult is the outcome of one pipeline pass.
type PipelineResult struct {
	DeliveryID   string                `json:"delivery_id"`
	Notified     bool                  `json:"notified"`
	Reason       string                `json:"reason"`
	DelayMinutes int                   `json:"delay_minutes"`
	ChannelsSent int                   `json:"channels_sent"`
	Steps        freight.WorkflowSteps `json:"steps"`
}

// RecurringResult is the final report of a recurring-check loop.
type RecurringResult struct {
	DeliveryID      string `json:"delivery_id"`
	ChecksPerformed int    `json:"checks_performed"`
	Notifications   int    `json:"notifications"`
	StopReason      string `json:"stop_reason"`
}

// RunStatus is the answer to the "status" query.
type RunStatus struct {
	DeliveryID      string                `json:"delivery_id"`
	Steps           freight.WorkflowSteps `json:"steps"`
	Reason          string                `json:"reason,omitempty"`
	ChecksPerformed int                   `json:"checks_performed"`
}

// runState is the workflow-local progress record backing the status query and
// the persisted execution row. Workflow code is single-threaded, so no lock.
type runState struct {
	deliveryID string
	workflowID string
	runID      string
	steps      freight.WorkflowSteps
	reason     string
	checks     int
}

func newRunState(ctx workflow.Context, deliveryID string) *runState {
	info := workflow.GetInfo(ctx)
	return &runState{
		deliveryID: deliveryID,
		workflowID: info.WorkflowExecution.ID,
		runID:      info.WorkflowExecution.RunID,
	}
}

func (s *runState) status() RunStatus {
	return RunStatus{
		DeliveryID:      s.deliveryID,
		Steps:           s.steps,
		Reason:          s.reason,
		ChecksPerformed: s.checks,
	}
}

func (s *runState) resetSteps() {
	s.steps = freight.WorkflowSteps{}
	s.reason = ""
}

// DelayNotificationWorkflow runs the four-step pipeline exactly once for one
// delivery. Every run is recorded in the workflow_executions bucket; the run
// stops after step 2 when no notification is due and that still counts as a
// completed run.
func DelayNotificationWorkflow(ctx workflow.Context, in DelayInput) (PipelineResult, error) {
	var a *Activities
	state := newRunState(ctx, in.DeliveryID)
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (RunStatus, error) {
		return state.status(), nil
	}); err != nil {
		return PipelineResult{}, err
	}

	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())
	if err := recordRun(ctx, a, state); err != nil {
		return PipelineResult{}, err
	}

	out, err := runPipeline(ctx, a, state)
	finalizeRun(ctx, a, state, err)
	if err != nil {
		return PipelineResult{}, err
	}
	return out, nil
}

// RecurringTrafficCheckWorkflow reruns the pipeline on the delivery's check
// interval until max checks, the delivery cutoff, a terminal delivery status
// or cancellation ends the loop.
func RecurringTrafficCheckWorkflow(ctx workflow.Context, in RecurringInput) (RecurringResult, error) {
	var a *Activities
	state := newRunState(ctx, in.DeliveryID)
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (RunStatus, error) {
		return state.status(), nil
	}); err != nil {
		return RecurringResult{}, err
	}

	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())
	if err := recordRun(ctx, a, state); err != nil {
		return RecurringResult{}, err
	}

	out := RecurringResult{DeliveryID: in.DeliveryID}
	cutoff := time.Duration(in.CutoffHours) * time.Hour
	failures := 0
	log := workflow.GetLogger(ctx)

	for {
		var sched ScheduleInfo
		if err := workflow.ExecuteActivity(ctx, a.LoadSchedule, in.DeliveryID).Get(ctx, &sched); err != nil {
			finalizeRun(ctx, a, state, err)
			return out, err
		}
		out.ChecksPerformed = sched.ChecksPerformed
		state.checks = sched.ChecksPerformed

		switch {
		case sched.Terminal:
			out.StopReason = StopDeliveryTerminal
		case sched.MaxChecks >= 0 && sched.ChecksPerformed >= sched.MaxChecks:
			out.StopReason = StopMaxChecks
		case !sched.ScheduledDelivery.IsZero() &&
			!workflow.Now(ctx).Before(sched.ScheduledDelivery.Add(-cutoff)):
			out.StopReason = StopCutoff
		}
		if out.StopReason != "" {
			break
		}

		state.resetSteps()
		res, err := runPipeline(ctx, a, state)
		switch {
		case err == nil:
			failures = 0
			if res.Notified {
				out.Notifications++
			}
		case isCanceled(ctx, err):
			finalizeRun(ctx, a, state, err)
			return out, err
		default:
			failures++
			log.Error("pipeline iteration failed",
				"delivery_id", in.DeliveryID, "consecutive_failures", failures, "error", err)
			if failures >= maxConsecutiveFailures {
				finalizeRun(ctx, a, state, err)
				return out, err
			}
		}

		var checks int
		if err := workflow.ExecuteActivity(ctx, a.IncrementChecks, in.DeliveryID).Get(ctx, &checks); err != nil {
			if isCanceled(ctx, err) {
				finalizeRun(ctx, a, state, err)
				return out, err
			}
			var appErr *temporal.ApplicationError
			if errors.As(err, &appErr) && appErr.Type() == string(freight.KindDomain) {
				out.StopReason = StopMaxChecks
				break
			}
			finalizeRun(ctx, a, state, err)
			return out, err
		}
		out.ChecksPerformed = checks
		state.checks = checks

		// Observe the bound right after incrementing so the run does not
		// idle through one more interval after the final permitted check.
		if sched.MaxChecks >= 0 && checks >= sched.MaxChecks {
			out.StopReason = StopMaxChecks
			break
		}

		if err := workflow.Sleep(ctx, time.Duration(sched.IntervalMinutes)*time.Minute); err != nil {
			finalizeRun(ctx, a, state, err)
			return out, err
		}
	}

	state.reason = out.StopReason
	finalizeRun(ctx, a, state, nil)
	return out, nil
}

// runPipeline executes the four steps against one delivery and reports the
// decision. Both workflows share it; step progress lands in state and is
// flushed to the execution row after each step.
func runPipeline(ctx workflow.Context, a *Activities, state *runState) (PipelineResult, error) {
	out := PipelineResult{DeliveryID: state.deliveryID}

	state.steps.TrafficCheck.Started = true
	var tc CheckTrafficResult
	if err := workflow.ExecuteActivity(ctx, a.CheckTraffic,
		CheckTrafficInput{DeliveryID: state.deliveryID}).Get(ctx, &tc); err != nil {
		return out, err
	}
	state.steps.TrafficCheck.Completed = true
	saveProgress(ctx, a, state)
	out.DelayMinutes = tc.Traffic.DelayMinutes

	state.steps.DelayEvaluation.Started = true
	var ev EvaluateDelayResult
	if err := workflow.ExecuteActivity(ctx, a.EvaluateDelay,
		EvaluateDelayInput{DeliveryID: state.deliveryID, Traffic: tc.Traffic}).Get(ctx, &ev); err != nil {
		return out, err
	}
	state.steps.DelayEvaluation.Completed = true
	state.reason = ev.Reason
	out.Reason = ev.Reason
	saveProgress(ctx, a, state)
	if !ev.Notify {
		out.Steps = state.steps
		return out, nil
	}

	state.steps.MessageGeneration.Started = true
	var msg providers.Message
	if err := workflow.ExecuteActivity(ctx, a.GenerateMessage,
		GenerateMessageInput{DeliveryID: state.deliveryID, Traffic: tc.Traffic}).Get(ctx, &msg); err != nil {
		return out, err
	}
	state.steps.MessageGeneration.Completed = true
	saveProgress(ctx, a, state)

	state.steps.NotificationDelivery.Started = true
	var sent SendNotificationsResult
	if err := workflow.ExecuteActivity(ctx, a.SendNotifications, SendNotificationsInput{
		DeliveryID:   state.deliveryID,
		Channels:     ev.Threshold.Channels,
		Message:      msg,
		DelayMinutes: tc.Traffic.DelayMinutes,
	}).Get(ctx, &sent); err != nil {
		return out, err
	}
	state.steps.NotificationDelivery.Completed = true
	saveProgress(ctx, a, state)

	out.Notified = true
	out.ChannelsSent = sent.Sent
	out.Steps = state.steps
	return out, nil
}

func recordRun(ctx workflow.Context, a *Activities, state *runState) error {
	exec := freight.WorkflowExecution{
		WorkflowID: state.workflowID,
		RunID:      state.runID,
		DeliveryID: state.deliveryID,
		Status:     freight.WorkflowRunning,
		StartedAt:  workflow.Now(ctx).UTC(),
	}
	return workflow.ExecuteActivity(ctx, a.RecordExecution, exec).Get(ctx, nil)
}

// saveProgress flushes the step states to the execution row. Failures here
// never abort the pipeline.
func saveProgress(ctx workflow.Context, a *Activities, state *runState) {
	upd := ExecutionUpdate{
		WorkflowID: state.workflowID,
		RunID:      state.runID,
		DeliveryID: state.deliveryID,
		Status:     freight.WorkflowRunning,
		Steps:      state.steps,
	}
	if err := workflow.ExecuteActivity(ctx, a.UpdateExecution, upd).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("execution progress update failed", "error", err)
	}
}

// finalizeRun writes the terminal execution record. A cancelled workflow still
// gets its row updated through a disconnected context.
func finalizeRun(ctx workflow.Context, a *Activities, state *runState, runErr error) {
	status := freight.WorkflowCompleted
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		if isCanceled(ctx, runErr) {
			status = freight.WorkflowCancelled
		} else {
			status = freight.WorkflowFailed
		}
	}

	uctx := ctx
	if ctx.Err() != nil {
		var cancel workflow.CancelFunc
		uctx, cancel = workflow.NewDisconnectedContext(ctx)
		defer cancel()
	}

	upd := ExecutionUpdate{
		WorkflowID: state.workflowID,
		RunID:      state.runID,
		DeliveryID: state.deliveryID,
		Status:     status,
		Steps:      state.steps,
		Error:      errMsg,
	}
	if err := workflow.ExecuteActivity(uctx, a.UpdateExecution, upd).Get(uctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("terminal execution update failed", "error", err)
	}
}

func isCanceled(ctx workflow.Context, err error) bool {
	return temporal.IsCanceledError(err) || ctx.Err() != nil
}
