package workflow_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/repo"
	wf "github.com/red-game-dev/the-freight-delay-notification-sub001/internal/workflow"
)

func openEngineStore(t *testing.T) *repo.Bolt {
	t.Helper()
	st, err := repo.OpenBolt(filepath.Join(t.TempDir(), "freight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func describeResponse(status enumspb.WorkflowExecutionStatus, runID string) *workflowservice.DescribeWorkflowExecutionResponse {
	return &workflowservice.DescribeWorkflowExecutionResponse{
		WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{
			Status:    status,
			Execution: &commonpb.WorkflowExecution{RunId: runID},
		},
	}
}

func TestEngineStartForDelivery(t *testing.T) {
	t.Parallel()
	tc := &mocks.Client{}
	eng := wf.NewEngine(tc, openEngineStore(t), "freight-delay-queue", 1)

	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("recurring-check-d1")
	run.On("GetRunID").Return("run-1")
	tc.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == "recurring-check-d1" &&
			o.TaskQueue == "freight-delay-queue" &&
			o.WorkflowIDReusePolicy == enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE &&
			o.WorkflowIDConflictPolicy == enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING
	}), mock.Anything, mock.Anything).Return(run, nil)

	res, err := eng.StartForDelivery(context.Background(),
		&freight.Delivery{ID: "d1", EnableRecurringChecks: true})
	require.NoError(t, err)
	require.Equal(t, wf.KindRecurringCheck, res.Kind)
	require.Equal(t, "recurring-check-d1", res.WorkflowID)
	require.Equal(t, "run-1", res.RunID)
	tc.AssertExpectations(t)
}

func TestEngineStatusFromEngine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		engineStatus enumspb.WorkflowExecutionStatus
		want         freight.WorkflowStatus
	}{
		{enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, freight.WorkflowRunning},
		{enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED, freight.WorkflowCompleted},
		{enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED, freight.WorkflowCancelled},
		{enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT, freight.WorkflowTimedOut},
		{enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, freight.WorkflowFailed},
	}
	for _, tc := range cases {
		t.Run(tc.engineStatus.String(), func(t *testing.T) {
			t.Parallel()
			mc := &mocks.Client{}
			mc.On("DescribeWorkflowExecution", mock.Anything, "delay-notification-d2", "").
				Return(describeResponse(tc.engineStatus, "run-7"), nil)
			eng := wf.NewEngine(mc, openEngineStore(t), "q", 1)

			res, err := eng.Status(context.Background(), "delay-notification-d2")
			require.NoError(t, err)
			require.Equal(t, "engine", res.Source)
			require.Equal(t, tc.want, res.Status)
			require.Equal(t, "run-7", res.RunID)
		})
	}
}

func TestEngineStatusFallsBackToRepository(t *testing.T) {
	t.Parallel()
	mc := &mocks.Client{}
	mc.On("DescribeWorkflowExecution", mock.Anything, mock.Anything, "").
		Return(nil, errors.New("frontend unavailable"))

	st := openEngineStore(t)
	eng := wf.NewEngine(mc, st, "q", 1)
	ctx := context.Background()

	exec := &freight.WorkflowExecution{
		WorkflowID: "delay-notification-d9",
		RunID:      "run-3",
		DeliveryID: "d9",
		Status:     freight.WorkflowFailed,
		Error:      "no channel succeeded",
		StartedAt:  time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, st.CreateWorkflowExecution(ctx, exec))

	res, err := eng.Status(ctx, "delay-notification-d9")
	require.NoError(t, err)
	require.Equal(t, "repository", res.Source)
	require.Equal(t, freight.WorkflowFailed, res.Status)
	require.Equal(t, "run-3", res.RunID)
	require.NotNil(t, res.Execution)
	require.Equal(t, "no channel succeeded", res.Execution.Error)

	_, err = eng.Status(ctx, "delay-notification-unknown")
	require.True(t, freight.IsNotFound(err))
}

func TestEngineForceCancelRewritesExecution(t *testing.T) {
	t.Parallel()
	mc := &mocks.Client{}
	mc.On("TerminateWorkflow", mock.Anything, "recurring-check-d5", "", "force cancel requested").
		Return(nil)

	st := openEngineStore(t)
	eng := wf.NewEngine(mc, st, "q", 1)
	ctx := context.Background()

	require.NoError(t, st.CreateWorkflowExecution(ctx, &freight.WorkflowExecution{
		WorkflowID: "recurring-check-d5",
		RunID:      "run-2",
		DeliveryID: "d5",
		Status:     freight.WorkflowRunning,
		StartedAt:  time.Now().UTC().Add(-10 * time.Minute),
	}))

	require.NoError(t, eng.Cancel(ctx, "recurring-check-d5", true))

	row, err := st.LatestExecutionByWorkflowID(ctx, "recurring-check-d5")
	require.NoError(t, err)
	require.Equal(t, freight.WorkflowCancelled, row.Status)
	require.Equal(t, "terminated by operator", row.Error)
	require.NotNil(t, row.CompletedAt)
	mc.AssertExpectations(t)
}

func TestEngineGracefulCancelLeavesExecutionToWorkflow(t *testing.T) {
	t.Parallel()
	mc := &mocks.Client{}
	mc.On("CancelWorkflow", mock.Anything, "recurring-check-d6", "").Return(nil)

	st := openEngineStore(t)
	eng := wf.NewEngine(mc, st, "q", 1)
	ctx := context.Background()

	require.NoError(t, st.CreateWorkflowExecution(ctx, &freight.WorkflowExecution{
		WorkflowID: "recurring-check-d6",
		RunID:      "run-4",
		DeliveryID: "d6",
		Status:     freight.WorkflowRunning,
		StartedAt:  time.Now().UTC(),
	}))

	require.NoError(t, eng.Cancel(ctx, "recurring-check-d6", false))

	// The cooperative path lets the workflow write its own terminal record.
	row, err := st.LatestExecutionByWorkflowID(ctx, "recurring-check-d6")
	require.NoError(t, err)
	require.Equal(t, freight.WorkflowRunning, row.Status)
	mc.AssertExpectations(t)
}
