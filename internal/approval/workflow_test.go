package approval

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"approvalflow/internal/checkpoint"
	"approvalflow/internal/run"
	"approvalflow/pkg"
)

func newTestWorkflow(t *testing.T) *run.Manager {
	t.Helper()

	exec, err := NewExecutor(context.Background())
	require.NoError(t, err)

	workflow, err := NewWorkflow(DefaultConfig(), exec)
	require.NoError(t, err)

	return run.NewManager(workflow, checkpoint.NewMemoryStore(), zerolog.Nop())
}

func TestHighRiskPredicate(t *testing.T) {
	keywords := DefaultConfig().Keywords

	cases := []struct {
		task string
		want bool
	}{
		{"delete_prod_db", true},
		{"remove critical data", true},
		{"process SENSITIVE information", true},
		{"read_logs", false},
		{"generate report", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HighRisk(tc.task, keywords), "task %q", tc.task)
	}
}

// High-risk task, approved by the human: interrupt, decide, resume,
// executed.
func TestApprovedTaskExecutesAfterResume(t *testing.T) {
	mgr := newTestWorkflow(t)
	ctx := context.Background()

	runID, events, err := mgr.Start(ctx, pkg.State{FieldTask: "delete_prod_db", FieldIteration: 0})
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, pkg.EventInterrupt, events[0].Kind)
	assert.Equal(t, "delete_prod_db", events[0].Payload["action"])
	assert.Equal(t, RiskHigh, events[0].Payload["risk"])

	require.NoError(t, mgr.Decide(ctx, runID, pkg.DecisionApproved, nil))

	cont, err := mgr.Resume(ctx, runID)
	require.NoError(t, err)
	last := cont[len(cont)-1]
	require.Equal(t, pkg.EventCompletion, last.Kind)
	assert.Equal(t, ResultExecuted, last.Payload[FieldResult])
	assert.Equal(t, StatusApproved, last.Payload[FieldApprovalStatus])
}

// Same input, rejected: resume routes through the reject node.
func TestRejectedTaskIsCancelled(t *testing.T) {
	mgr := newTestWorkflow(t)
	ctx := context.Background()

	runID, _, err := mgr.Start(ctx, pkg.State{FieldTask: "delete_prod_db", FieldIteration: 0})
	require.NoError(t, err)

	require.NoError(t, mgr.Decide(ctx, runID, pkg.DecisionRejected, nil))

	cont, err := mgr.Resume(ctx, runID)
	require.NoError(t, err)
	last := cont[len(cont)-1]
	require.Equal(t, pkg.EventCompletion, last.Kind)
	assert.Equal(t, ResultCancelled, last.Payload[FieldResult])
	assert.Equal(t, StatusRejected, last.Payload[FieldApprovalStatus])
}

// Low-risk task: no interrupt, immediate completion.
func TestLowRiskTaskCompletesImmediately(t *testing.T) {
	mgr := newTestWorkflow(t)
	ctx := context.Background()

	runID, events, err := mgr.Start(ctx, pkg.State{FieldTask: "read_logs", FieldIteration: 0})
	require.NoError(t, err)

	last := events[len(events)-1]
	require.Equal(t, pkg.EventCompletion, last.Kind)
	assert.Equal(t, ResultExecuted, last.Payload[FieldResult])
	assert.Equal(t, StatusAutoApproved, last.Payload[FieldApprovalStatus])
	assert.Equal(t, RiskLow, last.Payload[FieldRisk])

	st, err := mgr.Get(runID)
	require.NoError(t, err)
	assert.Equal(t, pkg.StatusCompleted, st.Status)
}

// Resume on a completed run is out of sequence.
func TestResumeAfterCompletion(t *testing.T) {
	mgr := newTestWorkflow(t)
	ctx := context.Background()

	runID, _, err := mgr.Start(ctx, pkg.State{FieldTask: "read_logs", FieldIteration: 0})
	require.NoError(t, err)

	_, err = mgr.Resume(ctx, runID)
	require.ErrorIs(t, err, pkg.ErrInvalidState)
}

// The modify flow replaces the task and skips re-approval on resume.
func TestModifiedTaskSkipsReapproval(t *testing.T) {
	mgr := newTestWorkflow(t)
	ctx := context.Background()

	runID, _, err := mgr.Start(ctx, pkg.State{FieldTask: "delete_prod_db", FieldIteration: 0})
	require.NoError(t, err)

	updates := pkg.State{FieldTask: "archive_prod_db", FieldIteration: 1}
	require.NoError(t, mgr.Decide(ctx, runID, pkg.DecisionModified, updates))

	cont, err := mgr.Resume(ctx, runID)
	require.NoError(t, err)

	for _, ev := range cont {
		assert.NotEqual(t, pkg.EventInterrupt, ev.Kind, "modified task must not pause again")
	}
	last := cont[len(cont)-1]
	require.Equal(t, pkg.EventCompletion, last.Kind)
	assert.Equal(t, ResultExecuted, last.Payload[FieldResult])
	assert.Equal(t, StatusModified, last.Payload[FieldApprovalStatus])
	assert.Equal(t, "archive_prod_db", last.Payload[FieldTask])
}

// Two runs with the same input emit the same event kind sequence.
func TestWorkflowDeterminism(t *testing.T) {
	mgr := newTestWorkflow(t)
	ctx := context.Background()

	kinds := func(events []pkg.StepEvent) []pkg.EventKind {
		out := make([]pkg.EventKind, len(events))
		for i, ev := range events {
			out[i] = ev.Kind
		}
		return out
	}

	_, first, err := mgr.Start(ctx, pkg.State{FieldTask: "read_logs", FieldIteration: 0})
	require.NoError(t, err)
	_, second, err := mgr.Start(ctx, pkg.State{FieldTask: "read_logs", FieldIteration: 0})
	require.NoError(t, err)

	assert.Equal(t, kinds(first), kinds(second))
}

func TestEmptyTaskFailsExecution(t *testing.T) {
	mgr := newTestWorkflow(t)
	ctx := context.Background()

	runID, _, err := mgr.Start(ctx, pkg.State{FieldTask: "", FieldIteration: 0})

	var execErr *pkg.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "execute", execErr.Node)

	st, err := mgr.Get(runID)
	require.NoError(t, err)
	assert.Equal(t, pkg.StatusFailed, st.Status)
}

func TestExecutorOutcomeLine(t *testing.T) {
	exec, err := NewExecutor(context.Background())
	require.NoError(t, err)

	out, err := exec.Execute(context.Background(), "  read_logs  ")
	require.NoError(t, err)
	assert.Equal(t, `task "read_logs" executed`, out)

	_, err = exec.Execute(context.Background(), "   ")
	assert.Error(t, err)
}
