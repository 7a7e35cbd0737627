package tasks

import (
	"context"
	"testing"

	"github.com/mxf-project/mxf/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup() (*Manager, *Store, *CapabilityRoster) {
	store := NewStore()
	roster := NewCapabilityRoster()
	mgr := NewManager(store, roster, nil)
	return mgr, store, roster
}

func TestCreateTaskStartsPending(t *testing.T) {
	mgr, _, _ := setup()
	task := mgr.CreateTask(context.Background(), "c1", "write docs", "", 1, "writer", "assigner-1")
	assert.Equal(t, models.TaskPending, task.Status)
	assert.NotEmpty(t, task.TaskID)
}

func TestAssignRoundRobinsAcrossCandidates(t *testing.T) {
	mgr, _, roster := setup()
	roster.Register("agent-a", "writer")
	roster.Register("agent-b", "writer")

	t1 := mgr.CreateTask(context.Background(), "c1", "t1", "", 0, "writer", "assigner-1")
	t2 := mgr.CreateTask(context.Background(), "c1", "t2", "", 0, "writer", "assigner-1")

	a1, err := mgr.Assign(context.Background(), t1.TaskID, AssignModeRoundRobin)
	require.NoError(t, err)
	a2, err := mgr.Assign(context.Background(), t2.TaskID, AssignModeRoundRobin)
	require.NoError(t, err)

	assert.NotEqual(t, a1.AssigneeAgentID, a2.AssigneeAgentID)
	assert.Equal(t, models.TaskAssigned, a1.Status)
}

func TestAssignFailsWithNoCapableCandidate(t *testing.T) {
	mgr, _, _ := setup()
	task := mgr.CreateTask(context.Background(), "c1", "t1", "", 0, "researcher", "assigner-1")
	_, err := mgr.Assign(context.Background(), task.TaskID, AssignModeRoundRobin)
	require.Error(t, err)
}

type stubPolicy struct {
	pick string
	err  error
}

func (p *stubPolicy) SelectAssignee(ctx context.Context, capability string, candidates []string) (string, error) {
	return p.pick, p.err
}

func TestAssignIntelligentPrefersPolicy(t *testing.T) {
	mgr, _, roster := setup()
	roster.Register("agent-a", "writer")
	roster.Register("agent-b", "writer")
	mgr.Policy = &stubPolicy{pick: "agent-b"}

	task := mgr.CreateTask(context.Background(), "c1", "t1", "", 0, "writer", "assigner-1")
	assigned, err := mgr.Assign(context.Background(), task.TaskID, AssignModeIntelligent)
	require.NoError(t, err)
	assert.Equal(t, "agent-b", assigned.AssigneeAgentID)
}

func TestAssignIntelligentFallsBackOnPolicyError(t *testing.T) {
	mgr, _, roster := setup()
	roster.Register("agent-a", "writer")
	mgr.Policy = &stubPolicy{err: assertErr("policy unavailable")}

	task := mgr.CreateTask(context.Background(), "c1", "t1", "", 0, "writer", "assigner-1")
	assigned, err := mgr.Assign(context.Background(), task.TaskID, AssignModeIntelligent)
	require.NoError(t, err)
	assert.Equal(t, "agent-a", assigned.AssigneeAgentID)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestUpdateProgressMustBeMonotonic(t *testing.T) {
	mgr, _, roster := setup()
	roster.Register("agent-a", "writer")
	task := mgr.CreateTask(context.Background(), "c1", "t1", "", 0, "writer", "assigner-1")
	_, err := mgr.Assign(context.Background(), task.TaskID, AssignModeRoundRobin)
	require.NoError(t, err)

	_, err = mgr.UpdateProgress(context.Background(), task.TaskID, 50)
	require.NoError(t, err)
	_, err = mgr.UpdateProgress(context.Background(), task.TaskID, 30)
	require.Error(t, err)
	updated, err := mgr.UpdateProgress(context.Background(), task.TaskID, 80)
	require.NoError(t, err)
	assert.Equal(t, 80, updated.Progress)
	assert.Equal(t, models.TaskInProgress, updated.Status)
}

func TestCompleteRequiresAssigneeOrConfiguredAgent(t *testing.T) {
	mgr, _, roster := setup()
	roster.Register("agent-a", "writer")
	task := mgr.CreateTask(context.Background(), "c1", "t1", "", 0, "writer", "assigner-1")
	assigned, err := mgr.Assign(context.Background(), task.TaskID, AssignModeRoundRobin)
	require.NoError(t, err)

	_, err = mgr.Complete(context.Background(), task.TaskID, "someone-else", true, "done", "")
	require.Error(t, err)

	completed, err := mgr.Complete(context.Background(), task.TaskID, assigned.AssigneeAgentID, true, "done", "")
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, completed.Status)
	assert.Equal(t, 100, completed.Progress)
}

func TestCompleteAllowsConfiguredCompletionAgent(t *testing.T) {
	mgr, _, roster := setup()
	roster.Register("agent-a", "writer")
	mgr.CompletionAgentID = "supervisor"
	task := mgr.CreateTask(context.Background(), "c1", "t1", "", 0, "writer", "assigner-1")
	_, err := mgr.Assign(context.Background(), task.TaskID, AssignModeRoundRobin)
	require.NoError(t, err)

	completed, err := mgr.Complete(context.Background(), task.TaskID, "supervisor", false, "", "gave up")
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, completed.Status)
	assert.Equal(t, "gave up", completed.Error)
}

func TestCancelRequiresAssignerOrAdmin(t *testing.T) {
	mgr, _, _ := setup()
	task := mgr.CreateTask(context.Background(), "c1", "t1", "", 0, "writer", "assigner-1")

	_, err := mgr.Cancel(context.Background(), task.TaskID, "random-agent")
	require.Error(t, err)

	cancelled, err := mgr.Cancel(context.Background(), task.TaskID, "assigner-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskCancelled, cancelled.Status)
}

func TestCancelAllowsChannelAdmin(t *testing.T) {
	mgr, _, _ := setup()
	mgr.ChannelAdmins = map[string]bool{"admin-1": true}
	task := mgr.CreateTask(context.Background(), "c1", "t1", "", 0, "writer", "assigner-1")

	cancelled, err := mgr.Cancel(context.Background(), task.TaskID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskCancelled, cancelled.Status)
}

func TestCannotCompleteAlreadyTerminalTask(t *testing.T) {
	mgr, _, roster := setup()
	roster.Register("agent-a", "writer")
	task := mgr.CreateTask(context.Background(), "c1", "t1", "", 0, "writer", "assigner-1")
	assigned, err := mgr.Assign(context.Background(), task.TaskID, AssignModeRoundRobin)
	require.NoError(t, err)
	_, err = mgr.Complete(context.Background(), task.TaskID, assigned.AssigneeAgentID, true, "done", "")
	require.NoError(t, err)

	_, err = mgr.Complete(context.Background(), task.TaskID, assigned.AssigneeAgentID, true, "again", "")
	require.Error(t, err)
}
