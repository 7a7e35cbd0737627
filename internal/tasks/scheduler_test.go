package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxf-project/mxf/internal/bus"
	"github.com/mxf-project/mxf/internal/observability"
	"github.com/mxf-project/mxf/pkg/models"
)

func TestListStaleIgnoresPendingAndTerminalAndFreshTasks(t *testing.T) {
	store := NewStore()

	pending := store.Create("c1", "pending", "", 0, "writer", "a1")
	_ = pending

	stale, err := store.mutate(store.Create("c1", "stale", "", 0, "writer", "a1").TaskID, func(tk *models.Task) error {
		tk.Status = models.TaskInProgress
		tk.AssigneeAgentID = "agent-a"
		return nil
	})
	require.NoError(t, err)
	// mutate just bumped UpdatedAt to now; force it back in time.
	store.mu.Lock()
	store.tasks[stale.TaskID].UpdatedAt = time.Now().Add(-time.Hour)
	store.mu.Unlock()

	fresh, err := store.mutate(store.Create("c1", "fresh", "", 0, "writer", "a1").TaskID, func(tk *models.Task) error {
		tk.Status = models.TaskAssigned
		tk.AssigneeAgentID = "agent-b"
		return nil
	})
	require.NoError(t, err)

	done, err := store.mutate(store.Create("c1", "done", "", 0, "writer", "a1").TaskID, func(tk *models.Task) error {
		tk.Status = models.TaskCompleted
		return nil
	})
	require.NoError(t, err)
	store.mu.Lock()
	store.tasks[done.TaskID].UpdatedAt = time.Now().Add(-time.Hour)
	store.mu.Unlock()

	result := store.ListStale("c1", 10*time.Minute)
	require.Len(t, result, 1)
	assert.Equal(t, "stale", result[0].Title)
	_ = fresh
}

func TestSweepStaleFailsIdleTasksAndEmitsEvent(t *testing.T) {
	store := NewStore()
	roster := NewCapabilityRoster()
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "json"})
	b := bus.New(logger)
	view := bus.NewChannelView(b, "system", "c1")
	mgr := NewManager(store, roster, view)

	sub := view.On("task.failed")
	defer sub.Close()

	task := store.Create("c1", "stuck", "", 0, "writer", "a1")
	_, err := store.mutate(task.TaskID, func(tk *models.Task) error {
		tk.Status = models.TaskInProgress
		tk.AssigneeAgentID = "agent-a"
		return nil
	})
	require.NoError(t, err)
	store.mu.Lock()
	store.tasks[task.TaskID].UpdatedAt = time.Now().Add(-time.Hour)
	store.mu.Unlock()

	timedOut := mgr.SweepStale(context.Background(), 10*time.Minute)
	require.Len(t, timedOut, 1)
	assert.Equal(t, models.TaskFailed, timedOut[0].Status)
	assert.NotEmpty(t, timedOut[0].Error)

	select {
	case env := <-sub.Events():
		assert.Equal(t, "task.failed", env.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a task.failed event")
	}
}

func TestSweepStaleNoopWhenManagerHasNoChannel(t *testing.T) {
	mgr := NewManager(NewStore(), NewCapabilityRoster(), nil)
	assert.Empty(t, mgr.SweepStale(context.Background(), time.Minute))
}

func TestNewSchedulerRejectsInvalidExpression(t *testing.T) {
	_, err := NewScheduler("not a cron expression", time.Minute, nil)
	assert.Error(t, err)
}

func TestSchedulerRegisterAndUnregister(t *testing.T) {
	sched, err := NewScheduler("@every 1h", time.Minute, nil)
	require.NoError(t, err)

	store := NewStore()
	mgr := NewManager(store, NewCapabilityRoster(), nil)
	sched.Register("c1", mgr)
	sched.Unregister("c1")
	// sweepAll should tolerate an empty rotation without panicking.
	sched.sweepAll()
}
