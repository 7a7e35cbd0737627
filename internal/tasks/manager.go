package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/mxf-project/mxf/internal/bus"
	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/pkg/models"
)

// AssignmentMode selects how Manager.Assign picks an assignee.
type AssignmentMode int

const (
	// AssignModeIntelligent consults Manager.Policy first, falling back to
	// round-robin if the policy is nil or returns an error.
	AssignModeIntelligent AssignmentMode = iota
	// AssignModeRoundRobin skips the policy entirely.
	AssignModeRoundRobin
)

// Manager drives one channel's task lifecycle end-to-end: creation,
// assignment, progress, completion/cancellation authorization, and bus
// event emission.
type Manager struct {
	store     *Store
	roster    *CapabilityRoster
	Policy    AssignmentPolicy
	view      *bus.ChannelView
	channelID string

	// CompletionAgentID, when set, may call task_complete on any task in
	// addition to the assignee (spec §4.7: "the assignee (or configured
	// completion agent)").
	CompletionAgentID string
	// ChannelAdmins lists agent IDs permitted to cancel any task in this
	// channel in addition to each task's assigner.
	ChannelAdmins map[string]bool

	mu      sync.Mutex
	cursors map[string]int // capability -> round-robin cursor
}

// NewManager builds a Manager over store, using roster for capability
// based assignment and emitting events through view (nil suppresses
// emission).
func NewManager(store *Store, roster *CapabilityRoster, view *bus.ChannelView) *Manager {
	m := &Manager{
		store:   store,
		roster:  roster,
		view:    view,
		cursors: make(map[string]int),
	}
	if view != nil {
		m.channelID = view.ChannelID()
	}
	return m
}

func (m *Manager) emit(ctx context.Context, eventType string, data any) {
	if m.view == nil {
		return
	}
	_ = m.view.Emit(ctx, eventType, data)
}

// CreateTask creates a pending task and emits task.created.
func (m *Manager) CreateTask(ctx context.Context, channelID, title, description string, priority int, requiredCapability, assignerID string) models.Task {
	t := m.store.Create(channelID, title, description, priority, requiredCapability, assignerID)
	m.emit(ctx, "task.created", *t)
	return *t
}

// Assign transitions a pending task to assigned, selecting an assignee
// per mode (spec §4.7: "intelligent, deferring to an external policy
// collaborator; if unavailable, fallback is round-robin over agents
// claiming a matching capability tag").
func (m *Manager) Assign(ctx context.Context, taskID string, mode AssignmentMode) (models.Task, error) {
	existing, ok := m.store.Get(taskID)
	if !ok {
		return models.Task{}, mxferrors.New(mxferrors.NotFound, "task %q not found", taskID)
	}
	if existing.Status != models.TaskPending {
		return models.Task{}, mxferrors.New(mxferrors.ValidationError, "task %q is %s, not pending", taskID, existing.Status)
	}

	candidates := m.roster.Candidates(existing.RequiredCapability)
	if len(candidates) == 0 {
		return models.Task{}, mxferrors.New(mxferrors.NotFound, "no agent claims capability %q", existing.RequiredCapability)
	}

	assignee := ""
	if mode == AssignModeIntelligent && m.Policy != nil {
		if picked, err := m.Policy.SelectAssignee(ctx, existing.RequiredCapability, candidates); err == nil && picked != "" {
			assignee = picked
		}
	}
	if assignee == "" {
		m.mu.Lock()
		cursor := m.cursors[existing.RequiredCapability]
		var next string
		next, m.cursors[existing.RequiredCapability] = roundRobin(candidates, cursor)
		m.mu.Unlock()
		assignee = next
	}
	if assignee == "" {
		return models.Task{}, mxferrors.New(mxferrors.NotFound, "no candidate available for capability %q", existing.RequiredCapability)
	}

	updated, err := m.store.mutate(taskID, func(t *models.Task) error {
		t.Status = models.TaskAssigned
		t.AssigneeAgentID = assignee
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}

	m.emit(ctx, "task.assigned", updated)
	return updated, nil
}

// UpdateProgress moves a task from assigned to in_progress on its first
// call and enforces the monotonic non-decreasing invariant (spec §4.7)
// thereafter.
func (m *Manager) UpdateProgress(ctx context.Context, taskID string, progress int) (models.Task, error) {
	updated, err := m.store.mutate(taskID, func(t *models.Task) error {
		if t.Status != models.TaskAssigned && t.Status != models.TaskInProgress {
			return mxferrors.New(mxferrors.ValidationError, "task %q is %s, cannot update progress", t.TaskID, t.Status)
		}
		if progress < t.Progress {
			return mxferrors.New(mxferrors.ValidationError, "progress must be non-decreasing: %d < %d", progress, t.Progress)
		}
		t.Status = models.TaskInProgress
		t.Progress = progress
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}

	m.emit(ctx, "task.progress_updated", updated)
	return updated, nil
}

// Complete implements the agent-facing task_complete tool: only the
// assignee or m.CompletionAgentID may call it (spec §4.7).
func (m *Manager) Complete(ctx context.Context, taskID, callerAgentID string, success bool, result, errMsg string) (models.Task, error) {
	existing, ok := m.store.Get(taskID)
	if !ok {
		return models.Task{}, mxferrors.New(mxferrors.NotFound, "task %q not found", taskID)
	}
	if callerAgentID != existing.AssigneeAgentID && (m.CompletionAgentID == "" || callerAgentID != m.CompletionAgentID) {
		return models.Task{}, mxferrors.New(mxferrors.Forbidden, "agent %q is not authorized to complete task %q", callerAgentID, taskID)
	}

	now := time.Now()
	updated, err := m.store.mutate(taskID, func(t *models.Task) error {
		if isTerminal(t.Status) {
			return mxferrors.New(mxferrors.ValidationError, "task %q already in terminal state %s", t.TaskID, t.Status)
		}
		if success {
			t.Status = models.TaskCompleted
			t.Progress = 100
			t.Result = result
		} else {
			t.Status = models.TaskFailed
			t.Error = errMsg
		}
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}

	if success {
		m.emit(ctx, "task.completed", updated)
	} else {
		m.emit(ctx, "task.failed", updated)
	}
	return updated, nil
}

// Cancel is only permitted for the task's assigner or a configured
// channel admin (spec §4.7).
func (m *Manager) Cancel(ctx context.Context, taskID, callerAgentID string) (models.Task, error) {
	existing, ok := m.store.Get(taskID)
	if !ok {
		return models.Task{}, mxferrors.New(mxferrors.NotFound, "task %q not found", taskID)
	}
	isAdmin := m.ChannelAdmins != nil && m.ChannelAdmins[callerAgentID]
	if callerAgentID != existing.AssignerID && !isAdmin {
		return models.Task{}, mxferrors.New(mxferrors.Forbidden, "agent %q is not authorized to cancel task %q", callerAgentID, taskID)
	}

	now := time.Now()
	updated, err := m.store.mutate(taskID, func(t *models.Task) error {
		if isTerminal(t.Status) {
			return mxferrors.New(mxferrors.ValidationError, "task %q already in terminal state %s", t.TaskID, t.Status)
		}
		t.Status = models.TaskCancelled
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}

	m.emit(ctx, "task.cancelled", updated)
	return updated, nil
}

// SweepStale fails every task in this manager's channel that has sat in
// assigned or in_progress longer than staleAfter without an update,
// freeing its assignee to pick up new work (spec C7 scheduled tasks: a
// periodic sweep, not an agent-facing tool, so it runs with no caller
// authorization check). It returns the tasks it timed out.
func (m *Manager) SweepStale(ctx context.Context, staleAfter time.Duration) []models.Task {
	if m.channelID == "" {
		return nil
	}

	stale := m.store.ListStale(m.channelID, staleAfter)
	timedOut := make([]models.Task, 0, len(stale))
	for _, t := range stale {
		updated, err := m.store.mutate(t.TaskID, func(task *models.Task) error {
			if isTerminal(task.Status) {
				return mxferrors.New(mxferrors.ValidationError, "task %q already in terminal state %s", task.TaskID, task.Status)
			}
			task.Status = models.TaskFailed
			task.Error = "timed out waiting for assignee progress"
			now := time.Now()
			task.CompletedAt = &now
			return nil
		})
		if err != nil {
			continue
		}
		m.emit(ctx, "task.failed", updated)
		timedOut = append(timedOut, updated)
	}
	return timedOut
}
