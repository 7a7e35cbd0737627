// Package tasks implements the Task Lifecycle Service (C7): task
// creation, intelligent-with-round-robin-fallback assignment,
// authorization-gated completion/cancellation, and monotonic progress
// tracking. Grounded on the teacher's internal/multiagent package rather
// than its cron-oriented internal/tasks package: capability-based
// assignment is grounded on capability_router.go's
// RouteByCapability/SelectBestAgent, and fallback-chain/round-robin
// behavior on subagent_registry.go's run-record bookkeeping.
package tasks

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/pkg/models"
)

// Store is the in-memory task table, one per server instance. Grounded
// on the teacher's SubagentRegistry's mutex-guarded map-of-records
// pattern (internal/multiagent/subagent_registry.go).
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
}

// NewStore returns an empty task store.
func NewStore() *Store {
	return &Store{tasks: make(map[string]*models.Task)}
}

// Create inserts a new pending task.
func (s *Store) Create(channelID, title, description string, priority int, requiredCapability, assignerID string) *models.Task {
	now := time.Now()
	t := &models.Task{
		TaskID:             uuid.NewString(),
		ChannelID:          channelID,
		Title:              title,
		Description:        description,
		Priority:           priority,
		Status:             models.TaskPending,
		RequiredCapability: requiredCapability,
		AssignerID:         assignerID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	s.mu.Lock()
	s.tasks[t.TaskID] = t
	s.mu.Unlock()
	return t
}

// Get returns a copy of the task with the given ID.
func (s *Store) Get(taskID string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return models.Task{}, false
	}
	return *t, true
}

// ListByChannel returns every task for channelID, in creation order.
func (s *Store) ListByChannel(channelID string) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Task
	for _, t := range s.tasks {
		if t.ChannelID == channelID {
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ListByAssignee returns every task currently assigned to agentID that is
// not in a terminal state.
func (s *Store) ListByAssignee(agentID string) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Task
	for _, t := range s.tasks {
		if t.AssigneeAgentID == agentID && !isTerminal(t.Status) {
			out = append(out, *t)
		}
	}
	return out
}

// ListStale returns channelID's non-terminal tasks that haven't been
// touched (assigned, progressed, or completed) in longer than staleAfter,
// used by the scheduled stale-task sweep, which fails them (spec C7
// scheduled tasks).
func (s *Store) ListStale(channelID string, staleAfter time.Duration) []models.Task {
	cutoff := time.Now().Add(-staleAfter)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Task
	for _, t := range s.tasks {
		if t.ChannelID != channelID || isTerminal(t.Status) {
			continue
		}
		if t.Status == models.TaskPending {
			continue
		}
		if t.UpdatedAt.Before(cutoff) {
			out = append(out, *t)
		}
	}
	return out
}

func isTerminal(s models.TaskStatus) bool {
	return s == models.TaskCompleted || s == models.TaskFailed || s == models.TaskCancelled
}

// mutate applies fn under the store lock and returns the resulting copy,
// or a NOT_FOUND error if taskID is unknown.
func (s *Store) mutate(taskID string, fn func(t *models.Task) error) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return models.Task{}, mxferrors.New(mxferrors.NotFound, "task %q not found", taskID)
	}
	if err := fn(t); err != nil {
		return models.Task{}, err
	}
	t.UpdatedAt = time.Now()
	return *t, nil
}
