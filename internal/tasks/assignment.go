package tasks

import (
	"context"
	"sort"
	"sync"
)

// AssignmentPolicy is the external collaborator consulted for
// "intelligent" assignment (spec §4.7), mirroring the teacher's
// CapabilityRouter.SelectBestAgent contract narrowed to the single
// decision C7 needs: given a capability and its candidate pool, pick one.
// A nil Manager.Policy, or a policy returning an error, falls back to
// round-robin.
type AssignmentPolicy interface {
	SelectAssignee(ctx context.Context, capability string, candidates []string) (string, error)
}

// CapabilityRoster tracks which agents claim which capability tags,
// grounded on the teacher's capabilityIndex (capability_router.go
// rebuildCapabilityIndex).
type CapabilityRoster struct {
	mu    sync.RWMutex
	byCap map[string][]string // capability -> agentIDs, insertion order
}

// NewCapabilityRoster returns an empty roster.
func NewCapabilityRoster() *CapabilityRoster {
	return &CapabilityRoster{byCap: make(map[string][]string)}
}

// Register adds agentID as a claimant of capability, idempotently.
func (r *CapabilityRoster) Register(agentID, capability string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.byCap[capability] {
		if id == agentID {
			return
		}
	}
	r.byCap[capability] = append(r.byCap[capability], agentID)
}

// Unregister removes agentID from every capability it claimed.
func (r *CapabilityRoster) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cap, agents := range r.byCap {
		var kept []string
		for _, id := range agents {
			if id != agentID {
				kept = append(kept, id)
			}
		}
		r.byCap[cap] = kept
	}
}

// Candidates returns every agent claiming capability, in a stable order.
func (r *CapabilityRoster) Candidates(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.byCap[capability]...)
	sort.Strings(out)
	return out
}

// roundRobin picks the next candidate after lastAssigned in sorted order,
// wrapping around; it is stateless beyond the cursor the Manager tracks
// per capability, mirroring the teacher's load-based sortByLoad/
// selectAgent fallback (capability_router.go) simplified to pure
// round-robin since C7 has no per-agent load metric of its own.
func roundRobin(candidates []string, cursor int) (string, int) {
	if len(candidates) == 0 {
		return "", cursor
	}
	idx := cursor % len(candidates)
	return candidates[idx], idx + 1
}
