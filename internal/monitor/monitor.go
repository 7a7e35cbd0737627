// Package monitor manages read-only Channel Monitor handles (spec §4.10):
// a session given a channelId gets a handle receiving every whitelisted
// event for that channel and may never emit. Used by dashboards,
// orchestrators, and the bridges subsystem.
package monitor

import (
	"sync"

	"github.com/mxf-project/mxf/internal/bus"
)

// Registry tracks active monitor handles by owning session so they can
// be torn down on disconnect, grounded on the teacher's
// EventTimelinePlugin registration pattern (internal/gateway/event_timeline.go)
// generalized from a single process-wide recorder into a per-session
// handle table.
type Registry struct {
	bus *bus.Bus

	mu       sync.Mutex
	handles  map[string][]*bus.Monitor // sessionID -> monitors it owns
}

// NewRegistry returns a Registry issuing monitors against b.
func NewRegistry(b *bus.Bus) *Registry {
	return &Registry{bus: b, handles: make(map[string][]*bus.Monitor)}
}

// Open creates a new Monitor on channelID owned by sessionID. The caller
// receives the Monitor itself and reads it through Events; Close (or
// CloseSession) releases it.
func (r *Registry) Open(sessionID, channelID string) *bus.Monitor {
	mon := bus.NewMonitor(r.bus, channelID)
	r.mu.Lock()
	r.handles[sessionID] = append(r.handles[sessionID], mon)
	r.mu.Unlock()
	return mon
}

// CloseSession releases every monitor owned by sessionID, called on
// session disconnect (spec §5: "session disconnect cancels ... pending
// memory waits"; monitors are treated the same way since nothing should
// keep delivering to a disconnected session).
func (r *Registry) CloseSession(sessionID string) {
	r.mu.Lock()
	monitors := r.handles[sessionID]
	delete(r.handles, sessionID)
	r.mu.Unlock()

	for _, m := range monitors {
		m.Close()
	}
}

// ActiveCount reports how many monitors sessionID currently owns, mainly
// for tests and diagnostics.
func (r *Registry) ActiveCount(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles[sessionID])
}
