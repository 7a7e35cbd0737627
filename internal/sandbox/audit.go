package sandbox

import (
	"sync"

	"github.com/mxf-project/mxf/pkg/models"
)

// MemoryAuditLog is an in-process AuditSink, grounded on the teacher's
// audit.Logger (internal/audit/logger.go) narrowed from its pluggable
// sink/retention/query machinery down to an append-and-list store, since
// C8's audit trail has no query surface of its own in SPEC_FULL.md beyond
// "every execution writes a record".
type MemoryAuditLog struct {
	mu      sync.Mutex
	records []models.CodeExecutionRecord
}

// NewMemoryAuditLog returns an empty audit log.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

// Record appends r to the log.
func (l *MemoryAuditLog) Record(r models.CodeExecutionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
}

// ForAgent returns every record for agentID, in call order.
func (l *MemoryAuditLog) ForAgent(agentID string) []models.CodeExecutionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.CodeExecutionRecord
	for _, r := range l.records {
		if r.AgentID == agentID {
			out = append(out, r)
		}
	}
	return out
}
