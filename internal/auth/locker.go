package auth

import (
	"context"
	"sync"
	"time"

	"github.com/mxf-project/mxf/internal/mxferrors"
)

// DefaultLockTimeout bounds how long a caller waits to acquire a session
// lock before giving up (spec §4.2: at most one principal drives a
// session's ORPAR loop at a time).
const DefaultLockTimeout = 10 * time.Second

// SessionLocker serializes access to a session across concurrent
// connections, grounded on the teacher's in-memory LocalLocker
// (internal/sessions/locker.go) generalized to a single-process mutex-map
// without the DB-backed lease variant, since MXF runs single-node.
type SessionLocker struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewSessionLocker builds a locker whose Lock calls give up after timeout;
// a context that is cancelled earlier ends the wait sooner.
func NewSessionLocker(timeout time.Duration) *SessionLocker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &SessionLocker{timeout: timeout, locks: make(map[string]chan struct{})}
}

// Lock blocks until the session's lock is acquired, ctx is cancelled, or
// the locker's timeout elapses.
func (l *SessionLocker) Lock(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	ch, ok := l.locks[sessionID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[sessionID] = ch
	}
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return mxferrors.New(mxferrors.SessionLockTimeout, "timed out acquiring lock for session %s", sessionID)
	}
}

// Unlock releases a previously acquired lock. Unlocking a session that was
// never locked is a no-op.
func (l *SessionLocker) Unlock(sessionID string) {
	l.mu.Lock()
	ch, ok := l.locks[sessionID]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-ch:
	default:
	}
}
