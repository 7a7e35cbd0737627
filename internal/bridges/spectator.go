package bridges

import (
	"context"
	"sync"

	"github.com/mxf-project/mxf/internal/bus"
	"github.com/mxf-project/mxf/internal/observability"
)

// Spectator drives one or more Bridges from a bus.Monitor, forwarding
// every event whose type passes an allowlist filter (operators may
// narrow the forwarded set further than the bus's own public whitelist,
// e.g. excluding high-frequency controlloop.* phases from a chat
// channel). Grounded on the teacher's EventTimelinePlugin dispatch loop
// (internal/gateway/event_timeline.go) generalized from a single
// recorder sink to a fan-out over multiple Bridge implementations.
type Spectator struct {
	monitor *bus.Monitor
	bridges []Bridge
	allow   map[string]bool // nil = forward everything the monitor delivers
	logger  *observability.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewSpectator builds a Spectator forwarding monitor's events to every
// bridge in bridges. allow, if non-nil, restricts forwarding to the
// listed event types.
func NewSpectator(monitor *bus.Monitor, bridges []Bridge, allow map[string]bool, logger *observability.Logger) *Spectator {
	return &Spectator{
		monitor: monitor,
		bridges: bridges,
		allow:   allow,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run consumes monitor.Events() until ctx is cancelled or Stop is called,
// posting each matching event to every configured bridge. Run blocks;
// callers typically invoke it in its own goroutine.
func (s *Spectator) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case env, ok := <-s.monitor.Events():
			if !ok {
				return
			}
			if s.allow != nil && !s.allow[env.Type] {
				continue
			}
			event := FormatEvent(env)
			for _, b := range s.bridges {
				if err := b.Post(ctx, event); err != nil && s.logger != nil {
					s.logger.Warn(ctx, "bridge post failed", "eventType", env.Type, "error", err.Error())
				}
			}
		}
	}
}

// Done returns a channel closed once Run has returned, for callers that
// need to wait out a graceful shutdown after calling Stop.
func (s *Spectator) Done() <-chan struct{} {
	return s.done
}

// Stop signals Run to halt and releases the underlying monitor. Safe to
// call more than once and safe to call whether or not Run was ever
// started.
func (s *Spectator) Stop() {
	s.once.Do(func() {
		close(s.stop)
		s.monitor.Close()
	})
}
