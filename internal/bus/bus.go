package bus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/internal/observability"
)

// DefaultInboxSize is the default bounded-inbox capacity per subscriber.
const DefaultInboxSize = 256

// DefaultSendTimeout is how long PolicyBlockWithTimeout waits before
// reporting MESSAGE_SEND_FAILED.
const DefaultSendTimeout = 3 * time.Second

// Filter selects which envelopes a subscription receives.
type Filter struct {
	// Topic, if non-empty, must be a whitelisted prefix/exact match the
	// envelope's Type satisfies (e.g. "message.", "task.created").
	Topic string
	// ChannelID, if non-empty, restricts delivery to that channel.
	ChannelID string
}

func (f Filter) matches(env *Envelope) bool {
	if f.ChannelID != "" && env.ChannelID != f.ChannelID {
		return false
	}
	if f.Topic == "" {
		return true
	}
	if strings.HasSuffix(f.Topic, ".") {
		return strings.HasPrefix(env.Type, f.Topic)
	}
	return env.Type == f.Topic
}

// Subscription is a bounded-inbox handle returned by Subscribe. Callers
// range over Events() and must call Close when done.
type Subscription struct {
	id     string
	filter Filter
	inbox  chan *Envelope
	bus    *Bus
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	lastError error
}

// Events returns the channel of delivered envelopes.
func (s *Subscription) Events() <-chan *Envelope { return s.inbox }

// LastError returns the most recent delivery error recorded for this
// subscriber (spec §4.1: "failed subscribers record the error and
// continue").
func (s *Subscription) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *Subscription) recordError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
}

// Close unsubscribes and releases the inbox.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.bus.remove(s.id)
	})
}

// emitterState tracks per-(emitter, channelId) ordering: Publish holds its
// mutex for the whole fan-out, so publishes sharing that key are delivered
// one at a time. orderMu only guards lookup and creation of these entries.
type emitterState struct {
	mu sync.Mutex
}

// Bus is the in-process duplex event bus. Delivery is at-least-once from
// emitter to all matching subscribers; ordering is preserved per
// (emitter, channelId) but not across emitters (spec §4.1).
type Bus struct {
	logger *observability.Logger

	mu   sync.RWMutex
	subs map[string]*Subscription

	orderMu sync.Mutex
	order   map[string]*emitterState
}

// New creates an empty Bus.
func New(logger *observability.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]*Subscription),
		order:  make(map[string]*emitterState),
		logger: logger,
	}
}

// Subscribe registers a new bounded-inbox subscription matching filter.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		filter: filter,
		inbox:  make(chan *Envelope, DefaultInboxSize),
		bus:    b,
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *Bus) orderKey(emitterID, channelID string) string {
	return emitterID + "\x00" + channelID
}

// Publish emits env to every matching, non-closed subscription. Only
// whitelisted event types are considered for cross-transport delivery;
// callers emitting internal-only events should not call Publish for them.
// Delivery failure to one subscriber never blocks delivery to others.
func (b *Bus) Publish(ctx context.Context, emitterID string, env *Envelope) error {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}

	b.orderMu.Lock()
	key := b.orderKey(emitterID, env.ChannelID)
	state, ok := b.order[key]
	if !ok {
		state = &emitterState{}
		b.order[key] = state
	}
	b.orderMu.Unlock()

	// Serialize publishes sharing (emitter, channelId) to preserve their
	// relative order across all subscribers.
	state.mu.Lock()
	defer state.mu.Unlock()

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.filter.matches(env) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		b.deliver(ctx, sub, env)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, sub *Subscription, env *Envelope) {
	select {
	case <-sub.closed:
		return
	default:
	}

	switch policyForTopic(env.Type) {
	case PolicyBlockWithTimeout:
		timer := time.NewTimer(DefaultSendTimeout)
		defer timer.Stop()
		select {
		case sub.inbox <- env:
		case <-sub.closed:
		case <-ctx.Done():
			sub.recordError(ctx.Err())
		case <-timer.C:
			err := mxferrors.New(mxferrors.MessageSendFailed, "subscriber %s inbox full after %s", sub.id, DefaultSendTimeout)
			sub.recordError(err)
			if b.logger != nil {
				b.logger.Warn(ctx, "bus delivery failed", "subscriber", sub.id, "topic", env.Type)
			}
		}
	default: // PolicyDropOldest
		select {
		case sub.inbox <- env:
		default:
			select {
			case <-sub.inbox:
			default:
			}
			select {
			case sub.inbox <- env:
			default:
				sub.recordError(mxferrors.New(mxferrors.MessageSendFailed, "subscriber %s inbox full, event dropped", sub.id))
			}
		}
	}
}
