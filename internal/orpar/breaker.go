package orpar

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/pkg/models"
)

// LoopBreakerConfig bounds how many times the same tool call (by name and
// arguments) may recur within a sliding window of recent tool invocations
// before the ORPAR loop gives up, distinct from [[internal/retry]]'s
// network-facing circuit breaker: this one detects the agent itself stuck
// in a reasoning loop rather than a flaky downstream dependency.
type LoopBreakerConfig struct {
	// MaxRepeats is the threshold (spec §4.5/§6 default 5): the breaker
	// trips once the same (name, argsHash) call appears this many times
	// within WindowSize recent calls.
	MaxRepeats int

	// WindowSize bounds how many recent calls the breaker remembers.
	// Defaults to MaxRepeats*4 so a call has to genuinely recur, not just
	// appear twice in a tiny window.
	WindowSize int
}

// DefaultLoopBreakerConfig trips once an identical call recurs 5 times
// within the recent-call window, matching the spec's default threshold.
func DefaultLoopBreakerConfig() LoopBreakerConfig {
	return LoopBreakerConfig{MaxRepeats: 5, WindowSize: 20}
}

// LoopBreaker tracks a sliding window of recent tool invocations within one
// ORPAR run, detecting any call that recurs MaxRepeats times within that
// window — including alternating patterns like A,B,A,B,A,B that a
// consecutive-streak counter would never trip.
type LoopBreaker struct {
	cfg LoopBreakerConfig

	mu     sync.Mutex
	window []string
}

// NewLoopBreaker builds a breaker for a single loop run; breakers are not
// shared across runs.
func NewLoopBreaker(cfg LoopBreakerConfig) *LoopBreaker {
	if cfg.MaxRepeats <= 0 {
		cfg = DefaultLoopBreakerConfig()
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = cfg.MaxRepeats * 4
	}
	return &LoopBreaker{cfg: cfg}
}

func callKey(tc models.ToolCall) string {
	sum := sha256.Sum256(append([]byte(tc.Name+"\x00"), tc.Arguments...))
	return hex.EncodeToString(sum[:])
}

// Observe records one planned tool call and reports an error once that
// call's key has recurred MaxRepeats times within the last WindowSize
// calls observed by this breaker.
func (b *LoopBreaker) Observe(tc models.ToolCall) error {
	key := callKey(tc)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.window = append(b.window, key)
	if len(b.window) > b.cfg.WindowSize {
		b.window = b.window[len(b.window)-b.cfg.WindowSize:]
	}

	count := 0
	for _, k := range b.window {
		if k == key {
			count++
		}
	}
	if count >= b.cfg.MaxRepeats {
		return mxferrors.New(mxferrors.CircuitOpen, "tool %q repeated %d times within the last %d calls; breaking loop", tc.Name, count, len(b.window))
	}
	return nil
}

// Reset clears the recent-call window. The loop calls it once at the start
// of each run, so the window spans every iteration of that run.
func (b *LoopBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window = nil
}
