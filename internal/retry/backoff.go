// Package retry implements exponential backoff with jitter and a
// closed/open/half-open circuit breaker, used to protect LLM and tool
// network calls per spec §5 ("Retry/backoff").
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy parameterizes exponential backoff with jitter.
type Policy struct {
	InitialMs float64
	MaxMs     float64
	Factor    float64
	Jitter    float64
}

// DefaultPolicy is a sensible default: 100ms initial, 30s max, factor 2,
// 10% jitter.
func DefaultPolicy() Policy {
	return Policy{InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 0.1}
}

// Compute returns the backoff duration for the given attempt (1-based).
func Compute(p Policy, attempt int) time.Duration {
	return ComputeWithRand(p, attempt, rand.Float64()) // #nosec G404 -- jitter, not security-sensitive
}

// ComputeWithRand computes backoff using a supplied random value in
// [0,1) so tests can be deterministic.
func ComputeWithRand(p Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := p.InitialMs * math.Pow(p.Factor, exp)
	jitter := base * p.Jitter * randomValue
	total := math.Min(p.MaxMs, base+jitter)
	return time.Duration(math.Round(total)) * time.Millisecond
}
