package inference

import (
	"fmt"
	"time"
)

// Bucket is one {phase, model, hour} cost analytics aggregate (spec §4.6
// Cost analytics), grounded on the teacher's usage.Tracker.GetSummary
// shape (internal/usage/usage.go) and cost.ComputeCostSummary's
// input/output token split (internal/status/cost.go).
type Bucket struct {
	Phase            PhaseName
	Model            string
	Hour             time.Time
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	Calls            int
}

// Report is the response shape for a cost-analytics query.
type Report struct {
	Buckets          []Bucket
	TotalCost        float64
	TotalPromptTokens int
	TotalCompletionTokens int
	Tips             []string
}

// CostAnalytics aggregates recorded usage within [from, to) into
// per-{phase,model,hour} buckets, along with optimization tips.
func (s *Service) CostAnalytics(from, to time.Time) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	buckets := make(map[string]*Bucket)
	var order []string

	for _, rec := range s.usage {
		if rec.At.Before(from) || !rec.At.Before(to) {
			continue
		}
		hour := rec.At.Truncate(time.Hour)
		key := fmt.Sprintf("%s|%s|%s", rec.Phase, rec.Model, hour.Format(time.RFC3339))
		b, ok := buckets[key]
		if !ok {
			b = &Bucket{Phase: rec.Phase, Model: rec.Model, Hour: hour}
			buckets[key] = b
			order = append(order, key)
		}
		b.PromptTokens += rec.Prompt
		b.CompletionTokens += rec.Completion
		b.Calls++

		if inPrice, outPrice, ok := priceFor(rec.Model); ok {
			b.Cost += float64(rec.Prompt)*inPrice/1e6 + float64(rec.Completion)*outPrice/1e6
		}
	}

	report := Report{}
	for _, key := range order {
		b := *buckets[key]
		report.Buckets = append(report.Buckets, b)
		report.TotalCost += b.Cost
		report.TotalPromptTokens += b.PromptTokens
		report.TotalCompletionTokens += b.CompletionTokens
	}
	report.Tips = optimizationTips(report)
	return report
}

// optimizationTips flags the cheap, generic patterns worth surfacing:
// flagship-tier usage in observation/action phases (which the phase
// profile table marks as accuracy/reliability-only, not needing a
// premium model) and any bucket above a fixed per-hour cost threshold.
func optimizationTips(r Report) []string {
	var tips []string
	for _, b := range r.Buckets {
		entry, ok := catalog[b.Model]
		if !ok {
			continue
		}
		if entry.Tier == "flagship" && (b.Phase == PhaseObservation || b.Phase == PhaseAction) {
			tips = append(tips, fmt.Sprintf("%s calls during %s use a flagship model; a fast-tier model may suffice", b.Model, b.Phase))
		}
		if b.Cost > 5.0 {
			tips = append(tips, fmt.Sprintf("%s/%s at %s cost $%.2f in one hour", b.Phase, b.Model, b.Hour.Format(time.Kitchen), b.Cost))
		}
	}
	return tips
}
