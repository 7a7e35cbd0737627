// Package inference implements the Inference Parameter Service (C6):
// per-phase default profiles, precedence-ordered agent overrides,
// override-request governance, and cost analytics aggregation. New
// domain component with no direct teacher analogue; grounded on the
// teacher's model catalog/tiering (internal/models/catalog.go,
// internal/models/fallback.go) for model substitution and
// internal/usage/usage.go + internal/status/cost.go for the aggregation
// and reporting shape.
package inference

import "github.com/mxf-project/mxf/pkg/models"

// PhaseName identifies which ORPAR phase a profile or override applies to.
// Kept as a plain string (rather than importing internal/orpar.Phase) to
// avoid a cyclic dependency between the two packages: orpar imports
// inference to resolve params, so inference cannot import orpar.Phase
// back. orpar.Phase values use shorthand ("reason"); a mapping function in
// package orpar translates between the two vocabularies.
type PhaseName string

const (
	PhaseObservation PhaseName = "observation"
	PhaseReasoning   PhaseName = "reasoning"
	PhasePlanning    PhaseName = "planning"
	PhaseAction      PhaseName = "action"
	PhaseReflection  PhaseName = "reflection"
)

// Profile is the default InferenceParams plus the tier ceilings governing
// override clamping for one ORPAR phase.
type Profile struct {
	Params         models.InferenceParams
	MinTemperature float64
	MaxTemperature float64
	MaxReasoningTokens int
}

// DefaultProfiles returns the spec's phase profile table (§4.6): observation
// favors accuracy (low temperature, no reasoning budget), reasoning favors
// exploration, action favors reliability, planning and reflection sit
// between the two.
func DefaultProfiles(defaultModel string) map[PhaseName]Profile {
	return map[PhaseName]Profile{
		PhaseObservation: {
			Params:         models.InferenceParams{Model: defaultModel, Temperature: 0.2, ReasoningTokens: 0, MaxOutputTokens: 1024},
			MinTemperature: 0, MaxTemperature: 0.3, MaxReasoningTokens: 0,
		},
		PhaseReasoning: {
			Params:         models.InferenceParams{Model: defaultModel, Temperature: 0.6, ReasoningTokens: 2048, MaxOutputTokens: 4096},
			MinTemperature: 0.31, MaxTemperature: 1.0, MaxReasoningTokens: 8192,
		},
		PhasePlanning: {
			Params:         models.InferenceParams{Model: defaultModel, Temperature: 0.35, ReasoningTokens: 512, MaxOutputTokens: 2048},
			MinTemperature: 0.2, MaxTemperature: 0.5, MaxReasoningTokens: 4096,
		},
		PhaseAction: {
			Params:         models.InferenceParams{Model: defaultModel, Temperature: 0.1, ReasoningTokens: 0, MaxOutputTokens: 1024},
			MinTemperature: 0, MaxTemperature: 0.2, MaxReasoningTokens: 0,
		},
		PhaseReflection: {
			Params:         models.InferenceParams{Model: defaultModel, Temperature: 0.45, ReasoningTokens: 256, MaxOutputTokens: 2048},
			MinTemperature: 0.3, MaxTemperature: 0.6, MaxReasoningTokens: 4096,
		},
	}
}

// clamp returns v bounded to [lo, hi] and whether clamping changed it.
func clamp(v, lo, hi float64) (float64, bool) {
	if v < lo {
		return lo, true
	}
	if v > hi {
		return hi, true
	}
	return v, false
}
