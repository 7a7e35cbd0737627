package inference

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/pkg/models"
)

// ChannelDefaults overlays channel-level InferenceParams on top of the
// system's phase profiles, before any agent override is applied.
type ChannelDefaults map[string]models.InferenceParams // keyed by PhaseName

// Service resolves effective InferenceParams per agent/phase, tracks
// active overrides with precedence/expiry, and aggregates usage for cost
// analytics. New domain component (spec §4.6); no teacher analogue for
// the service shape itself, though its pieces are grounded on the
// teacher's model catalog, usage tracker, and cost estimator (see
// DESIGN.md).
type Service struct {
	profiles     map[PhaseName]Profile
	defaultModel string

	mu        sync.Mutex
	overrides map[string][]*models.InferenceOverride // keyed by AgentID
	channels  map[string]ChannelDefaults              // keyed by ChannelID
	usage     []usageRecord
}

type usageRecord struct {
	Phase     PhaseName
	Model     string
	At        time.Time
	Prompt    int
	Completion int
}

// NewService builds a Service seeded with the default phase profiles for
// defaultModel.
func NewService(defaultModel string) *Service {
	return &Service{
		profiles:     DefaultProfiles(defaultModel),
		defaultModel: defaultModel,
		overrides:    make(map[string][]*models.InferenceOverride),
		channels:     make(map[string]ChannelDefaults),
	}
}

// SetChannelDefaults replaces channelID's per-phase defaults, which rank
// below agent overrides but above the system profile.
func (s *Service) SetChannelDefaults(channelID string, defaults ChannelDefaults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channelID] = defaults
}

// Resolve returns the effective InferenceParams for agentID at phase,
// walking active (non-expired) overrides in precedence order — next_call,
// current_phase, task, session — then the channel default, then the
// system profile (spec §4.6 Resolution).
func (s *Service) Resolve(agentID, channelID string, phase PhaseName) models.InferenceParams {
	s.mu.Lock()
	defer s.mu.Unlock()

	params := s.profiles[phase].Params
	if defaults, ok := s.channels[channelID]; ok {
		if override, ok := defaults[string(phase)]; ok {
			params = overlay(params, override)
		}
	}

	now := time.Now()
	var active []*models.InferenceOverride
	for _, o := range s.overrides[agentID] {
		if o.Status != models.OverrideActive {
			continue
		}
		if !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt) {
			o.Status = models.OverrideExpired
			continue
		}
		if o.Phase != "" && o.Phase != string(phase) {
			continue
		}
		active = append(active, o)
	}

	for _, scope := range precedenceOrder {
		for _, o := range active {
			if o.Scope == scope {
				return overlay(params, o.Params)
			}
		}
	}
	return params
}

var precedenceOrder = []models.OverrideScope{
	models.ScopeNextCall,
	models.ScopeCurrentPhase,
	models.ScopeTask,
	models.ScopeSession,
}

// overlay returns base with any non-zero field in patch applied on top.
func overlay(base, patch models.InferenceParams) models.InferenceParams {
	out := base
	if patch.Model != "" {
		out.Model = patch.Model
	}
	if patch.Temperature != 0 {
		out.Temperature = patch.Temperature
	}
	if patch.ReasoningTokens != 0 {
		out.ReasoningTokens = patch.ReasoningTokens
	}
	if patch.MaxOutputTokens != 0 {
		out.MaxOutputTokens = patch.MaxOutputTokens
	}
	return out
}

// RequestResult is the response shape for request_inference_params.
type RequestResult struct {
	Status          string // approved | modified | denied
	ActiveParams    models.InferenceParams
	PreviousParams  models.InferenceParams
	OverrideID      string
	ExpiresAt       time.Time
	CostDelta       float64
}

// RequestOverride implements the agent-facing request_inference_params
// tool (spec §4.6): reason is mandatory, suggested values are clamped to
// the phase's tier ceilings, unknown models are substituted with a known
// peer, and the resulting override is stored with a scope-derived expiry.
func (s *Service) RequestOverride(ctx context.Context, agentID, channelID string, phase PhaseName, reason string, suggested models.InferenceParams, scope models.OverrideScope) (RequestResult, error) {
	if reason == "" {
		return RequestResult{}, mxferrors.New(mxferrors.MissingRequired, "reason is required to request inference parameter overrides")
	}
	if scope == "" {
		scope = models.ScopeNextCall
	}

	profile, ok := s.profiles[phase]
	if !ok {
		return RequestResult{}, mxferrors.New(mxferrors.ValidationError, "unknown phase %q", phase)
	}

	previous := s.Resolve(agentID, channelID, phase)

	status := "approved"
	applied := suggested

	if applied.Temperature != 0 {
		if clamped, changed := clamp(applied.Temperature, profile.MinTemperature, profile.MaxTemperature); changed {
			applied.Temperature = clamped
			status = "modified"
		}
	}
	if profile.MaxReasoningTokens > 0 && applied.ReasoningTokens > profile.MaxReasoningTokens {
		applied.ReasoningTokens = profile.MaxReasoningTokens
		status = "modified"
	} else if profile.MaxReasoningTokens == 0 && applied.ReasoningTokens > 0 {
		applied.ReasoningTokens = 0
		status = "modified"
	}

	if applied.Model != "" {
		known, substitute := resolveModel(applied.Model, s.defaultModel)
		if !known {
			applied.Model = substitute
			status = "modified"
		}
	}

	override := &models.InferenceOverride{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Phase:     string(phase),
		Scope:     scope,
		Params:    applied,
		CreatedAt: time.Now(),
		ExpiresAt: expiryFor(scope),
		Status:    models.OverrideActive,
	}

	s.mu.Lock()
	s.overrides[agentID] = append(s.overrides[agentID], override)
	s.mu.Unlock()

	return RequestResult{
		Status:         status,
		ActiveParams:   overlay(previous, applied),
		PreviousParams: previous,
		OverrideID:     override.ID,
		ExpiresAt:      override.ExpiresAt,
		CostDelta:      estimateCostDelta(previous, overlay(previous, applied)),
	}, nil
}

func expiryFor(scope models.OverrideScope) time.Time {
	switch scope {
	case models.ScopeSession:
		return time.Now().Add(24 * time.Hour)
	case models.ScopeNextCall, models.ScopeCurrentPhase, models.ScopeTask:
		// These scopes are time-unbounded; they expire on an event
		// (next call / phase exit / task completion) handled by
		// ExpireScope rather than a wall-clock deadline.
		return time.Time{}
	default:
		return time.Now().Add(24 * time.Hour)
	}
}

func estimateCostDelta(previous, next models.InferenceParams) float64 {
	prevIn, prevOut, prevOK := priceFor(previous.Model)
	nextIn, nextOut, nextOK := priceFor(next.Model)
	if !prevOK || !nextOK {
		return 0
	}
	// Rough per-call delta assuming a 1k-token exchange; exact accounting
	// happens in RecordUsage once real token counts are known.
	prevCost := prevIn*1.0/1000 + prevOut*0.5/1000
	nextCost := nextIn*1.0/1000 + nextOut*0.5/1000
	return nextCost - prevCost
}

// ResetResult is the response shape for reset_inference_params.
type ResetResult struct {
	Success    bool
	Scope      string
	ResetCount int
}

// ResetOverrides removes overrides matching scope for agentID (spec
// §4.6 Reset). scope "all" removes every override regardless of its
// OverrideScope.
func (s *Service) ResetOverrides(agentID, scope string) ResetResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.overrides[agentID]
	var kept []*models.InferenceOverride
	removed := 0
	for _, o := range existing {
		if scope == "all" || string(o.Scope) == scope {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	s.overrides[agentID] = kept

	return ResetResult{Success: true, Scope: scope, ResetCount: removed}
}

// ExpireScope drops every active override of the given scope across all
// agents, called when the event that bounds that scope occurs: a call
// completing (next_call), a phase exit (current_phase), or a task
// reaching a terminal state (task).
func (s *Service) ExpireScope(scope models.OverrideScope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for agentID, overrides := range s.overrides {
		var kept []*models.InferenceOverride
		for _, o := range overrides {
			if o.Scope == scope {
				continue
			}
			kept = append(kept, o)
		}
		s.overrides[agentID] = kept
	}
}

// RecordUsage logs one completion call's token usage for cost analytics.
func (s *Service) RecordUsage(phase PhaseName, model string, promptTokens, completionTokens int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usageRecord{Phase: phase, Model: model, At: at, Prompt: promptTokens, Completion: completionTokens})
}
