package orpar

import (
	"context"
	"fmt"
	"time"

	"github.com/mxf-project/mxf/internal/bus"
	"github.com/mxf-project/mxf/internal/convo"
	"github.com/mxf-project/mxf/internal/inference"
	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/internal/tools"
	"github.com/mxf-project/mxf/pkg/models"
)

// Config bounds one ORPAR run, grounded on the teacher's LoopConfig
// (internal/agent/loop.go) trimmed to the fields the spec's single
// synchronous loop needs: MaxWallTime/StreamToolResults/job-async
// machinery has no analogue here since C5 runs one turn at a time and
// returns its result rather than streaming chunks.
type Config struct {
	// MaxIterations caps Reason/Plan -> Act round-trips per turn.
	MaxIterations int

	// MaxToolCalls caps total tool invocations across the whole run (0 =
	// unlimited).
	MaxToolCalls int

	// Breaker detects the agent repeating an identical tool call; nil
	// disables the check.
	Breaker *LoopBreaker

	// DefaultParams seeds the InferenceParams passed to the provider when
	// no phase-specific override is supplied by the caller.
	DefaultParams models.InferenceParams
}

// DefaultConfig returns the spec default of 10 iterations, unlimited tool
// calls, and a fresh loop breaker.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 10,
		MaxToolCalls:  0,
		Breaker:       NewLoopBreaker(DefaultLoopBreakerConfig()),
	}
}

// Result is the outcome of one ORPAR run.
type Result struct {
	FinalMessage  models.ConversationMessage
	Iterations    int
	ToolCallCount int
	Usage         TokenUsage
}

// Loop drives the Observe -> Reason -> Plan -> Act -> Reflect cycle for one
// agent turn, grounded on the teacher's AgenticLoop state machine
// generalized onto the spec's five named phases.
type Loop struct {
	agentID    string
	provider   Provider
	dispatcher *tools.Dispatcher
	history    *convo.History
	view       *bus.ChannelView
	cfg        Config

	// inference resolves per-phase InferenceParams (C6, spec §4.6). Nil
	// falls back to cfg.DefaultParams unchanged, so tests that build a
	// Loop without a Service keep working.
	inference *inference.Service

	// exemptTools are tool names this agent's circuit breaker never
	// observes (models.Agent.CircuitBreakerExemptTools, invariant #7).
	exemptTools map[string]bool
}

// NewLoop builds a Loop for agentID. view may be nil to suppress bus
// emission (e.g. in tests); infer may be nil to skip C6 resolution
// entirely and always use cfg.DefaultParams.
func NewLoop(provider Provider, dispatcher *tools.Dispatcher, history *convo.History, view *bus.ChannelView, cfg Config, agentID string, infer *inference.Service) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewLoopBreaker(DefaultLoopBreakerConfig())
	}
	return &Loop{agentID: agentID, provider: provider, dispatcher: dispatcher, history: history, view: view, cfg: cfg, inference: infer}
}

// SetCircuitBreakerExempt restricts which tool names this loop's breaker
// ignores (spec invariant #7: a tool in the agent's exempt set never
// trips CIRCUIT_OPEN no matter how often it repeats).
func (l *Loop) SetCircuitBreakerExempt(exempt map[string]bool) {
	l.exemptTools = exempt
}

// inferencePhase maps an ORPAR phase onto the inference package's PhaseName
// (the two packages intentionally use different string vocabularies to
// avoid a cyclic import; see internal/inference.PhaseName).
func inferencePhase(p Phase) inference.PhaseName {
	switch p {
	case PhaseObserve:
		return inference.PhaseObservation
	case PhaseReason:
		return inference.PhaseReasoning
	case PhasePlan:
		return inference.PhasePlanning
	case PhaseAct:
		return inference.PhaseAction
	case PhaseReflect:
		return inference.PhaseReflection
	default:
		return inference.PhaseReasoning
	}
}

// resolveParams returns the effective InferenceParams for the given phase:
// C6 resolution when a Service is configured, cfg.DefaultParams otherwise.
func (l *Loop) resolveParams(channelID string, phase Phase) models.InferenceParams {
	if l.inference == nil {
		return l.cfg.DefaultParams
	}
	return l.inference.Resolve(l.agentID, channelID, inferencePhase(phase))
}

func (l *Loop) emit(ctx context.Context, phase Phase, data any) {
	if l.view == nil {
		return
	}
	_ = l.view.Emit(ctx, eventTypeForPhase(phase), data)
}

// Run executes one turn: it appends inbound to sessionID's history
// (Observe), alternates Reason+Plan completions with Act tool dispatch
// until the assistant stops requesting tools or MaxIterations is hit
// (Reflect), and returns the final assistant message.
func (l *Loop) Run(ctx context.Context, sessionID, channelID string, inbound models.ConversationMessage, toolCatalog []models.ToolDescriptor) (Result, error) {
	if l.provider == nil {
		return Result{}, mxferrors.New(mxferrors.OperationFailed, "orpar loop has no provider configured")
	}

	// Observe: the inbound message joins the history every run starts from.
	l.history.EnforcePairing(ctx, sessionID)
	observed := l.history.Append(ctx, sessionID, inbound)
	l.emit(ctx, PhaseObserve, observed)

	// A fresh window per turn, sliding across every iteration of this run
	// so a pattern repeating across iterations (not just consecutively)
	// still trips the breaker.
	l.cfg.Breaker.Reset()

	var result Result
	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		result.Iterations = iteration

		msgs := l.history.Messages(sessionID)
		params := l.resolveParams(channelID, PhaseReason)
		resp, err := l.provider.Complete(ctx, CompletionRequest{
			Messages: msgs,
			Tools:    toolCatalog,
			Params:   params,
			Phase:    PhaseReason,
		})
		if err != nil {
			return result, mxferrors.Wrap(mxferrors.OperationFailed, err, "inference call failed on iteration %d", iteration)
		}
		if l.inference != nil {
			l.inference.RecordUsage(inferencePhase(PhaseReason), params.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, time.Now())
			// next_call and current_phase overrides are consumed by the
			// single Reason/Plan completion call this loop makes per
			// iteration; session and task overrides outlive it.
			l.inference.ExpireScope(models.ScopeNextCall)
			l.inference.ExpireScope(models.ScopeCurrentPhase)
		}
		l.emit(ctx, PhaseReason, resp)
		l.emit(ctx, PhasePlan, resp.ToolCalls)

		result.Usage.PromptTokens += resp.Usage.PromptTokens
		result.Usage.CompletionTokens += resp.Usage.CompletionTokens

		assistantMsg := l.history.Append(ctx, sessionID, models.ConversationMessage{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			l.emit(ctx, PhaseReflect, assistantMsg)
			result.FinalMessage = assistantMsg
			return result, nil
		}

		// Act: dispatch every requested tool call, enforcing the loop
		// breaker and the MaxToolCalls budget before each dispatch.
		for _, call := range resp.ToolCalls {
			if l.cfg.MaxToolCalls > 0 && result.ToolCallCount >= l.cfg.MaxToolCalls {
				return l.terminateOnBudget(ctx, sessionID, result)
			}
			if !l.exemptTools[call.Name] {
				if err := l.cfg.Breaker.Observe(call); err != nil {
					return l.terminateOnLoopDetected(ctx, sessionID, result, err)
				}
			}

			toolResult := l.dispatcher.Dispatch(ctx, channelID, call)
			result.ToolCallCount++
			l.emit(ctx, PhaseAct, toolResult)

			l.history.Append(ctx, sessionID, models.ConversationMessage{
				Role:       models.RoleTool,
				ToolResult: &toolResult,
			})
		}

		reflectMsgs := l.history.Messages(sessionID)
		l.emit(ctx, PhaseReflect, reflectMsgs[len(reflectMsgs)-1])
	}

	return l.terminateOnIterationCap(ctx, sessionID, result)
}

func (l *Loop) terminateOnIterationCap(ctx context.Context, sessionID string, result Result) (Result, error) {
	msg := l.history.Append(ctx, sessionID, models.ConversationMessage{
		Role:    models.RoleAssistant,
		Content: fmt.Sprintf("Reached the maximum of %d iterations without completing; stopping.", result.Iterations),
	})
	l.emit(ctx, PhaseReflect, msg)
	result.FinalMessage = msg
	return result, nil
}

func (l *Loop) terminateOnLoopDetected(ctx context.Context, sessionID string, result Result, cause error) (Result, error) {
	msg := l.history.Append(ctx, sessionID, models.ConversationMessage{
		Role:    models.RoleAssistant,
		Content: "Stopped after detecting a repeated tool call loop: " + cause.Error(),
	})
	l.emit(ctx, PhaseReflect, msg)
	result.FinalMessage = msg
	return result, cause
}

func (l *Loop) terminateOnBudget(ctx context.Context, sessionID string, result Result) (Result, error) {
	msg := l.history.Append(ctx, sessionID, models.ConversationMessage{
		Role:    models.RoleAssistant,
		Content: fmt.Sprintf("Stopped after reaching the %d tool call budget for this turn.", l.cfg.MaxToolCalls),
	})
	l.emit(ctx, PhaseReflect, msg)
	result.FinalMessage = msg
	return result, nil
}
