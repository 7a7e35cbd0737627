package orpar

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mxf-project/mxf/internal/convo"
	"github.com/mxf-project/mxf/internal/inference"
	"github.com/mxf-project/mxf/internal/tools"
	"github.com/mxf-project/mxf/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider replays a fixed sequence of CompletionResponses, one per
// Complete call, so tests can script a multi-iteration run deterministically.
type stubProvider struct {
	responses  []CompletionResponse
	calls      int
	seenParams []models.InferenceParams
}

func (s *stubProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if s.calls >= len(s.responses) {
		return CompletionResponse{}, assertErr("stubProvider: out of scripted responses")
	}
	s.seenParams = append(s.seenParams, req.Params)
	r := s.responses[s.calls]
	s.calls++
	return r, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func newTestDispatcher(t *testing.T) (*tools.Dispatcher, *tools.Registry) {
	t.Helper()
	reg := tools.NewRegistry()
	reg.RegisterGlobal(models.ToolDescriptor{Name: "echo"}, func(ctx context.Context, args json.RawMessage) (string, error) {
		return `{"ok":true}`, nil
	})
	return tools.NewDispatcher(reg, nil, nil), reg
}

func TestLoopCompletesWithoutToolCalls(t *testing.T) {
	provider := &stubProvider{responses: []CompletionResponse{
		{Content: "hello there"},
	}}
	dispatcher, _ := newTestDispatcher(t)
	history := convo.NewHistory()
	loop := NewLoop(provider, dispatcher, history, nil, DefaultConfig(), "agent-1", nil)

	result, err := loop.Run(context.Background(), "s1", "c1", models.ConversationMessage{
		Role: models.RoleUser, Content: "hi",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.FinalMessage.Content)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 0, result.ToolCallCount)
}

func TestLoopDispatchesToolCallsThenCompletes(t *testing.T) {
	provider := &stubProvider{responses: []CompletionResponse{
		{ToolCalls: []models.ToolCall{{ToolCallID: "t1", Name: "echo", Arguments: json.RawMessage(`{}`)}}},
		{Content: "done"},
	}}
	dispatcher, _ := newTestDispatcher(t)
	history := convo.NewHistory()
	loop := NewLoop(provider, dispatcher, history, nil, DefaultConfig(), "agent-1", nil)

	result, err := loop.Run(context.Background(), "s1", "c1", models.ConversationMessage{
		Role: models.RoleUser, Content: "run echo",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", result.FinalMessage.Content)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 1, result.ToolCallCount)

	msgs := history.Messages("s1")
	var sawToolResult bool
	for _, m := range msgs {
		if m.ToolResult != nil && m.ToolResult.ToolCallID == "t1" {
			sawToolResult = true
			assert.True(t, m.ToolResult.Success)
		}
	}
	assert.True(t, sawToolResult)
}

func TestLoopStopsAtMaxIterations(t *testing.T) {
	call := models.ToolCall{ToolCallID: "t1", Name: "echo", Arguments: json.RawMessage(`{"n":1}`)}
	responses := make([]CompletionResponse, 0, 5)
	for i := 0; i < 5; i++ {
		responses = append(responses, CompletionResponse{ToolCalls: []models.ToolCall{call}})
	}
	provider := &stubProvider{responses: responses}
	dispatcher, _ := newTestDispatcher(t)
	history := convo.NewHistory()

	cfg := DefaultConfig()
	cfg.MaxIterations = 2
	cfg.Breaker = NewLoopBreaker(LoopBreakerConfig{MaxRepeats: 100}) // disable breaker for this test
	loop := NewLoop(provider, dispatcher, history, nil, cfg, "agent-1", nil)

	result, err := loop.Run(context.Background(), "s1", "c1", models.ConversationMessage{Role: models.RoleUser, Content: "loop"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Iterations)
	assert.Contains(t, result.FinalMessage.Content, "maximum")
}

func TestLoopBreakerStopsRepeatedIdenticalCalls(t *testing.T) {
	call := models.ToolCall{ToolCallID: "t1", Name: "echo", Arguments: json.RawMessage(`{"n":1}`)}
	responses := make([]CompletionResponse, 0, 10)
	for i := 0; i < 10; i++ {
		responses = append(responses, CompletionResponse{ToolCalls: []models.ToolCall{call}})
	}
	provider := &stubProvider{responses: responses}
	dispatcher, _ := newTestDispatcher(t)
	history := convo.NewHistory()

	cfg := DefaultConfig()
	cfg.MaxIterations = 10
	cfg.Breaker = NewLoopBreaker(LoopBreakerConfig{MaxRepeats: 3})
	loop := NewLoop(provider, dispatcher, history, nil, cfg, "agent-1", nil)

	result, err := loop.Run(context.Background(), "s1", "c1", models.ConversationMessage{Role: models.RoleUser, Content: "loop"}, nil)
	require.Error(t, err)
	assert.Contains(t, result.FinalMessage.Content, "repeated tool call loop")
	assert.Less(t, result.Iterations, 10)
}

func TestLoopRespectsMaxToolCallBudget(t *testing.T) {
	responses := []CompletionResponse{
		{ToolCalls: []models.ToolCall{
			{ToolCallID: "t1", Name: "echo", Arguments: json.RawMessage(`{"a":1}`)},
			{ToolCallID: "t2", Name: "echo", Arguments: json.RawMessage(`{"a":2}`)},
		}},
	}
	provider := &stubProvider{responses: responses}
	dispatcher, _ := newTestDispatcher(t)
	history := convo.NewHistory()

	cfg := DefaultConfig()
	cfg.MaxToolCalls = 1
	loop := NewLoop(provider, dispatcher, history, nil, cfg, "agent-1", nil)

	result, err := loop.Run(context.Background(), "s1", "c1", models.ConversationMessage{Role: models.RoleUser, Content: "budget"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ToolCallCount)
	assert.Contains(t, result.FinalMessage.Content, "budget")
}

func TestAgentRuntimeProcessFiltersCatalog(t *testing.T) {
	dispatcher, registry := newTestDispatcher(t)
	registry.RegisterGlobal(models.ToolDescriptor{Name: "secret"}, func(ctx context.Context, args json.RawMessage) (string, error) {
		return "{}", nil
	})
	provider := &stubProvider{responses: []CompletionResponse{{Content: "ok"}}}
	history := convo.NewHistory()

	rt := NewAgentRuntime("agent-1", "c1", "s1", provider, dispatcher, history, registry, nil, DefaultConfig(), nil)
	rt.SetToolAllowlists(nil, map[string]bool{"echo": true})

	result, err := rt.Process(context.Background(), models.ConversationMessage{Role: models.RoleUser, Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.FinalMessage.Content)
}

func TestLoopResolvesParamsThroughInferenceService(t *testing.T) {
	provider := &stubProvider{responses: []CompletionResponse{{Content: "ok"}}}
	dispatcher, _ := newTestDispatcher(t)
	history := convo.NewHistory()
	infer := inference.NewService("claude-3-5-sonnet-latest")

	_, err := infer.RequestOverride(context.Background(), "agent-1", "c1", inference.PhaseReasoning, "needs more creativity", models.InferenceParams{Temperature: 0.9}, models.ScopeNextCall)
	require.NoError(t, err)

	loop := NewLoop(provider, dispatcher, history, nil, DefaultConfig(), "agent-1", infer)
	_, err = loop.Run(context.Background(), "s1", "c1", models.ConversationMessage{Role: models.RoleUser, Content: "hi"}, nil)
	require.NoError(t, err)

	require.Len(t, provider.seenParams, 1)
	assert.Equal(t, 0.9, provider.seenParams[0].Temperature)

	// next_call is consumed by the call that just completed.
	resolved := infer.Resolve("agent-1", "c1", inference.PhaseReasoning)
	assert.NotEqual(t, 0.9, resolved.Temperature)
}

func TestLoopFallsBackToDefaultParamsWithoutInferenceService(t *testing.T) {
	provider := &stubProvider{responses: []CompletionResponse{{Content: "ok"}}}
	dispatcher, _ := newTestDispatcher(t)
	history := convo.NewHistory()

	cfg := DefaultConfig()
	cfg.DefaultParams = models.InferenceParams{Model: "static-model", Temperature: 0.42}
	loop := NewLoop(provider, dispatcher, history, nil, cfg, "agent-1", nil)

	_, err := loop.Run(context.Background(), "s1", "c1", models.ConversationMessage{Role: models.RoleUser, Content: "hi"}, nil)
	require.NoError(t, err)

	require.Len(t, provider.seenParams, 1)
	assert.Equal(t, "static-model", provider.seenParams[0].Model)
	assert.Equal(t, 0.42, provider.seenParams[0].Temperature)
}

func TestLoopBreakerExemptToolNeverTrips(t *testing.T) {
	call := models.ToolCall{ToolCallID: "t1", Name: "echo", Arguments: json.RawMessage(`{"n":1}`)}
	responses := make([]CompletionResponse, 0, 10)
	for i := 0; i < 9; i++ {
		responses = append(responses, CompletionResponse{ToolCalls: []models.ToolCall{call}})
	}
	responses = append(responses, CompletionResponse{Content: "done"})
	provider := &stubProvider{responses: responses}
	dispatcher, _ := newTestDispatcher(t)
	history := convo.NewHistory()

	cfg := DefaultConfig()
	cfg.MaxIterations = 10
	loop := NewLoop(provider, dispatcher, history, nil, cfg, "agent-1", nil)
	loop.SetCircuitBreakerExempt(map[string]bool{"echo": true})

	result, err := loop.Run(context.Background(), "s1", "c1", models.ConversationMessage{Role: models.RoleUser, Content: "loop"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", result.FinalMessage.Content)
	assert.Equal(t, 9, result.ToolCallCount)
}
