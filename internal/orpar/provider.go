package orpar

import (
	"context"

	"github.com/mxf-project/mxf/pkg/models"
)

// CompletionRequest is one inference call's input, grounded on the
// teacher's LLMProvider call shape in internal/agent/loop.go generalized
// to carry an explicit ORPAR phase and resolved InferenceParams instead
// of a flat max-tokens/model pair.
type CompletionRequest struct {
	Messages []models.ConversationMessage
	Tools    []models.ToolDescriptor
	Params   models.InferenceParams
	Phase    Phase
}

// TokenUsage reports the token cost of one completion call, fed into the
// inference cost analytics aggregation (C6).
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse is one inference call's output.
type CompletionResponse struct {
	Content      string
	ToolCalls    []models.ToolCall
	FinishReason string
	Usage        TokenUsage
}

// Provider is the minimal contract every LLM adapter (Anthropic, OpenAI,
// Bedrock) implements for the ORPAR loop to drive inference, mirroring
// the teacher's LLMProvider interface.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
