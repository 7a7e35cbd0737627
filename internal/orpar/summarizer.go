package orpar

import (
	"context"
	"fmt"

	"github.com/mxf-project/mxf/pkg/models"
)

// ProviderSummarizer adapts a Provider into convo.Summarizer so context-
// window compaction (C3) can ask the agent's own model to summarize the
// messages it is about to evict, rather than falling back to a truncated
// transcript.
type ProviderSummarizer struct {
	provider Provider
	model    string
}

// NewProviderSummarizer builds a summarizer that issues completions
// against model through provider.
func NewProviderSummarizer(provider Provider, model string) *ProviderSummarizer {
	return &ProviderSummarizer{provider: provider, model: model}
}

// Summarize asks the underlying provider for a compact summary of msgs,
// run as a PhaseReflect completion since it reasons over past turns
// rather than producing the next action.
func (s *ProviderSummarizer) Summarize(ctx context.Context, msgs []models.ConversationMessage) (string, error) {
	instruction := models.ConversationMessage{
		Role:    models.RoleSystem,
		Content: "Summarize the following conversation history concisely, preserving any facts, decisions, and open tool calls that later turns may depend on.",
	}

	req := CompletionRequest{
		Messages: append([]models.ConversationMessage{instruction}, msgs...),
		Params:   models.InferenceParams{Model: s.model},
		Phase:    PhaseReflect,
	}
	resp, err := s.provider.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("compaction summary: %w", err)
	}
	return resp.Content, nil
}
