package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mxf-project/mxf/internal/orpar"
	"github.com/mxf-project/mxf/pkg/models"
)

const defaultAnthropicModel = "claude-sonnet-4-5"
const defaultMaxTokens = 4096

// anthropicMessages is the narrow slice of anthropic.MessageService that
// AnthropicProvider depends on, so tests can substitute a fake client
// instead of reaching the network.
type anthropicMessages interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicProvider adapts Anthropic's Messages API to orpar.Provider.
// Unlike the streaming chat-loop shape this is modeled on, ORPAR consumes
// one synchronous completion per phase, so Complete blocks for the whole
// response instead of returning a chunk channel.
type AnthropicProvider struct {
	BaseProvider
	messages     anthropicMessages
	defaultModel string
}

// NewAnthropicProvider builds a provider against the real Anthropic API.
func NewAnthropicProvider(apiKey string, opts ...option.RequestOption) *AnthropicProvider {
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := anthropic.NewClient(clientOpts...)
	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", 3),
		messages:     &client.Messages,
		defaultModel: defaultAnthropicModel,
	}
}

// Complete issues one synchronous Messages.New call, retrying transient
// failures per BaseProvider.Retry.
func (p *AnthropicProvider) Complete(ctx context.Context, req orpar.CompletionRequest) (orpar.CompletionResponse, error) {
	messages, err := anthropicMessageParams(req.Messages)
	if err != nil {
		return orpar.CompletionResponse{}, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req.Params.Model)),
		Messages:  messages,
		MaxTokens: int64(p.maxTokens(req.Params.MaxOutputTokens)),
	}
	if system := systemPrompt(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := anthropicToolParams(req.Tools)
		if err != nil {
			return orpar.CompletionResponse{}, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	var resp *anthropic.Message
	retryErr := p.Retry(ctx, p.isRetryableErr, func() error {
		var callErr error
		resp, callErr = p.messages.New(ctx, params)
		return callErr
	})
	if retryErr != nil {
		return orpar.CompletionResponse{}, p.wrapErr(retryErr, string(params.Model))
	}

	return anthropicResponseToCompletion(resp), nil
}

func (p *AnthropicProvider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func (p *AnthropicProvider) maxTokens(requested int) int {
	if requested <= 0 {
		return defaultMaxTokens
	}
	return requested
}

func (p *AnthropicProvider) isRetryableErr(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason.IsRetryable()
	}
	return IsRetryable(p.wrapErr(err, ""))
}

func (p *AnthropicProvider) wrapErr(err error, model string) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		providerErr := NewProviderError("anthropic", model, err).WithStatus(apiErr.StatusCode)
		providerErr.RequestID = apiErr.RequestID
		return providerErr
	}
	return NewProviderError("anthropic", model, err)
}

// systemPrompt lifts the leading system-role message out of the history,
// since Anthropic carries the system prompt as a separate field rather
// than a message in the conversation.
func systemPrompt(messages []models.ConversationMessage) string {
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			return msg.Content
		}
	}
	return ""
}

func anthropicMessageParams(messages []models.ConversationMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		if msg.ToolResult != nil {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolResult.ToolCallID, msg.ToolResult.Content, !msg.ToolResult.Success))
		}
		for _, call := range msg.ToolCalls {
			var input map[string]any
			if len(call.Arguments) > 0 {
				if err := json.Unmarshal(call.Arguments, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call arguments for %s: %w", call.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(call.ToolCallID, input, call.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func anthropicToolParams(tools []models.ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(tool.InputSchema) > 0 {
			if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("invalid input schema for %s: %w", tool.Name, err)
			}
		}
		result = append(result, anthropic.ToolUnionParamOfTool(schema, tool.Name))
	}
	return result, nil
}

func anthropicResponseToCompletion(resp *anthropic.Message) orpar.CompletionResponse {
	out := orpar.CompletionResponse{
		FinishReason: string(resp.StopReason),
		Usage: orpar.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ToolCallID: tu.ID,
				Name:       tu.Name,
				Arguments:  json.RawMessage(tu.Input),
			})
		}
	}
	return out
}
