package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mxf-project/mxf/internal/orpar"
	"github.com/mxf-project/mxf/pkg/models"
)

const defaultOpenAIModel = openai.GPT4o

// openAIChatClient is the narrow slice of *openai.Client that
// OpenAIProvider depends on, so tests can substitute a fake instead of
// reaching the network.
type openAIChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider adapts the Chat Completions API to orpar.Provider.
type OpenAIProvider struct {
	BaseProvider
	client       openAIChatClient
	defaultModel string
}

// NewOpenAIProvider builds a provider against the real OpenAI API.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		BaseProvider: NewBaseProvider("openai", 3),
		client:       openai.NewClient(apiKey),
		defaultModel: defaultOpenAIModel,
	}
}

// Complete issues one synchronous CreateChatCompletion call, retrying
// transient failures per BaseProvider.Retry.
func (p *OpenAIProvider) Complete(ctx context.Context, req orpar.CompletionRequest) (orpar.CompletionResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req.Params.Model),
		Messages: openAIMessageParams(req.Messages),
	}
	if req.Params.MaxOutputTokens > 0 {
		chatReq.MaxTokens = req.Params.MaxOutputTokens
	}
	if req.Params.Temperature > 0 {
		chatReq.Temperature = float32(req.Params.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := openAIToolParams(req.Tools)
		if err != nil {
			return orpar.CompletionResponse{}, fmt.Errorf("openai: convert tools: %w", err)
		}
		chatReq.Tools = tools
	}

	var resp openai.ChatCompletionResponse
	retryErr := p.Retry(ctx, p.isRetryableErr, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, chatReq)
		return callErr
	})
	if retryErr != nil {
		return orpar.CompletionResponse{}, p.wrapErr(retryErr, chatReq.Model)
	}

	return openAIResponseToCompletion(resp), nil
}

func (p *OpenAIProvider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func (p *OpenAIProvider) isRetryableErr(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason.IsRetryable()
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatusCode(apiErr.HTTPStatusCode).IsRetryable()
	}
	return IsRetryable(err)
}

func (p *OpenAIProvider) wrapErr(err error, model string) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr := NewProviderError("openai", model, err).WithStatus(apiErr.HTTPStatusCode)
		if code, ok := apiErr.Code.(string); ok {
			providerErr.Code = code
		}
		return providerErr
	}
	return NewProviderError("openai", model, err)
}

func openAIMessageParams(messages []models.ConversationMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleTool:
			if msg.ToolResult != nil {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    msg.ToolResult.Content,
					ToolCallID: msg.ToolResult.ToolCallID,
				})
			}
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			for _, call := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   call.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Arguments),
					},
				})
			}
			result = append(result, oaiMsg)
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		default:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		}
	}
	return result
}

func openAIToolParams(tools []models.ToolDescriptor) ([]openai.Tool, error) {
	result := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var schema map[string]any
		if len(tool.InputSchema) > 0 {
			if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("invalid input schema for %s: %w", tool.Name, err)
			}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		})
	}
	return result, nil
}

func openAIResponseToCompletion(resp openai.ChatCompletionResponse) orpar.CompletionResponse {
	out := orpar.CompletionResponse{
		Usage: orpar.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.FinishReason = string(choice.FinishReason)
	out.Content = choice.Message.Content
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Arguments:  json.RawMessage(call.Function.Arguments),
		})
	}
	return out
}
