package providers

import (
	"context"

	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/internal/orpar"
)

// BedrockProvider and GoogleProvider are documented extension points for
// AWS Bedrock and Google Gemini, mirroring the teacher's provider set
// (bedrock.go, google.go) without pulling in the AWS or Google SDKs: a
// deployment wiring either in would add the real SDK client here and
// satisfy the same orpar.Provider contract as AnthropicProvider and
// OpenAIProvider above, with no changes required anywhere else in the
// ORPAR loop.

// BedrockProvider is an unimplemented orpar.Provider for AWS Bedrock
// foundation models. Constructing one documents the extension point; the
// real implementation would wrap bedrockruntime.Client.Converse the way
// AnthropicProvider wraps anthropic.MessageService.New.
type BedrockProvider struct {
	name string
}

// NewBedrockProvider returns the Bedrock extension-point stub.
func NewBedrockProvider() *BedrockProvider {
	return &BedrockProvider{name: "bedrock"}
}

// Complete always reports the provider as unconfigured.
func (p *BedrockProvider) Complete(ctx context.Context, req orpar.CompletionRequest) (orpar.CompletionResponse, error) {
	return orpar.CompletionResponse{}, mxferrors.New(mxferrors.OperationFailed, "bedrock provider is a documented extension point and is not wired to a live client")
}

// GoogleProvider is an unimplemented orpar.Provider for Google Gemini. The
// real implementation would wrap genai.Client.Models.GenerateContent the
// way OpenAIProvider wraps openai.Client.CreateChatCompletion.
type GoogleProvider struct {
	name string
}

// NewGoogleProvider returns the Gemini extension-point stub.
func NewGoogleProvider() *GoogleProvider {
	return &GoogleProvider{name: "google"}
}

// Complete always reports the provider as unconfigured.
func (p *GoogleProvider) Complete(ctx context.Context, req orpar.CompletionRequest) (orpar.CompletionResponse, error) {
	return orpar.CompletionResponse{}, mxferrors.New(mxferrors.OperationFailed, "gemini provider is a documented extension point and is not wired to a live client")
}
