package tools

import (
	"encoding/json"

	"github.com/mxf-project/mxf/pkg/models"
)

// ProviderFormat identifies the shape a given LLM provider emits tool
// calls in, so the dispatch layer can normalize all of them into the
// canonical models.ToolCall before resolution (spec §4.4).
type ProviderFormat string

const (
	FormatOpenAI   ProviderFormat = "openai"   // {id, function: {name, arguments}}
	FormatAnthropic ProviderFormat = "anthropic" // {id, type: "tool_use", name, input}
	FormatGeneric  ProviderFormat = "generic"  // {name, args} or {name, parameters}
)

type openAICall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type anthropicCall struct {
	ID    string          `json:"id"`
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type genericCall struct {
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args"`
	Parameters json.RawMessage `json:"parameters"`
}

// NormalizeToolCall converts a provider-native tool-call payload into the
// canonical models.ToolCall shape used everywhere downstream of the
// provider adapters.
func NormalizeToolCall(format ProviderFormat, raw json.RawMessage) (models.ToolCall, error) {
	switch format {
	case FormatOpenAI:
		var c openAICall
		if err := json.Unmarshal(raw, &c); err != nil {
			return models.ToolCall{}, err
		}
		return models.ToolCall{
			ToolCallID: c.ID,
			Name:       c.Function.Name,
			Arguments:  json.RawMessage(c.Function.Arguments),
		}, nil

	case FormatAnthropic:
		var c anthropicCall
		if err := json.Unmarshal(raw, &c); err != nil {
			return models.ToolCall{}, err
		}
		return models.ToolCall{
			ToolCallID: c.ID,
			Name:       c.Name,
			Arguments:  c.Input,
		}, nil

	default: // FormatGeneric
		var c genericCall
		if err := json.Unmarshal(raw, &c); err != nil {
			return models.ToolCall{}, err
		}
		args := c.Args
		if len(args) == 0 {
			args = c.Parameters
		}
		return models.ToolCall{Name: c.Name, Arguments: args}, nil
	}
}
