package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mxf-project/mxf/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchBuiltinSuccess(t *testing.T) {
	r := NewRegistry()
	r.RegisterGlobal(models.ToolDescriptor{Name: "echo"}, func(ctx context.Context, args json.RawMessage) (string, error) {
		return "echoed:" + string(args), nil
	})
	d := NewDispatcher(r, nil, nil)

	result := d.Dispatch(context.Background(), "c1", models.ToolCall{ToolCallID: "tc1", Name: "echo", Arguments: json.RawMessage(`"hi"`)})
	assert.True(t, result.Success)
	assert.Equal(t, `echoed:"hi"`, result.Content)
	assert.Equal(t, "tc1", result.ToolCallID)
}

func TestDispatchToolNotFound(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, nil, nil)
	result := d.Dispatch(context.Background(), "c1", models.ToolCall{ToolCallID: "tc1", Name: "missing"})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestDispatchSchemaValidationFailure(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["query"],"properties":{"query":{"type":"string"}}}`)
	r := NewRegistry()
	r.RegisterGlobal(models.ToolDescriptor{Name: "search", InputSchema: schema}, func(ctx context.Context, args json.RawMessage) (string, error) {
		return "ok", nil
	})
	d := NewDispatcher(r, nil, nil)

	result := d.Dispatch(context.Background(), "c1", models.ToolCall{ToolCallID: "tc1", Name: "search", Arguments: json.RawMessage(`{}`)})
	assert.False(t, result.Success)
}

func TestDispatchSchemaValidationSuccess(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["query"],"properties":{"query":{"type":"string"}}}`)
	r := NewRegistry()
	r.RegisterGlobal(models.ToolDescriptor{Name: "search", InputSchema: schema}, func(ctx context.Context, args json.RawMessage) (string, error) {
		return "ok", nil
	})
	d := NewDispatcher(r, nil, nil)

	result := d.Dispatch(context.Background(), "c1", models.ToolCall{ToolCallID: "tc1", Name: "search", Arguments: json.RawMessage(`{"query":"go"}`)})
	assert.True(t, result.Success)
}

type stubExternal struct {
	called bool
}

func (s *stubExternal) Dispatch(ctx context.Context, source models.ToolSource, name string, args json.RawMessage) (string, error) {
	s.called = true
	return "external-result", nil
}

func TestDispatchRoutesToExternal(t *testing.T) {
	r := NewRegistry()
	r.RegisterGlobal(models.ToolDescriptor{Name: "weather", Source: models.ExternalSource("srv1")}, nil)
	ext := &stubExternal{}
	d := NewDispatcher(r, ext, nil)

	result := d.Dispatch(context.Background(), "c1", models.ToolCall{ToolCallID: "tc1", Name: "weather"})
	require.True(t, ext.called)
	assert.True(t, result.Success)
	assert.Equal(t, "external-result", result.Content)
}

func TestNormalizeToolCallFormats(t *testing.T) {
	oa, err := NormalizeToolCall(FormatOpenAI, json.RawMessage(`{"id":"c1","function":{"name":"search","arguments":"{\"q\":1}"}}`))
	require.NoError(t, err)
	assert.Equal(t, "search", oa.Name)
	assert.Equal(t, "c1", oa.ToolCallID)

	an, err := NormalizeToolCall(FormatAnthropic, json.RawMessage(`{"id":"c2","type":"tool_use","name":"fetch","input":{"url":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, "fetch", an.Name)

	gen, err := NormalizeToolCall(FormatGeneric, json.RawMessage(`{"name":"code_execute","parameters":{"code":"1+1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "code_execute", gen.Name)
}
