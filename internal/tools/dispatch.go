package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/mxf-project/mxf/internal/bus"
	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ExternalDispatcher routes a resolved-but-not-builtin tool call to its
// owning external MCP server (implemented by internal/tools/mcpmgr).
type ExternalDispatcher interface {
	Dispatch(ctx context.Context, source models.ToolSource, name string, args json.RawMessage) (string, error)
}

// Dispatcher runs the resolve -> validate -> execute -> wrap pipeline
// (spec §4.4 step-by-step), emitting mcp.tool_call/result/error bus events
// as it goes. Grounded on the teacher's ToolRegistry.Execute
// (internal/agent/tool_registry.go) generalized to also cover external
// MCP routing and schema validation, which the teacher's builtin-only
// Execute does not do.
type Dispatcher struct {
	registry *Registry
	external ExternalDispatcher
	view     *bus.ChannelView

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema
}

// NewDispatcher builds a Dispatcher. view may be nil if no bus event
// emission is desired (e.g. in unit tests).
func NewDispatcher(registry *Registry, external ExternalDispatcher, view *bus.ChannelView) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		external: external,
		view:     view,
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

func (d *Dispatcher) compile(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	d.schemaMu.Lock()
	defer d.schemaMu.Unlock()
	if compiled, ok := d.schemas[name]; ok {
		return compiled, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".schema.json", bytes.NewReader(schema)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(name + ".schema.json")
	if err != nil {
		return nil, err
	}
	d.schemas[name] = compiled
	return compiled, nil
}

// Dispatch executes one tool call end-to-end, returning the paired
// ToolMessageContent the caller should append to conversation history.
func (d *Dispatcher) Dispatch(ctx context.Context, channelID string, call models.ToolCall) models.ToolMessageContent {
	d.emit(ctx, channelID, "mcp.tool_call", call)

	desc, handler, ok := d.registry.Resolve(channelID, call.Name)
	if !ok {
		return d.fail(ctx, channelID, call, mxferrors.New(mxferrors.ToolNotFound, "tool %q not found", call.Name))
	}

	if schema, err := d.compile(call.Name, desc.InputSchema); err != nil {
		return d.fail(ctx, channelID, call, mxferrors.Wrap(mxferrors.ValidationError, err, "invalid schema for tool %q", call.Name))
	} else if schema != nil {
		var decoded any
		if err := json.Unmarshal(call.Arguments, &decoded); err != nil {
			return d.fail(ctx, channelID, call, mxferrors.Wrap(mxferrors.ValidationError, err, "arguments for %q are not valid JSON", call.Name))
		}
		if err := schema.Validate(decoded); err != nil {
			return d.fail(ctx, channelID, call, mxferrors.Wrap(mxferrors.ValidationError, err, "arguments for %q failed schema validation", call.Name))
		}
	}

	var content string
	var err error
	if handler != nil {
		content, err = handler(ctx, call.Arguments)
	} else if d.external != nil {
		content, err = d.external.Dispatch(ctx, desc.Source, call.Name, call.Arguments)
	} else {
		err = mxferrors.New(mxferrors.OperationFailed, "tool %q has no executable handler", call.Name)
	}
	if err != nil {
		return d.fail(ctx, channelID, call, err)
	}

	result := models.ToolMessageContent{
		ToolCallID:   call.ToolCallID,
		Content:      content,
		IsToolResult: true,
		Success:      true,
	}
	d.emit(ctx, channelID, "mcp.tool_result", result)
	return result
}

func (d *Dispatcher) fail(ctx context.Context, channelID string, call models.ToolCall, err error) models.ToolMessageContent {
	result := models.ToolMessageContent{
		ToolCallID:   call.ToolCallID,
		Content:      err.Error(),
		IsToolResult: true,
		Success:      false,
		Error:        err.Error(),
	}
	d.emit(ctx, channelID, "mcp.tool_error", result)
	return result
}

func (d *Dispatcher) emit(ctx context.Context, channelID, eventType string, data any) {
	if d.view == nil {
		return
	}
	_ = d.view.Emit(ctx, eventType, data)
	_ = channelID
}

