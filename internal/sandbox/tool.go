package sandbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/internal/tools"
	"github.com/mxf-project/mxf/pkg/models"
)

// AuditSink receives a CodeExecutionRecord for every code_execute call,
// successful or not (spec §4.8: "Every execution writes a
// CodeExecutionRecord"), grounded on the teacher's audit.Logger.Log
// shape (internal/audit/logger.go) narrowed to the single record type
// C8 produces.
type AuditSink interface {
	Record(models.CodeExecutionRecord)
}

// codeExecuteArgs is the code_execute tool's JSON argument shape.
type codeExecuteArgs struct {
	Code           string         `json:"code"`
	Language       string         `json:"language"`
	Timeout        int            `json:"timeout,omitempty"` // milliseconds
	Context        map[string]any `json:"context,omitempty"`
	CaptureConsole bool           `json:"captureConsole,omitempty"`
}

// codeExecuteResult is the code_execute tool's JSON response shape
// (spec §4.8).
type codeExecuteResult struct {
	Success       bool                 `json:"success"`
	Output        string               `json:"output,omitempty"`
	Logs          []string             `json:"logs,omitempty"`
	ExecutionTime int64                `json:"executionTime"`
	CodeHash      string               `json:"codeHash"`
	Error         string               `json:"error,omitempty"`
	ResourceUsage models.ResourceUsage `json:"resourceUsage"`
}

var supportedLanguages = map[string]bool{"javascript": true, "typescript": true}

// NewCodeExecuteHandler builds the code_execute builtin tool handler for
// one (agentID, channelID) pair, routing validated code through pool and
// writing an audit record through sink (sink may be nil).
func NewCodeExecuteHandler(pool *Pool, sink AuditSink, agentID, channelID string) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (string, error) {
		var args codeExecuteArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", mxferrors.Wrap(mxferrors.ValidationError, err, "code_execute arguments are not valid JSON")
		}
		if !supportedLanguages[args.Language] {
			return "", mxferrors.New(mxferrors.ValidationError, "unsupported language %q: must be javascript or typescript", args.Language)
		}

		hash := CodeHash(args.Code)

		validation := Validate(args.Code)
		if !validation.Safe {
			result := codeExecuteResult{Success: false, CodeHash: hash, Error: "VALIDATION_ERROR"}
			encoded, _ := json.Marshal(result)
			record(sink, agentID, channelID, hash, args.Language, false, 0, models.ResourceUsage{}, "VALIDATION_ERROR")
			return string(encoded), nil
		}

		start := time.Now()
		runResult, err := pool.Execute(ctx, RunRequest{
			Code:           args.Code,
			Language:       args.Language,
			Timeout:        time.Duration(args.Timeout) * time.Millisecond,
			Context:        args.Context,
			CaptureConsole: args.CaptureConsole,
		})
		elapsed := time.Since(start)

		if err != nil {
			record(sink, agentID, channelID, hash, args.Language, false, elapsed, models.ResourceUsage{}, err.Error())
			result := codeExecuteResult{Success: false, CodeHash: hash, ExecutionTime: elapsed.Milliseconds(), Error: err.Error()}
			encoded, _ := json.Marshal(result)
			return string(encoded), nil
		}

		usage := models.ResourceUsage{MemoryBytes: runResult.MemoryBytes, Timeout: runResult.TimedOut}
		success := !runResult.TimedOut
		errMsg := ""
		if runResult.TimedOut {
			errMsg = "execution timed out"
		}

		record(sink, agentID, channelID, hash, args.Language, success, elapsed, usage, errMsg)

		result := codeExecuteResult{
			Success:       success,
			Output:        runResult.Output,
			Logs:          runResult.Logs,
			ExecutionTime: elapsed.Milliseconds(),
			CodeHash:      hash,
			Error:         errMsg,
			ResourceUsage: usage,
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return "", mxferrors.Wrap(mxferrors.OperationFailed, err, "encoding code_execute result")
		}
		return string(encoded), nil
	}
}

func record(sink AuditSink, agentID, channelID, hash, language string, success bool, elapsed time.Duration, usage models.ResourceUsage, errMsg string) {
	if sink == nil {
		return
	}
	sink.Record(models.CodeExecutionRecord{
		AgentID:       agentID,
		ChannelID:     channelID,
		CodeHash:      hash,
		Language:      language,
		Success:       success,
		ExecutionTime: elapsed,
		ResourceUsage: usage,
		Error:         errMsg,
		ExecutedAt:    time.Now(),
	})
}
