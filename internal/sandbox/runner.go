package sandbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CodeHash returns the audit key for code: the first 16 hex characters of
// its SHA-256 digest (spec §4.8: "identical code produces identical
// hashes; different code does not").
func CodeHash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])[:16]
}

// RunRequest is one code_execute invocation's input.
type RunRequest struct {
	Code           string
	Language       string // javascript | typescript
	Timeout        time.Duration
	Context        map[string]any
	CaptureConsole bool
}

// RunResult is one code_execute invocation's raw output, before it is
// wrapped into a models.CodeExecutionRecord.
type RunResult struct {
	Output      string
	Logs        []string
	MemoryBytes int64
	TimedOut    bool
}

// Runner executes one validated code string in an isolated environment.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}

// consoleDelimiter separates captured console output from the final
// returned value in the harness script's stdout, since both share one
// stream.
const consoleDelimiter = "\x00MXF_SANDBOX_RESULT\x00"

// dockerRunner runs code in a short-lived `docker run --rm` container,
// grounded on the teacher's dockerExecutor.Run/baseDockerArgs
// (internal/tools/sandbox/executor.go) narrowed to the two languages
// the spec names. TypeScript execution assumes the image has ts-node
// preinstalled; no npm install is attempted at run time since the
// container has no network access.
type dockerRunner struct {
	image          string // overridable for tests
	memLimitMB     int
	cpuLimit       float64
	networkEnabled bool
}

// NewDockerRunner builds a Runner backed by the local docker CLI.
func NewDockerRunner() Runner {
	return &dockerRunner{image: "node:20-alpine", memLimitMB: 256, cpuLimit: 0.5}
}

func (d *dockerRunner) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	script, err := buildHarness(req)
	if err != nil {
		return RunResult{}, err
	}

	args := []string{"run", "--rm", "-i"}
	if !d.networkEnabled {
		args = append(args, "--network", "none")
	}
	args = append(args,
		"--cpus", fmt.Sprintf("%.2f", d.cpuLimit),
		"--memory", fmt.Sprintf("%dm", d.memLimitMB),
		"--memory-swap", fmt.Sprintf("%dm", d.memLimitMB),
		"--pids-limit", "100",
	)
	args = append(args, d.image)
	args = append(args, runCommandFor(req.Language)...)

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdin = strings.NewReader(script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return RunResult{TimedOut: true}, nil
	}
	if runErr != nil {
		return RunResult{}, fmt.Errorf("sandbox execution failed: %w: %s", runErr, strings.TrimSpace(stderr.String()))
	}

	logs, output := splitHarnessOutput(stdout.String())
	return RunResult{Output: output, Logs: logs}, nil
}

func runCommandFor(language string) []string {
	if language == "typescript" {
		return []string{"node", "--loader", "ts-node/esm", "/dev/stdin"}
	}
	return []string{"node", "/dev/stdin"}
}

// buildHarness wraps user code in an IIFE with a read-only `context`
// object, optionally capturing console.* calls, and prints the returned
// value after a delimiter so it can be separated from captured logs.
func buildHarness(req RunRequest) (string, error) {
	ctxJSON, err := json.Marshal(req.Context)
	if err != nil {
		return "", fmt.Errorf("encoding sandbox context: %w", err)
	}

	var b strings.Builder
	b.WriteString("const context = Object.freeze(")
	b.Write(ctxJSON)
	b.WriteString(");\n")

	if req.CaptureConsole {
		b.WriteString("const __logs = [];\n")
		b.WriteString("const __origLog = console.log;\n")
		b.WriteString("console.log = (...a) => { __logs.push(a.map(String).join(' ')); };\n")
	}

	b.WriteString("const __result = (function() {\n")
	b.WriteString(req.Code)
	b.WriteString("\n})();\n")

	if req.CaptureConsole {
		b.WriteString("console.log = __origLog;\n")
		b.WriteString("process.stdout.write(JSON.stringify(__logs));\n")
	} else {
		b.WriteString("process.stdout.write('[]');\n")
	}
	b.WriteString(fmt.Sprintf("process.stdout.write(%q);\n", consoleDelimiter))
	b.WriteString("process.stdout.write(JSON.stringify(__result === undefined ? null : __result));\n")

	return b.String(), nil
}

func splitHarnessOutput(raw string) (logs []string, output string) {
	idx := strings.Index(raw, consoleDelimiter)
	if idx < 0 {
		return nil, raw
	}
	logsJSON := raw[:idx]
	output = raw[idx+len(consoleDelimiter):]

	var parsed []string
	if err := json.Unmarshal([]byte(logsJSON), &parsed); err == nil {
		logs = parsed
	}
	return logs, output
}

// dockerAvailable reports whether the docker CLI is reachable, used to
// gracefully degrade code_execute instead of crashing the runtime (spec
// §4.8: "Docker unavailable -> the tool is unavailable ... must never
// crash the runtime").
func dockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "info")
	return cmd.Run() == nil
}
