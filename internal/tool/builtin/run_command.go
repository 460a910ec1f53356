package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/pocketomega/codex-core/internal/tool"
)

const (
	defaultTimeoutSec = 60
	maxCapturedChars  = 50000
)

// RunCommandTool starts a subprocess with a stripped environment, captures
// stdout/stderr up to maxCapturedChars each, and enforces a kill-tree
// timeout. Its policy requires approval (see internal/policy).
type RunCommandTool struct{}

func NewRunCommandTool() *RunCommandTool { return &RunCommandTool{} }

func (t *RunCommandTool) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "RunCommand",
		Description: "Runs a subprocess with the given executable and arguments, capturing stdout/stderr.",
		InputSchema: tool.BuildSchema(
			tool.SchemaParam{Name: "exe", Type: "string", Description: "executable to run", Required: true},
			tool.SchemaParam{Name: "args", Type: "string", Description: "JSON array of string arguments"},
			tool.SchemaParam{Name: "cwd", Type: "string", Description: "workspace-relative working directory"},
			tool.SchemaParam{Name: "timeoutSec", Type: "integer", Description: "timeout in seconds (default 60)"},
		),
		Policy: tool.Policy{RequiresApproval: true, Risk: tool.RiskHigh},
	}
}

// RunCommandArgs is exported so the policy engine can re-parse the same
// argument shape when deciding whether a particular exe is denylisted.
type RunCommandArgs struct {
	Exe        string   `json:"exe"`
	Args       []string `json:"args"`
	Cwd        string   `json:"cwd"`
	TimeoutSec int      `json:"timeoutSec"`
}

type runCommandData struct {
	Command         string `json:"command"`
	ExitCode        int    `json:"exitCode"`
	DurationMs      int64  `json:"durationMs"`
	StdoutTruncated bool   `json:"stdoutTruncated"`
	StderrTruncated bool   `json:"stderrTruncated"`
}

func (t *RunCommandTool) Execute(ctx context.Context, args json.RawMessage, ectx tool.ExecContext) (tool.Result, error) {
	var a RunCommandArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Failure("ArgsParseError", fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}
	if a.Exe == "" {
		return tool.Failure("InvalidArgs", "exe must not be empty"), nil
	}

	cwd := ectx.RepoRoot
	if a.Cwd != "" {
		resolved, fail := resolveOrFail(ectx.Guard, a.Cwd)
		if fail != nil {
			return *fail, nil
		}
		cwd = resolved
	}

	timeoutSec := a.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = defaultTimeoutSec
	}
	timeout := time.Duration(timeoutSec) * time.Second

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.Exe, a.Args...)
	cmd.Dir = cwd
	cmd.Env = filterEnv(os.Environ())
	setNewProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return tool.Failure("Timeout", fmt.Sprintf("timed out after %ds", timeoutSec)), nil
	}

	outStr, outTrunc := safeRuneTruncate(stdout.String(), maxCapturedChars)
	errStr, errTrunc := safeRuneTruncate(stderr.String(), maxCapturedChars)

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return tool.FailureWithDetails("ExecError", "failed to start command", runErr.Error()), nil
		}
	}

	data := runCommandData{
		Command:         commandString(a),
		ExitCode:        exitCode,
		DurationMs:      duration.Milliseconds(),
		StdoutTruncated: outTrunc,
		StderrTruncated: errTrunc,
	}

	result := tool.Result{
		OK:     exitCode == 0,
		Stdout: outStr,
		Stderr: errStr,
		Data:   data,
	}
	if exitCode != 0 {
		result.Diagnostics = []tool.Diagnostic{{
			Code:    "ExitCode",
			Message: fmt.Sprintf("command exited with status %d", exitCode),
		}}
	}
	return result, nil
}

func commandString(a RunCommandArgs) string {
	s := a.Exe
	for _, arg := range a.Args {
		s += " " + arg
	}
	return s
}
