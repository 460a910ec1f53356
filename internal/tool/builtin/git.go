package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pocketomega/codex-core/internal/tool"
)

const gitTimeout = 10 * time.Second

func runGit(ctx context.Context, repoRoot string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoRoot
	cmd.Env = filterEnv(os.Environ())

	out, err := cmd.CombinedOutput()
	return strings.TrimRight(string(out), "\n"), err
}

// GitStatusTool wraps `git status --porcelain -b`.
type GitStatusTool struct{}

func NewGitStatusTool() *GitStatusTool { return &GitStatusTool{} }

func (t *GitStatusTool) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "GitStatus",
		Description: "Reports the current git branch and working-tree changes.",
		InputSchema: tool.BuildSchema(),
		Policy:      tool.Policy{IsReadOnly: true, Risk: tool.RiskLow},
	}
}

type gitChange struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

func (t *GitStatusTool) Execute(ctx context.Context, _ json.RawMessage, ectx tool.ExecContext) (tool.Result, error) {
	out, err := runGit(ctx, ectx.RepoRoot, "status", "--porcelain", "-b")
	if err != nil {
		return tool.FailureWithDetails("GitError", "git status failed", err.Error()), nil
	}

	lines := strings.Split(out, "\n")
	branch := ""
	var changes []gitChange
	for i, line := range lines {
		if line == "" {
			continue
		}
		if i == 0 && strings.HasPrefix(line, "##") {
			branch = strings.TrimSpace(strings.TrimPrefix(line, "##"))
			if idx := strings.Index(branch, "..."); idx >= 0 {
				branch = branch[:idx]
			}
			continue
		}
		if len(line) < 4 {
			continue
		}
		changes = append(changes, gitChange{Status: line[:2], Path: strings.TrimSpace(line[3:])})
	}

	return tool.Success(map[string]any{
		"branch":  branch,
		"changes": changes,
		"clean":   len(changes) == 0,
	}), nil
}

// GitDiffTool wraps `git diff [--cached] [-- <file>]`.
type GitDiffTool struct{}

func NewGitDiffTool() *GitDiffTool { return &GitDiffTool{} }

func (t *GitDiffTool) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "GitDiff",
		Description: "Shows the unified diff of working-tree or staged changes, optionally scoped to one file.",
		InputSchema: tool.BuildSchema(
			tool.SchemaParam{Name: "staged", Type: "boolean", Description: "diff the index instead of the working tree"},
			tool.SchemaParam{Name: "file", Type: "string", Description: "workspace-relative path to restrict the diff to"},
		),
		Policy: tool.Policy{IsReadOnly: true, Risk: tool.RiskLow},
	}
}

type gitDiffArgs struct {
	Staged bool   `json:"staged"`
	File   string `json:"file"`
}

func (t *GitDiffTool) Execute(ctx context.Context, args json.RawMessage, ectx tool.ExecContext) (tool.Result, error) {
	var a gitDiffArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Failure("ArgsParseError", fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	gitArgs := []string{"diff"}
	if a.Staged {
		gitArgs = append(gitArgs, "--cached")
	}
	if a.File != "" {
		if _, fail := resolveOrFail(ectx.Guard, a.File); fail != nil {
			return *fail, nil
		}
		gitArgs = append(gitArgs, "--", a.File)
	}

	out, err := runGit(ctx, ectx.RepoRoot, gitArgs...)
	if err != nil {
		return tool.FailureWithDetails("GitError", "git diff failed", err.Error()), nil
	}

	result := tool.Success(map[string]any{
		"staged":  a.Staged,
		"file":    a.File,
		"hasDiff": out != "",
		"diff":    out,
	})
	result.Stdout = out
	return result, nil
}
