package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pocketomega/codex-core/internal/tool"
)

// ApplyPatchTool applies a unified diff, or a "Begin Patch / Update File /
// Add File / Delete File" envelope, first via `git apply` and falling back
// to an in-process hunk applier. Its policy requires approval (see
// internal/policy).
type ApplyPatchTool struct{}

func NewApplyPatchTool() *ApplyPatchTool { return &ApplyPatchTool{} }

func (t *ApplyPatchTool) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "ApplyPatch",
		Description: "Applies a unified diff (or a Begin/Update/Add/Delete File envelope) to the workspace.",
		InputSchema: tool.BuildSchema(
			tool.SchemaParam{Name: "patch", Type: "string", Description: "unified diff or patch envelope text", Required: true},
		),
		Policy: tool.Policy{RequiresApproval: true, Risk: tool.RiskMedium},
	}
}

type applyPatchArgs struct {
	Patch string `json:"patch"`
}

func (t *ApplyPatchTool) Execute(ctx context.Context, args json.RawMessage, ectx tool.ExecContext) (tool.Result, error) {
	var a applyPatchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Failure("ArgsParseError", fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}
	if strings.TrimSpace(a.Patch) == "" {
		return tool.Failure("InvalidArgs", "patch must not be empty"), nil
	}

	if tryGitApply(ctx, ectx.RepoRoot, a.Patch) {
		return tool.Success(map[string]any{"strategy": "git apply"}), nil
	}

	patches, err := parsePatchText(a.Patch)
	if err != nil {
		return tool.Failure("ParsePatchError", fmt.Sprintf("failed to parse patch: %v", err)), nil
	}
	if len(patches) == 0 {
		return tool.Failure("ParsePatchError", "patch contains no file sections"), nil
	}

	var applied []string
	var failed []map[string]string

	for _, p := range patches {
		target := p.NewPath
		if target == "" {
			target = p.OldPath
		}
		path, fail := resolveOrFail(ectx.Guard, target)
		if fail != nil {
			failed = append(failed, map[string]string{"path": target, "reason": "unsafe path"})
			continue
		}
		if err := applyFilePatch(path, p); err != nil {
			failed = append(failed, map[string]string{"path": target, "reason": err.Error()})
			continue
		}
		applied = append(applied, target)
	}

	if len(applied) == 0 {
		return tool.FailureWithDetails("ApplyFailed", "patch failed to apply to any file",
			fmt.Sprintf("%v", failed)), nil
	}

	result := tool.Success(map[string]any{"appliedFiles": applied, "failedPatches": failed})
	if len(failed) > 0 {
		result.Diagnostics = []tool.Diagnostic{{
			Code:    "PartialApply",
			Message: fmt.Sprintf("%d of %d file patches applied", len(applied), len(patches)),
		}}
	}
	return result, nil
}

// tryGitApply attempts `git apply --check` then `git apply`, both fed the
// patch text over stdin. Returns true only if both succeed.
func tryGitApply(ctx context.Context, repoRoot, patch string) bool {
	if repoRoot == "" {
		return false
	}
	if !gitApplyRun(ctx, repoRoot, patch, "--check") {
		return false
	}
	return gitApplyRun(ctx, repoRoot, patch, "")
}

func gitApplyRun(ctx context.Context, repoRoot, patch, extraFlag string) bool {
	args := []string{"apply"}
	if extraFlag != "" {
		args = append(args, extraFlag)
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoRoot
	cmd.Stdin = strings.NewReader(patch)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	return cmd.Run() == nil
}

// filePatch is the normalized (old_path?, new_path?, is_delete, hunks[])
// tuple the in-process applier works from.
type filePatch struct {
	OldPath  string
	NewPath  string
	IsDelete bool
	Hunks    []hunk
}

type hunk struct {
	OldStart int
	OldCount int
	Lines    []string // each prefixed with ' ', '+', or '-'
}

var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

func stripPrefix(path string) string {
	switch {
	case path == "/dev/null":
		return ""
	case strings.HasPrefix(path, "a/"):
		return path[2:]
	case strings.HasPrefix(path, "b/"):
		return path[2:]
	default:
		return path
	}
}

// parsePatchText recognizes both a raw unified diff (---/+++ headers) and a
// "*** Begin Patch" envelope (Update File:/Add File:/Delete File: headers),
// sharing the same @@ hunk-body parser either way.
func parsePatchText(text string) ([]filePatch, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	envelope := false
	for _, l := range lines {
		if strings.Contains(l, "Begin Patch") {
			envelope = true
			break
		}
	}
	if envelope {
		return parseEnvelopePatch(lines)
	}
	return parseUnifiedPatch(lines)
}

func parseUnifiedPatch(lines []string) ([]filePatch, error) {
	var patches []filePatch
	i := 0
	for i < len(lines) {
		line := lines[i]
		if !strings.HasPrefix(line, "--- ") {
			i++
			continue
		}
		if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+++ ") {
			return nil, fmt.Errorf("malformed diff header at line %d", i+1)
		}
		oldHeader := stripPrefix(strings.TrimSpace(strings.TrimPrefix(line, "--- ")))
		newHeader := stripPrefix(strings.TrimSpace(strings.TrimPrefix(lines[i+1], "+++ ")))
		p := filePatch{OldPath: oldHeader, NewPath: newHeader, IsDelete: newHeader == "" && oldHeader != ""}
		i += 2

		hunks, next, err := consumeHunks(lines, i, func(l string) bool {
			return strings.HasPrefix(l, "--- ")
		})
		if err != nil {
			return nil, err
		}
		p.Hunks = hunks
		patches = append(patches, p)
		i = next
	}
	return patches, nil
}

func parseEnvelopePatch(lines []string) ([]filePatch, error) {
	var patches []filePatch
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		switch {
		case strings.HasPrefix(line, "*** Update File:"):
			path := strings.TrimSpace(strings.TrimPrefix(line, "*** Update File:"))
			i++
			hunks, next, err := consumeHunks(lines, i, isEnvelopeBoundary)
			if err != nil {
				return nil, err
			}
			patches = append(patches, filePatch{OldPath: path, NewPath: path, Hunks: hunks})
			i = next
		case strings.HasPrefix(line, "*** Add File:"):
			path := strings.TrimSpace(strings.TrimPrefix(line, "*** Add File:"))
			i++
			hunks, next, err := consumeHunks(lines, i, isEnvelopeBoundary)
			if err != nil {
				return nil, err
			}
			patches = append(patches, filePatch{NewPath: path, Hunks: hunks})
			i = next
		case strings.HasPrefix(line, "*** Delete File:"):
			path := strings.TrimSpace(strings.TrimPrefix(line, "*** Delete File:"))
			patches = append(patches, filePatch{OldPath: path, IsDelete: true})
			i++
		default:
			i++
		}
	}
	return patches, nil
}

func isEnvelopeBoundary(l string) bool {
	return strings.HasPrefix(strings.TrimSpace(l), "*** ")
}

// consumeHunks reads zero or more "@@ ... @@" hunks starting at lines[from],
// stopping when isBoundary matches or input ends.
func consumeHunks(lines []string, from int, isBoundary func(string) bool) ([]hunk, int, error) {
	var hunks []hunk
	i := from
	for i < len(lines) {
		if isBoundary(lines[i]) {
			break
		}
		m := hunkHeaderPattern.FindStringSubmatch(lines[i])
		if m == nil {
			i++
			continue
		}
		oldStart, _ := strconv.Atoi(m[1])
		oldCount := 1
		if m[2] != "" {
			oldCount, _ = strconv.Atoi(m[2])
		}
		h := hunk{OldStart: oldStart, OldCount: oldCount}
		i++
		for i < len(lines) && !isBoundary(lines[i]) && !hunkHeaderPattern.MatchString(lines[i]) {
			h.Lines = append(h.Lines, lines[i])
			i++
		}
		// A trailing blank element from the final split("\n") is not part of
		// the hunk body; drop it if the hunk would otherwise end on "".
		if n := len(h.Lines); n > 0 && h.Lines[n-1] == "" && i >= len(lines) {
			h.Lines = h.Lines[:n-1]
		}
		hunks = append(hunks, h)
	}
	return hunks, i, nil
}

// applyFilePatch performs the actual filesystem mutation for one file patch.
func applyFilePatch(path string, p filePatch) error {
	if p.IsDelete {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	// A patch counts as a file creation when the diff says so (old side is
	// /dev/null) or when there is simply no pre-existing source on disk.
	isNewFile := p.OldPath == ""
	var existing []byte
	if !isNewFile {
		var err error
		existing, err = os.ReadFile(path)
		if os.IsNotExist(err) {
			isNewFile = true
		} else if err != nil {
			return err
		}
	}
	if isNewFile {
		var content []string
		for _, h := range p.Hunks {
			for _, l := range h.Lines {
				if len(l) > 0 && l[0] == '+' {
					content = append(content, l[1:])
				}
			}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		return os.WriteFile(path, []byte(strings.Join(content, "\n")+"\n"), 0644)
	}

	lines := strings.Split(string(existing), "\n")

	sortedHunks := make([]hunk, len(p.Hunks))
	copy(sortedHunks, p.Hunks)
	sort.Slice(sortedHunks, func(i, j int) bool { return sortedHunks[i].OldStart > sortedHunks[j].OldStart })

	for _, h := range sortedHunks {
		start := h.OldStart - 1
		if start < 0 {
			start = 0
		}
		end := start + h.OldCount
		if end > len(lines) {
			end = len(lines)
		}

		var replacement []string
		for _, l := range h.Lines {
			if l == "" {
				continue
			}
			switch l[0] {
			case '+', ' ':
				replacement = append(replacement, l[1:])
			case '-':
				// removed line, contributes nothing to the replacement
			}
		}

		tail := append([]string{}, lines[end:]...)
		lines = append(append(lines[:start:start], replacement...), tail...)
	}

	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644)
}
