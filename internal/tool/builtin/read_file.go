package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pocketomega/codex-core/internal/tool"
)

// ReadFileTool reads a workspace file, optionally clamped to a line range.
type ReadFileTool struct{}

func NewReadFileTool() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "ReadFile",
		Description: "Reads a file from the workspace, optionally restricted to an inclusive line range.",
		InputSchema: tool.BuildSchema(
			tool.SchemaParam{Name: "path", Type: "string", Description: "workspace-relative file path", Required: true},
			tool.SchemaParam{Name: "startLine", Type: "integer", Description: "first line to include (1-based)"},
			tool.SchemaParam{Name: "endLine", Type: "integer", Description: "last line to include (1-based, inclusive)"},
		),
		Policy: tool.Policy{IsReadOnly: true, Risk: tool.RiskLow},
	}
}

type readFileArgs struct {
	Path      string `json:"path"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

type readFileData struct {
	Path       string `json:"path"`
	StartLine  int    `json:"startLine"`
	EndLine    int    `json:"endLine"`
	TotalLines int    `json:"totalLines"`
	Content    string `json:"content"`
}

func (t *ReadFileTool) Execute(_ context.Context, args json.RawMessage, ectx tool.ExecContext) (tool.Result, error) {
	var a readFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Failure("ArgsParseError", fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	path, fail := resolveOrFail(ectx.Guard, a.Path)
	if fail != nil {
		return *fail, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return tool.Failure("NotFound", fmt.Sprintf("cannot read %q: %v", a.Path, err)), nil
	}

	lines := strings.Split(string(data), "\n")
	total := len(lines)

	start := a.StartLine
	if start < 1 {
		start = 1
	}
	end := a.EndLine
	if end < 1 || end > total {
		end = total
	}
	if start > total {
		start = total
	}
	if end < start {
		end = start
	}

	content := ""
	if total > 0 {
		content = strings.Join(lines[start-1:end], "\n")
	}

	return tool.Success(readFileData{
		Path:       a.Path,
		StartLine:  start,
		EndLine:    end,
		TotalLines: total,
		Content:    content,
	}), nil
}
