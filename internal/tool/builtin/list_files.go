package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pocketomega/codex-core/internal/tool"
)

const maxListFilesResults = 500

// ListFilesTool walks the workspace applying a glob pattern, excluding
// node_modules/.git/bin/obj, and caps results at maxListFilesResults.
type ListFilesTool struct{}

func NewListFilesTool() *ListFilesTool { return &ListFilesTool{} }

func (t *ListFilesTool) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "ListFiles",
		Description: "Lists workspace files matching a glob pattern (default '*'), as relative forward-slash paths.",
		InputSchema: tool.BuildSchema(
			tool.SchemaParam{Name: "pattern", Type: "string", Description: "glob pattern matched against the base name, e.g. '*.go'"},
			tool.SchemaParam{Name: "path", Type: "string", Description: "workspace-relative directory to start from (default: workspace root)"},
		),
		Policy: tool.Policy{IsReadOnly: true, Risk: tool.RiskLow},
	}
}

type listFilesArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
}

func (t *ListFilesTool) Execute(ctx context.Context, args json.RawMessage, ectx tool.ExecContext) (tool.Result, error) {
	var a listFilesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Failure("ArgsParseError", fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}
	pattern := a.Pattern
	if pattern == "" {
		pattern = "*"
	}

	root := ectx.Guard.Root()
	if a.Path != "" {
		resolved, fail := resolveOrFail(ectx.Guard, a.Path)
		if fail != nil {
			return *fail, nil
		}
		root = resolved
	}

	var results []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		matched, matchErr := filepath.Match(pattern, d.Name())
		if matchErr != nil {
			return matchErr
		}
		if !matched {
			return nil
		}
		rel, relErr := filepath.Rel(ectx.Guard.Root(), path)
		if relErr != nil {
			rel = path
		}
		results = append(results, filepath.ToSlash(rel))
		if len(results) >= maxListFilesResults {
			return errListLimitReached
		}
		return nil
	})
	if err != nil && err != errListLimitReached {
		return tool.Failure("ListError", fmt.Sprintf("invalid pattern %q: %v", pattern, err)), nil
	}

	return tool.Success(map[string]any{"files": results, "truncated": len(results) >= maxListFilesResults}), nil
}

var errListLimitReached = fmt.Errorf("list limit reached")
