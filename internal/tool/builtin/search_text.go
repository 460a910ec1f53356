package builtin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pocketomega/codex-core/internal/tool"
)

const defaultSearchMaxResults = 50

// ripgrepBinary is looked up once; exec.LookPath is cheap but there is no
// reason to repeat it per call.
var ripgrepBinary = func() string {
	if path, err := exec.LookPath("rg"); err == nil {
		return path
	}
	return ""
}()

// SearchTextTool performs a case-insensitive regex search over the
// workspace, preferring an external fast-grep binary (ripgrep) when present
// on PATH and falling back to a manual walk otherwise.
type SearchTextTool struct{}

func NewSearchTextTool() *SearchTextTool { return &SearchTextTool{} }

func (t *SearchTextTool) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "SearchText",
		Description: "Case-insensitive regex search over workspace file contents.",
		InputSchema: tool.BuildSchema(
			tool.SchemaParam{Name: "pattern", Type: "string", Description: "regular expression to search for", Required: true},
			tool.SchemaParam{Name: "path", Type: "string", Description: "workspace-relative directory to restrict the search to"},
			tool.SchemaParam{Name: "maxResults", Type: "integer", Description: "maximum number of matches to return (default 50)"},
		),
		Policy: tool.Policy{IsReadOnly: true, Risk: tool.RiskLow},
	}
}

type searchTextArgs struct {
	Pattern    string `json:"pattern"`
	Path       string `json:"path"`
	MaxResults int    `json:"maxResults"`
}

type searchMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

func (t *SearchTextTool) Execute(ctx context.Context, args json.RawMessage, ectx tool.ExecContext) (tool.Result, error) {
	var a searchTextArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Failure("ArgsParseError", fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}
	if strings.TrimSpace(a.Pattern) == "" {
		return tool.Failure("InvalidArgs", "pattern must not be empty"), nil
	}
	maxResults := a.MaxResults
	if maxResults <= 0 {
		maxResults = defaultSearchMaxResults
	}

	re, err := regexp.Compile("(?i)" + a.Pattern)
	if err != nil {
		return tool.Failure("InvalidRegex", fmt.Sprintf("invalid regular expression: %v", err)), nil
	}

	root := ectx.Guard.Root()
	if a.Path != "" {
		resolved, fail := resolveOrFail(ectx.Guard, a.Path)
		if fail != nil {
			return *fail, nil
		}
		root = resolved
	}

	var matches []searchMatch
	if ripgrepBinary != "" {
		matches, err = searchWithRipgrep(ctx, root, a.Pattern, maxResults)
		if err != nil {
			// Fall back rather than fail: the external binary is an
			// optimization, not a requirement.
			matches, err = searchManually(ctx, root, re, maxResults)
		}
	} else {
		matches, err = searchManually(ctx, root, re, maxResults)
	}
	if err != nil {
		return tool.Failure("SearchError", err.Error()), nil
	}

	for i := range matches {
		if rel, relErr := filepath.Rel(ectx.Guard.Root(), matches[i].File); relErr == nil {
			matches[i].File = filepath.ToSlash(rel)
		}
	}

	return tool.Success(map[string]any{"matches": matches, "truncated": len(matches) >= maxResults}), nil
}

// rgMatchLine is the subset of ripgrep's --json output schema we parse.
type rgMatchLine struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		LineNumber int `json:"line_number"`
		Lines      struct {
			Text string `json:"text"`
		} `json:"lines"`
	} `json:"data"`
}

func searchWithRipgrep(ctx context.Context, root, pattern string, maxResults int) ([]searchMatch, error) {
	cmd := exec.CommandContext(ctx, ripgrepBinary, "--json", "-i", "--max-count", strconv.Itoa(maxResults), pattern, root)
	out, err := cmd.Output()
	// ripgrep exits 1 when there are no matches; that's not an execution
	// failure, just an empty result set.
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); !ok || len(exitErr.Stderr) > 0 {
			if len(out) == 0 {
				return nil, err
			}
		}
	}

	var matches []searchMatch
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		var line rgMatchLine
		if jsonErr := json.Unmarshal(scanner.Bytes(), &line); jsonErr != nil {
			continue
		}
		if line.Type != "match" {
			continue
		}
		matches = append(matches, searchMatch{
			File:    line.Data.Path.Text,
			Line:    line.Data.LineNumber,
			Content: strings.TrimRight(line.Data.Lines.Text, "\n"),
		})
		if len(matches) >= maxResults {
			break
		}
	}
	return matches, nil
}

func searchManually(ctx context.Context, root string, re *regexp.Regexp, maxResults int) ([]searchMatch, error) {
	var matches []searchMatch
	limitReached := fmt.Errorf("limit reached")

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if binaryExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		defer f.Close()

		sample := make([]byte, 512)
		n, _ := f.Read(sample)
		if isBinary(sample[:n]) {
			return nil
		}
		if _, err := f.Seek(0, 0); err != nil {
			return nil
		}

		lineNum := 0
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 1<<20), 1<<20)
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			if re.MatchString(line) {
				matches = append(matches, searchMatch{File: path, Line: lineNum, Content: line})
				if len(matches) >= maxResults {
					return limitReached
				}
			}
		}
		return nil
	})
	if walkErr != nil && walkErr != limitReached {
		return matches, nil
	}
	return matches, nil
}
