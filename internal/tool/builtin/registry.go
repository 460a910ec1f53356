package builtin

import "github.com/pocketomega/codex-core/internal/tool"

// NewDefaultRegistry builds a registry pre-populated with the concrete tool
// set: ReadFile, ListFiles, SearchText, GitStatus, GitDiff, ApplyPatch,
// RunCommand. Every session and terminal run shares this construction so
// the tool surface the model sees never drifts between entrypoints.
func NewDefaultRegistry() *tool.Registry {
	r := tool.NewRegistry()
	r.Register(NewReadFileTool())
	r.Register(NewListFilesTool())
	r.Register(NewSearchTextTool())
	r.Register(NewGitStatusTool())
	r.Register(NewGitDiffTool())
	r.Register(NewApplyPatchTool())
	r.Register(NewRunCommandTool())
	return r
}
