package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pocketomega/codex-core/internal/tool"
	"github.com/pocketomega/codex-core/internal/workspace"
)

func newExecCtx(t *testing.T, root string) tool.ExecContext {
	t.Helper()
	g, err := workspace.NewGuard(root)
	if err != nil {
		t.Fatal(err)
	}
	return tool.ExecContext{RepoRoot: root, Guard: g}
}

func TestApplyPatchNewFile(t *testing.T) {
	root := t.TempDir()
	ectx := newExecCtx(t, root)

	patch := "--- a/new.txt\n+++ b/new.txt\n@@ -0,0 +1,2 @@\n+hello\n+world\n"
	args, _ := json.Marshal(applyPatchArgs{Patch: patch})

	tl := NewApplyPatchTool()
	res, err := tl.Execute(context.Background(), args, ectx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK {
		t.Fatalf("expected ok=true, got %+v", res)
	}

	data, err := os.ReadFile(filepath.Join(root, "new.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\nworld\n" {
		t.Fatalf("unexpected file content: %q", string(data))
	}
}

func TestApplyPatchPartial(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "good.txt"), []byte("line1\nline2\nline3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	ectx := newExecCtx(t, root)

	patch := "--- a/good.txt\n+++ b/good.txt\n@@ -2,1 +2,1 @@\n+changed\n" +
		"--- a/../evil.txt\n+++ b/../evil.txt\n@@ -1,1 +1,1 @@\n+oops\n"
	args, _ := json.Marshal(applyPatchArgs{Patch: patch})

	tl := NewApplyPatchTool()
	res, err := tl.Execute(context.Background(), args, ectx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK {
		t.Fatalf("expected ok=true for partial apply, got %+v", res)
	}
	found := false
	for _, d := range res.Diagnostics {
		if d.Code == "PartialApply" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a PartialApply diagnostic, got %+v", res.Diagnostics)
	}

	data, err := os.ReadFile(filepath.Join(root, "good.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "line1\nchanged\nline3\n" {
		t.Fatalf("good.txt not updated as expected: %q", string(data))
	}
}

func TestApplyPatchAllFail(t *testing.T) {
	root := t.TempDir()
	ectx := newExecCtx(t, root)

	patch := "--- a/../evil.txt\n+++ b/../evil.txt\n@@ -1,1 +1,1 @@\n+oops\n"
	args, _ := json.Marshal(applyPatchArgs{Patch: patch})

	tl := NewApplyPatchTool()
	res, err := tl.Execute(context.Background(), args, ectx)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Fatal("expected ok=false when no file patches apply")
	}
}
