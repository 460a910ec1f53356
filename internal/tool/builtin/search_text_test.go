package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSearchTextManualFallbackFindsMatches(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello WORLD\nsecond line\n"), 0644); err != nil {
		t.Fatal(err)
	}
	ectx := newExecCtx(t, root)

	args, _ := json.Marshal(searchTextArgs{Pattern: "world"})
	tl := NewSearchTextTool()
	res, err := tl.Execute(context.Background(), args, ectx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK {
		t.Fatalf("expected ok=true, got %+v", res)
	}
	m := res.Data.(map[string]any)
	matches := m["matches"].([]searchMatch)
	if len(matches) != 1 || matches[0].Line != 1 {
		t.Fatalf("expected one case-insensitive match on line 1, got %+v", matches)
	}
}

func TestSearchTextInvalidRegex(t *testing.T) {
	root := t.TempDir()
	ectx := newExecCtx(t, root)

	args, _ := json.Marshal(searchTextArgs{Pattern: "("})
	tl := NewSearchTextTool()
	res, err := tl.Execute(context.Background(), args, ectx)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Fatal("expected ok=false for invalid regex")
	}
}
