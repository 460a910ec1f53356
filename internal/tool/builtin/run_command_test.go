package builtin

import (
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

func TestRunCommandTimeout(t *testing.T) {
	root := t.TempDir()
	ectx := newExecCtx(t, root)

	var a RunCommandArgs
	if runtime.GOOS == "windows" {
		a = RunCommandArgs{Exe: "cmd", Args: []string{"/c", "ping -n 3 127.0.0.1 >nul"}, TimeoutSec: 1}
	} else {
		a = RunCommandArgs{Exe: "sh", Args: []string{"-c", "sleep 2"}, TimeoutSec: 1}
	}
	args, _ := json.Marshal(a)

	tl := NewRunCommandTool()
	res, err := tl.Execute(context.Background(), args, ectx)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Fatal("expected ok=false on timeout")
	}
	found := false
	for _, d := range res.Diagnostics {
		if strings.Contains(d.Message, "timed out") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a 'timed out' diagnostic, got %+v", res.Diagnostics)
	}
}

func TestRunCommandStripsSecretEnv(t *testing.T) {
	env := []string{"PATH=/usr/bin", "OPENAI_API_KEY=sk-secret", "HOME=/root", "MY_TOKEN=abc"}
	filtered := filterEnv(env)
	for _, e := range filtered {
		if strings.Contains(e, "sk-secret") || strings.Contains(e, "MY_TOKEN") {
			t.Fatalf("expected secret env vars to be filtered, got %v", filtered)
		}
	}
	if len(filtered) != 2 {
		t.Fatalf("expected PATH and HOME to survive filtering, got %v", filtered)
	}
}

func TestRunCommandNonZeroExit(t *testing.T) {
	root := t.TempDir()
	ectx := newExecCtx(t, root)

	var a RunCommandArgs
	if runtime.GOOS == "windows" {
		a = RunCommandArgs{Exe: "cmd", Args: []string{"/c", "exit 3"}}
	} else {
		a = RunCommandArgs{Exe: "sh", Args: []string{"-c", "exit 3"}}
	}
	args, _ := json.Marshal(a)

	tl := NewRunCommandTool()
	res, err := tl.Execute(context.Background(), args, ectx)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Fatal("expected ok=false on non-zero exit")
	}
	var gotExitCode bool
	for _, d := range res.Diagnostics {
		if d.Code == "ExitCode" {
			gotExitCode = true
		}
	}
	if !gotExitCode {
		t.Fatalf("expected an ExitCode diagnostic, got %+v", res.Diagnostics)
	}
}
