// Package builtin implements the concrete tool set: file read, directory
// listing, text search, git status/diff, patch application, and subprocess
// execution, all resolved through a workspace.Guard.
package builtin

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pocketomega/codex-core/internal/tool"
	"github.com/pocketomega/codex-core/internal/workspace"
)

// excludedDirs are always skipped by ListFiles and the manual SearchText walk.
var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"bin":          true,
	"obj":          true,
}

// binaryExtensions are skipped by the manual SearchText walk without opening
// the file.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".exe": true,
	".dll": true, ".so": true, ".dylib": true, ".bin": true, ".woff": true,
	".woff2": true, ".ttf": true, ".eot": true, ".mp3": true, ".mp4": true,
	".wasm": true,
}

// sensitiveEnvFragments decide which environment variables RunCommand
// strips before launching a subprocess: any name containing one of them.
var sensitiveEnvFragments = []string{
	"API_KEY", "SECRET", "PASSWORD", "TOKEN", "CREDENTIAL", "PRIVATE_KEY", "AUTH",
}

// filterEnv drops any environment entry whose name contains one of
// sensitiveEnvFragments, case-insensitively.
func filterEnv(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		name, _, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		upper := strings.ToUpper(name)
		sensitive := false
		for _, frag := range sensitiveEnvFragments {
			if strings.Contains(upper, frag) {
				sensitive = true
				break
			}
		}
		if !sensitive {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// safeRuneTruncate truncates s to maxRunes runes, preserving valid UTF-8, and
// reports whether truncation happened.
func safeRuneTruncate(s string, maxRunes int) (string, bool) {
	count := 0
	for i := range s {
		count++
		if count > maxRunes {
			return s[:i], true
		}
	}
	return s, false
}

// isBinary samples the front of a byte slice to guess whether it is binary
// content: a NUL byte is conclusive; otherwise invalid UTF-8 with a high
// ratio of non-printable control bytes is treated as binary.
func isBinary(data []byte) bool {
	if bytes.IndexByte(data, 0) >= 0 {
		return true
	}
	if utf8.Valid(data) {
		return false
	}
	nonPrintable := 0
	for _, b := range data {
		if b < 0x08 || (b >= 0x0E && b < 0x20 && b != 0x1B) {
			nonPrintable++
		}
	}
	return len(data) > 0 && nonPrintable*10 > len(data)
}

// resolveOrFail is the shared "resolve a user path through the guard, or
// return a failure result" pattern used by every path-taking tool.
func resolveOrFail(guard *workspace.Guard, relative string) (string, *tool.Result) {
	if guard == nil {
		r := tool.Failure("UnsafePath", "no workspace guard configured")
		return "", &r
	}
	abs, ok := guard.Resolve(relative)
	if !ok {
		r := tool.Failure("UnsafePath", fmt.Sprintf("path %q is outside the workspace or otherwise unsafe", relative))
		return "", &r
	}
	return abs, nil
}
