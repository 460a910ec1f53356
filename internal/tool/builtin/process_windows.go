//go:build windows

package builtin

import (
	"os/exec"
	"strconv"
)

// setNewProcessGroup is a no-op placeholder on Windows; killProcessGroup
// below uses taskkill's /T (tree) flag instead of a process-group signal.
func setNewProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup shells out to taskkill /T /F to terminate the command and
// its descendants, since Windows has no POSIX process-group signal.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()
}
