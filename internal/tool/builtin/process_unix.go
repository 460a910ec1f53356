//go:build !windows

package builtin

import (
	"os/exec"
	"syscall"
)

// setNewProcessGroup puts the child in its own process group so the whole
// tree can be killed on timeout rather than just the immediate child.
func setNewProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup signals the negative pid (the process group) so
// descendants spawned by the command are killed along with it.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
