//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// setupProcessGroup puts the child in its own process group so a timeout
// can take down anything it spawned
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree kills the process group led by pid
func killProcessTree(pid int) error {
	// Ignore errors during cleanup, the group may already be gone
	_ = syscall.Kill(-pid, syscall.SIGKILL)

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := proc.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}
