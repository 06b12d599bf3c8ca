//go:build windows

package process

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// setupProcessGroup sets up a process group for Windows systems
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags = syscall.CREATE_NEW_PROCESS_GROUP
}

// killProcessTree kills a process and all its children on Windows
func killProcessTree(pid int) error {
	cmd := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid))
	_ = cmd.Run() // Ignore errors, process might already be dead

	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Kill()
	}
	return nil
}
