//go:build unix

// internal/browser/session/proc_unix.go
package session

import (
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// Negative pid targets the whole process group.
func signalTerminate(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGTERM)
}

func signalKill(p *os.Process) error {
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err != nil {
		// ESRCH from a dead group; fall back to the leader alone.
		return p.Kill()
	}
	return nil
}
