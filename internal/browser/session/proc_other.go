//go:build !unix

// internal/browser/session/proc_other.go
package session

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// No portable graceful signal; terminate is a kill.
func signalTerminate(p *os.Process) error { return p.Kill() }

func signalKill(p *os.Process) error { return p.Kill() }
