// internal/browser/session/launcher.go
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LaunchSpec describes one browser process.
type LaunchSpec struct {
	Binary string
	Args   []string
	// Extra KEY=VALUE pairs layered over the current environment.
	Env []string
}

// Process is a running browser.
type Process interface {
	Pid() int
	// Exited reports whether the process has already been reaped.
	Exited() bool
	// Done is closed once the process exits.
	Done() <-chan struct{}
	// Terminate asks the process to stop and escalates to a hard kill after grace.
	// It is a no-op on an exited process.
	Terminate(ctx context.Context, grace time.Duration) error
}

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// ExecLauncher starts real processes with os/exec, each in its own process
// group so renderer and GPU children are signalled together.
type ExecLauncher struct {
	logger *zap.Logger
}

// NewExecLauncher creates the default launcher.
func NewExecLauncher(logger *zap.Logger) *ExecLauncher {
	return &ExecLauncher{logger: logger.Named("launcher")}
}

// Launch starts spec. The process is not bound to ctx: its lifetime belongs
// to the session and ends in Terminate.
func (l *ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{}), logger: l.logger}
	go p.reap()

	l.logger.Debug("Browser process started.", zap.String("binary", spec.Binary), zap.Int("pid", cmd.Process.Pid))
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
	logger  *zap.Logger
}

func (p *execProcess) reap() {
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *execProcess) Terminate(ctx context.Context, grace time.Duration) error {
	if p.Exited() {
		return nil
	}

	if grace > 0 {
		if err := signalTerminate(p.cmd.Process); err != nil {
			// Group already gone or signal unsupported, escalate.
			p.logger.Debug("Graceful signal failed, killing.", zap.Int("pid", p.Pid()), zap.Error(err))
			return p.kill(ctx)
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-p.done:
			return nil
		case <-timer.C:
			p.logger.Warn("Browser did not exit within grace period, killing.",
				zap.Int("pid", p.Pid()), zap.Duration("grace", grace))
		case <-ctx.Done():
		}
	}
	return p.kill(ctx)
}

func (p *execProcess) kill(ctx context.Context) error {
	if err := signalKill(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		if p.Exited() {
			return nil
		}
		return fmt.Errorf("kill pid %d: %w", p.Pid(), err)
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pid %d to exit: %w", p.Pid(), ctx.Err())
	}
}

// WaitForPort polls the loopback address until something accepts a TCP
// connection on port. It gives up early if proc exits.
func WaitForPort(ctx context.Context, port int, timeout time.Duration, proc Process) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
	dialer := net.Dialer{Timeout: 500 * time.Millisecond}

	var lastErr error
	for {
		if err := limiter.Wait(ctx); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return fmt.Errorf("port %d not reachable within %v: %w", port, timeout, lastErr)
		}
		if proc != nil && proc.Exited() {
			return fmt.Errorf("browser process exited before port %d opened", port)
		}

		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		lastErr = err
	}
}
