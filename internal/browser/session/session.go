// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabctl/internal/browser/events"
	"github.com/xkilldash9x/tabctl/internal/config"
)

// profilePrefix names every private profile directory.
const profilePrefix = "tabctl-profile-"

// Budget for teardown once the grace period is spent.
const closeSlack = 5 * time.Second

// Session is one isolated browser: a process bound to a private profile
// directory and a debug port, plus the attached protocol connection.
type Session struct {
	id       string
	cfg      config.Interface
	logger   *zap.Logger
	fs       afero.Fs
	launcher Launcher
	dialer   Dialer
	rng      *rand.Rand
	newID    func() string
	registry *events.Registry

	headless   bool
	port       int
	profileDir string
	proc       Process
	conn       Conn

	mu       sync.RWMutex
	document *cdp.Node

	closeOnce sync.Once
	closed    atomic.Bool
}

// Option customises collaborators, mostly for tests.
type Option func(*Session)

func WithLauncher(l Launcher) Option { return func(s *Session) { s.launcher = l } }
func WithDialer(d Dialer) Option     { return func(s *Session) { s.dialer = d } }
func WithFs(fs afero.Fs) Option      { return func(s *Session) { s.fs = fs } }

// WithRand fixes the port source.
func WithRand(r *rand.Rand) Option { return func(s *Session) { s.rng = r } }

// WithIDGenerator fixes the source of session ids and profile suffixes.
func WithIDGenerator(fn func() string) Option { return func(s *Session) { s.newID = fn } }

// WithRegistry shares an existing registry instead of creating one.
func WithRegistry(r *events.Registry) Option { return func(s *Session) { s.registry = r } }

// New launches a browser and attaches to it. Every step depends on the one
// before; on any failure everything created so far is torn down and no
// session is returned.
func New(ctx context.Context, cfg config.Interface, logger *zap.Logger, opts ...Option) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		cfg:      cfg,
		fs:       afero.NewOsFs(),
		newID:    uuid.NewString,
		headless: cfg.Browser().Headless,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.id = s.newID()
	s.logger = logger.Named("session").With(zap.String("session_id", s.id))
	if s.launcher == nil {
		s.launcher = NewExecLauncher(s.logger)
	}
	if s.dialer == nil {
		s.dialer = NewChromedpDialer(s.logger)
	}
	if s.registry == nil {
		s.registry = events.NewRegistry(s.logger)
	}

	if err := s.start(ctx); err != nil {
		if cerr := s.teardown(ctx); cerr != nil {
			s.logger.Warn("Cleanup after failed start was incomplete.", zap.Error(cerr))
		}
		s.closed.Store(true)
		return nil, err
	}
	return s, nil
}

func (s *Session) start(ctx context.Context) error {
	bcfg := s.cfg.Browser()

	// 1. Allocate the debug port and the profile directory.
	s.port = bcfg.PortMin + s.intN(bcfg.PortMax-bcfg.PortMin)
	dir := filepath.Join(bcfg.ProfileRoot, profilePrefix+s.id)
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: create profile directory: %w", ErrLaunch, err)
	}
	s.profileDir = dir

	// 2. Launch the process.
	spec := LaunchSpec{
		Binary: bcfg.Binary,
		Args:   BrowserArgs(bcfg, s.headless, s.profileDir, s.port),
	}
	if !s.headless && bcfg.Display != "" {
		spec.Env = append(spec.Env, "DISPLAY="+bcfg.Display)
	}
	proc, err := s.launcher.Launch(ctx, spec)
	if err != nil {
		return fmt.Errorf("%w: start %s: %w", ErrLaunch, bcfg.Binary, err)
	}
	s.proc = proc

	// 3. Wait for the debug port.
	if err := WaitForPort(ctx, s.port, bcfg.StartupTimeout, s.proc); err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	// 4. Handshake.
	hctx, cancel := context.WithTimeout(ctx, bcfg.HandshakeTimeout)
	defer cancel()
	conn, err := s.dialer.Dial(hctx, s.DebugURL())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	s.conn = conn

	// 5. Route push events into the registry.
	s.conn.Listen(s.registry.Dispatch)

	s.logger.Info("Browser session ready.",
		zap.Int("port", s.port),
		zap.Int("pid", s.proc.Pid()),
		zap.Bool("headless", s.headless),
		zap.String("profile", s.profileDir))
	return nil
}

func (s *Session) intN(n int) int {
	if n <= 0 {
		return 0
	}
	if s.rng != nil {
		return s.rng.IntN(n)
	}
	return rand.IntN(n)
}

// BrowserArgs builds the fixed command line for one browser.
func BrowserArgs(bcfg config.BrowserConfig, headless bool, profileDir string, port int) []string {
	args := []string{
		"--user-data-dir=" + profileDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-infobars",
		"--disable-notifications",
		"--disable-suggestions-ui",
		"--disable-default-apps",
		"--disable-extensions",
		"--disable-sync",
		"--enable-automation",
	}
	if headless {
		args = append(args,
			"--headless",
			"--hide-scrollbars",
			"--disable-gpu",
			fmt.Sprintf("--window-size=%d,%d", bcfg.WindowWidth, bcfg.WindowHeight),
		)
	}
	args = append(args,
		"--remote-debugging-address=127.0.0.1",
		"--remote-debugging-port="+strconv.Itoa(port),
	)
	return append(args, bcfg.Args...)
}

// Close tears the session down. Every step runs even if an earlier one fails.
// It is safe on a partially started session and calling it again is a no-op.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.teardown(ctx)
		if err != nil {
			s.logger.Warn("Session teardown incomplete.", zap.Error(err))
		} else {
			s.logger.Debug("Session closed.")
		}
	})
	return err
}

func (s *Session) teardown(ctx context.Context) error {
	grace := s.cfg.Browser().KillGracePeriod
	ctx, cancel := detachedWithTimeout(ctx, grace+closeSlack)
	defer cancel()

	var errs []error

	// Close errors are logged only; they must not hold up the rest.
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("Closing protocol connection failed.", zap.Error(err))
		}
	}

	// Check before signalling so an already-reaped pid is never re-killed.
	if s.proc != nil && !s.proc.Exited() {
		if err := s.proc.Terminate(ctx, grace); err != nil {
			errs = append(errs, fmt.Errorf("terminate browser: %w", err))
		}
	}

	if s.profileDir != "" {
		if err := s.fs.RemoveAll(s.profileDir); err != nil {
			errs = append(errs, fmt.Errorf("remove profile %s: %w", s.profileDir, err))
		}
	}

	return errors.Join(errs...)
}

// -- Accessors --

func (s *Session) ID() string                 { return s.id }
func (s *Session) Port() int                  { return s.port }
func (s *Session) ProfileDir() string         { return s.profileDir }
func (s *Session) Headless() bool             { return s.headless }
func (s *Session) Registry() *events.Registry { return s.registry }
func (s *Session) Closed() bool               { return s.closed.Load() }

// DebugURL is the loopback debug endpoint handed to the dialer.
func (s *Session) DebugURL() string {
	return "ws://127.0.0.1:" + strconv.Itoa(s.port)
}

// Execute forwards a raw protocol call, which makes *Session a cdp.Executor.
func (s *Session) Execute(ctx context.Context, method string, params, res any) error {
	if s.closed.Load() || s.conn == nil {
		return ErrClosed
	}
	return s.conn.Execute(ctx, method, params, res)
}

var _ cdp.Executor = (*Session)(nil)
