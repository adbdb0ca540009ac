// internal/browser/session/session_test.go
package session_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tabctl/internal/browser/events"
	"github.com/xkilldash9x/tabctl/internal/browser/session"
	"github.com/xkilldash9x/tabctl/internal/config"
	"github.com/xkilldash9x/tabctl/internal/mocks"
)

const testID = "0000-test"

// -- Test Fixtures --

// openPort listens on a loopback port for the duration of the test so the
// port wait succeeds.
func openPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func testConfig(port int) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.BrowserCfg.PortMin = port
	cfg.BrowserCfg.PortMax = port + 1
	cfg.BrowserCfg.ProfileRoot = "/profiles"
	cfg.BrowserCfg.StartupTimeout = 2 * time.Second
	cfg.BrowserCfg.KillGracePeriod = 10 * time.Millisecond
	cfg.PageCfg.LoadTimeout = time.Second
	return cfg
}

type fixture struct {
	cfg      *config.Config
	fs       afero.Fs
	conn     *mocks.FakeConn
	dialer   *mocks.FakeDialer
	launcher *mocks.MockLauncher
	proc     *mocks.FakeProcess
}

func newFixture(t *testing.T, port int) *fixture {
	conn := mocks.NewFakeConn()
	f := &fixture{
		cfg:      testConfig(port),
		fs:       afero.NewMemMapFs(),
		conn:     conn,
		dialer:   &mocks.FakeDialer{Conn: conn},
		launcher: &mocks.MockLauncher{},
		proc:     mocks.NewFakeProcess(4242),
	}
	return f
}

func (f *fixture) options() []session.Option {
	return []session.Option{
		session.WithFs(f.fs),
		session.WithLauncher(f.launcher),
		session.WithDialer(f.dialer),
		session.WithIDGenerator(func() string { return testID }),
	}
}

func (f *fixture) profileDir() string {
	return filepath.Join("/profiles", "tabctl-profile-"+testID)
}

func (f *fixture) start(t *testing.T) *session.Session {
	t.Helper()
	f.launcher.On("Launch", mock.Anything, mock.Anything).Return(f.proc, nil)
	s, err := session.New(context.Background(), f.cfg, zaptest.NewLogger(t), f.options()...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// -- Flag Set --

func TestBrowserArgs(t *testing.T) {
	bcfg := config.NewDefaultConfig().Browser()
	bcfg.Args = []string{"--mute-audio"}

	t.Run("headless", func(t *testing.T) {
		args := session.BrowserArgs(bcfg, true, "/p", 9333)
		assert.Equal(t, "--user-data-dir=/p", args[0])
		assert.Contains(t, args, "--headless")
		assert.Contains(t, args, "--disable-gpu")
		assert.Contains(t, args, "--window-size=1200,960")
		assert.Contains(t, args, "--disable-extensions")
		assert.Contains(t, args, "--disable-sync")
		assert.Contains(t, args, "--disable-notifications")
		assert.Contains(t, args, "--no-first-run")
		assert.Contains(t, args, "--remote-debugging-address=127.0.0.1")
		assert.Contains(t, args, "--remote-debugging-port=9333")
		assert.Equal(t, "--mute-audio", args[len(args)-1], "extra args go last")
	})

	t.Run("headed", func(t *testing.T) {
		args := session.BrowserArgs(bcfg, false, "/p", 9333)
		assert.NotContains(t, args, "--headless")
		assert.NotContains(t, args, "--hide-scrollbars")
		assert.Contains(t, args, "--remote-debugging-port=9333")
	})
}

// -- Creation --

func TestNew_Success(t *testing.T) {
	port := openPort(t)
	f := newFixture(t, port)
	s := f.start(t)

	assert.Equal(t, testID, s.ID())
	assert.Equal(t, port, s.Port())
	assert.Equal(t, f.profileDir(), s.ProfileDir())
	assert.True(t, s.Headless())

	exists, err := afero.DirExists(f.fs, f.profileDir())
	require.NoError(t, err)
	assert.True(t, exists, "profile directory must exist while the session is alive")

	assert.Equal(t, []string{"ws://127.0.0.1:" + strconv.Itoa(port)}, f.dialer.URLs())

	f.launcher.AssertNumberOfCalls(t, "Launch", 1)
	spec := f.launcher.Calls[0].Arguments.Get(1).(session.LaunchSpec)
	assert.Equal(t, "chromium", spec.Binary)
	assert.Contains(t, spec.Args, "--user-data-dir="+f.profileDir())
	assert.Empty(t, spec.Env, "headless sessions do not need a display")
}

func TestNew_HeadedSetsDisplay(t *testing.T) {
	f := newFixture(t, openPort(t))
	f.cfg.BrowserCfg.Headless = false
	f.start(t)

	spec := f.launcher.Calls[0].Arguments.Get(1).(session.LaunchSpec)
	assert.Equal(t, []string{"DISPLAY=:0"}, spec.Env)
	assert.NotContains(t, spec.Args, "--headless")
}

func TestNew_WiresEventsIntoRegistry(t *testing.T) {
	f := newFixture(t, openPort(t))
	s := f.start(t)

	var got []any
	s.Registry().Listen("Network.loadingFinished", events.NewListener(func(p any) { got = append(got, p) }))

	f.conn.Emit("Network.loadingFinished", "req-1")
	f.conn.Emit("Network.responseReceived", "ignored")

	assert.Equal(t, []any{"req-1"}, got)
}

func TestNew_SharedRegistry(t *testing.T) {
	f := newFixture(t, openPort(t))
	reg := events.NewRegistry(zaptest.NewLogger(t))
	f.launcher.On("Launch", mock.Anything, mock.Anything).Return(f.proc, nil)

	s, err := session.New(context.Background(), f.cfg, zaptest.NewLogger(t), append(f.options(), session.WithRegistry(reg))...)
	require.NoError(t, err)
	defer s.Close(context.Background())

	assert.Same(t, reg, s.Registry())
}

func TestNew_LaunchFailure(t *testing.T) {
	f := newFixture(t, openPort(t))
	f.launcher.On("Launch", mock.Anything, mock.Anything).Return(nil, errors.New("exec: not found"))

	s, err := session.New(context.Background(), f.cfg, zaptest.NewLogger(t), f.options()...)
	require.Error(t, err)
	assert.Nil(t, s, "no partial session is returned")
	assert.ErrorIs(t, err, session.ErrLaunch)
	assert.Contains(t, err.Error(), "exec: not found")

	assert.Empty(t, f.dialer.URLs(), "no connection is attempted after a failed launch")
	exists, _ := afero.DirExists(f.fs, f.profileDir())
	assert.False(t, exists, "profile directory is removed")
}

func TestNew_PortNeverOpens(t *testing.T) {
	f := newFixture(t, closedPort(t))
	f.cfg.BrowserCfg.StartupTimeout = 300 * time.Millisecond
	f.launcher.On("Launch", mock.Anything, mock.Anything).Return(f.proc, nil)

	start := time.Now()
	s, err := session.New(context.Background(), f.cfg, zaptest.NewLogger(t), f.options()...)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, session.ErrLaunch)
	assert.Less(t, time.Since(start), 3*time.Second)

	assert.Equal(t, 1, f.proc.TerminateCalls(), "the launched process is cleaned up")
	assert.Empty(t, f.dialer.URLs())
	exists, _ := afero.DirExists(f.fs, f.profileDir())
	assert.False(t, exists)
}

func TestNew_ProcessExitsDuringPortWait(t *testing.T) {
	f := newFixture(t, closedPort(t))
	f.cfg.BrowserCfg.StartupTimeout = 5 * time.Second
	f.proc.Exit()
	f.launcher.On("Launch", mock.Anything, mock.Anything).Return(f.proc, nil)

	start := time.Now()
	_, err := session.New(context.Background(), f.cfg, zaptest.NewLogger(t), f.options()...)
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrLaunch)
	assert.Contains(t, err.Error(), "exited")
	assert.Less(t, time.Since(start), 2*time.Second, "an exited process fails fast")
	assert.Zero(t, f.proc.TerminateCalls(), "an exited process is not signalled")
}

func TestNew_HandshakeFailure(t *testing.T) {
	f := newFixture(t, openPort(t))
	f.dialer.Err = errors.New("websocket: bad handshake")
	f.launcher.On("Launch", mock.Anything, mock.Anything).Return(f.proc, nil)

	s, err := session.New(context.Background(), f.cfg, zaptest.NewLogger(t), f.options()...)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, session.ErrHandshake)
	assert.NotErrorIs(t, err, session.ErrLaunch)
	assert.Equal(t, 1, f.proc.TerminateCalls())
	exists, _ := afero.DirExists(f.fs, f.profileDir())
	assert.False(t, exists)
}

func TestNew_DeterministicPort(t *testing.T) {
	pick := func() string {
		f := newFixture(t, 0)
		f.cfg.BrowserCfg.PortMin = 5001
		f.cfg.BrowserCfg.PortMax = 32000
		f.launcher.On("Launch", mock.Anything, mock.Anything).Return(nil, errors.New("stop here"))
		opts := append(f.options(), session.WithRand(rand.New(rand.NewPCG(7, 11))))
		_, err := session.New(context.Background(), f.cfg, zaptest.NewLogger(t), opts...)
		require.ErrorIs(t, err, session.ErrLaunch)

		spec := f.launcher.Calls[0].Arguments.Get(1).(session.LaunchSpec)
		for _, a := range spec.Args {
			if strings.HasPrefix(a, "--remote-debugging-port=") {
				return strings.TrimPrefix(a, "--remote-debugging-port=")
			}
		}
		t.Fatal("no debug port flag")
		return ""
	}

	first, second := pick(), pick()
	assert.Equal(t, first, second, "the same seed yields the same port")
	port, err := strconv.Atoi(first)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 5001)
	assert.Less(t, port, 32000)
}

func TestNew_ReadsConfigThroughInterface(t *testing.T) {
	base := testConfig(openPort(t))
	cfg := &mocks.MockConfig{}
	cfg.On("Browser").Return(base.Browser())
	cfg.On("Page").Return(base.Page())

	f := newFixture(t, 0)
	f.launcher.On("Launch", mock.Anything, mock.Anything).Return(f.proc, nil)
	s, err := session.New(context.Background(), cfg, zaptest.NewLogger(t), f.options()...)
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))

	cfg.AssertCalled(t, "Browser")
}

// -- Teardown --

func TestClose_Idempotent(t *testing.T) {
	f := newFixture(t, openPort(t))
	s := f.start(t)

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()), "second close is a no-op")

	assert.True(t, s.Closed())
	assert.Equal(t, 1, f.proc.TerminateCalls(), "process is terminated exactly once")
	assert.Equal(t, 1, f.conn.CloseCalls())
	exists, _ := afero.DirExists(f.fs, f.profileDir())
	assert.False(t, exists)
}

func TestClose_ProcessAlreadyExited(t *testing.T) {
	f := newFixture(t, openPort(t))
	s := f.start(t)
	f.proc.Exit()

	require.NoError(t, s.Close(context.Background()))
	assert.Zero(t, f.proc.TerminateCalls(), "an exited process is never signalled")
}

func TestClose_IgnoresConnectionCloseError(t *testing.T) {
	f := newFixture(t, openPort(t))
	f.conn.CloseErr = errors.New("already closed")
	s := f.start(t)

	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 1, f.proc.TerminateCalls(), "later steps still run")
	exists, _ := afero.DirExists(f.fs, f.profileDir())
	assert.False(t, exists)
}

// failingRemoveFs refuses to remove anything.
type failingRemoveFs struct {
	afero.Fs
}

func (failingRemoveFs) RemoveAll(string) error { return errors.New("device busy") }

func TestClose_AggregatesErrors(t *testing.T) {
	f := newFixture(t, openPort(t))
	f.fs = failingRemoveFs{Fs: afero.NewMemMapFs()}
	f.proc.TerminateErr = errors.New("permission denied")
	s := f.start(t)

	err := s.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Contains(t, err.Error(), "device busy")
}

func TestClose_RunsOnCanceledContext(t *testing.T) {
	f := newFixture(t, openPort(t))
	s := f.start(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 1, f.proc.TerminateCalls())
}

func TestExecute_AfterClose(t *testing.T) {
	f := newFixture(t, openPort(t))
	s := f.start(t)
	require.NoError(t, s.Close(context.Background()))

	err := s.Execute(context.Background(), "Page.enable", nil, nil)
	assert.ErrorIs(t, err, session.ErrClosed)
}
