// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/tabctl/internal/browser/session"
	"github.com/xkilldash9x/tabctl/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Page() config.PageConfig {
	args := m.Called()
	return args.Get(0).(config.PageConfig)
}

func (m *MockConfig) Input() config.InputConfig {
	args := m.Called()
	return args.Get(0).(config.InputConfig)
}

func (m *MockConfig) Wait() config.WaitConfig {
	args := m.Called()
	return args.Get(0).(config.WaitConfig)
}

func (m *MockConfig) Capture() config.CaptureConfig {
	args := m.Called()
	return args.Get(0).(config.CaptureConfig)
}

func (m *MockConfig) SetBrowserHeadless(b bool)                   { m.Called(b) }
func (m *MockConfig) SetBrowserBinary(path string)                { m.Called(path) }
func (m *MockConfig) SetCaptureInactivityTimeout(d time.Duration) { m.Called(d) }
func (m *MockConfig) SetCaptureMimePatterns(p []string)           { m.Called(p) }

// -- Protocol Executor Fake --

// Call is one recorded protocol call.
type Call struct {
	Method string
	Params any
}

// Handler produces the result for one method. The returned value must be a
// pointer to the same type the caller decodes into (e.g. *runtime.EvaluateReturns).
type Handler func(params any) (any, error)

// FakeExecutor is a scriptable cdp.Executor that records every call.
// Methods without a handler succeed with an empty result.
type FakeExecutor struct {
	mu       sync.Mutex
	calls    []Call
	handlers map[string]Handler
}

var _ cdp.Executor = (*FakeExecutor)(nil)

func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{handlers: make(map[string]Handler)}
}

// Handle installs fn for method, replacing any earlier handler.
func (f *FakeExecutor) Handle(method string, fn Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = fn
}

func (f *FakeExecutor) Execute(ctx context.Context, method string, params, res any) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Params: params})
	fn := f.handlers[method]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	out, err := fn(params)
	if err != nil {
		return err
	}
	if res == nil || out == nil {
		return nil
	}
	dst := reflect.ValueOf(res)
	src := reflect.ValueOf(out)
	if dst.Kind() != reflect.Pointer || src.Type() != dst.Type() {
		return fmt.Errorf("fake %s: handler returned %T, caller wants %T", method, out, res)
	}
	dst.Elem().Set(src.Elem())
	return nil
}

// Calls returns a copy of every recorded call in order.
func (f *FakeExecutor) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Methods returns the method names of every recorded call in order.
func (f *FakeExecutor) Methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method
	}
	return out
}

// CallsTo filters recorded calls by method.
func (f *FakeExecutor) CallsTo(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// -- Connection Fakes --

// FakeConn is a session.Conn over a FakeExecutor whose push events are
// injected with Emit.
type FakeConn struct {
	*FakeExecutor

	mu         sync.Mutex
	sink       func(name string, payload any)
	closeCalls int
	CloseErr   error
}

var _ session.Conn = (*FakeConn)(nil)

func NewFakeConn() *FakeConn {
	return &FakeConn{FakeExecutor: NewFakeExecutor()}
}

func (c *FakeConn) Listen(sink func(name string, payload any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// Emit delivers a push event as the connection's read loop would.
func (c *FakeConn) Emit(name string, payload any) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(name, payload)
	}
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	return c.CloseErr
}

func (c *FakeConn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// FakeDialer returns a fixed connection or error and records the URLs dialed.
type FakeDialer struct {
	Conn session.Conn
	Err  error

	mu   sync.Mutex
	urls []string
}

func (d *FakeDialer) Dial(ctx context.Context, debugURL string) (session.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, debugURL)
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Conn, nil
}

func (d *FakeDialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// -- Process Mocks --

// MockLauncher mocks session.Launcher.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, spec session.LaunchSpec) (session.Process, error) {
	args := m.Called(ctx, spec)
	p, _ := args.Get(0).(session.Process)
	return p, args.Error(1)
}

// FakeProcess is a session.Process whose exit is driven by the test.
type FakeProcess struct {
	PID          int
	TerminateErr error

	mu             sync.Mutex
	done           chan struct{}
	exited         bool
	terminateCalls int
}

var _ session.Process = (*FakeProcess)(nil)

func NewFakeProcess(pid int) *FakeProcess {
	return &FakeProcess{PID: pid, done: make(chan struct{})}
}

func (p *FakeProcess) Pid() int              { return p.PID }
func (p *FakeProcess) Done() <-chan struct{} { return p.done }

func (p *FakeProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// Exit marks the process as reaped.
func (p *FakeProcess) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exited {
		p.exited = true
		close(p.done)
	}
}

func (p *FakeProcess) Terminate(ctx context.Context, grace time.Duration) error {
	p.mu.Lock()
	p.terminateCalls++
	err := p.TerminateErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.Exit()
	return nil
}

func (p *FakeProcess) TerminateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminateCalls
}

// -- Screenshot Mock --

// MockScreenshotter mocks anything that can capture the current page.
type MockScreenshotter struct {
	mock.Mock
}

func (m *MockScreenshotter) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}
