// internal/browser/wait/wait.go
package wait

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabctl/internal/browser/diag"
	"github.com/xkilldash9x/tabctl/internal/config"
)

// ErrTimeout matches every *TimeoutError.
var ErrTimeout = errors.New("wait: timed out")

// TimeoutError reports a condition that never held within its budget.
// ScreenshotPath is set only when the diagnostic capture was written.
type TimeoutError struct {
	Description    string
	Timeout        time.Duration
	ScreenshotPath string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Description)
	if e.ScreenshotPath != "" {
		msg += " (screenshot: " + e.ScreenshotPath + ")"
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Waiter holds the shared settings for polling waits.
type Waiter struct {
	shooter        diag.Screenshotter
	logger         *zap.Logger
	clock          clock.Clock
	fs             afero.Fs
	timeout        time.Duration
	pollInterval   time.Duration
	screenshotPath string
}

// Option configures a Waiter.
type Option func(*Waiter)

func WithClock(c clock.Clock) Option          { return func(w *Waiter) { w.clock = c } }
func WithPollInterval(d time.Duration) Option { return func(w *Waiter) { w.pollInterval = d } }
func WithScreenshotPath(path string) Option   { return func(w *Waiter) { w.screenshotPath = path } }
func WithFs(fs afero.Fs) Option               { return func(w *Waiter) { w.fs = fs } }
func WithTimeout(d time.Duration) Option      { return func(w *Waiter) { w.timeout = d } }

func WithConfig(cfg config.WaitConfig) Option {
	return func(w *Waiter) {
		w.timeout = cfg.Timeout
		w.pollInterval = cfg.PollInterval
		w.screenshotPath = cfg.ScreenshotPath
	}
}

// New builds a Waiter. shooter may be nil, which disables screenshots.
func New(shooter diag.Screenshotter, logger *zap.Logger, opts ...Option) *Waiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := config.NewDefaultConfig().Wait()
	w := &Waiter{
		shooter:        shooter,
		logger:         logger.Named("wait"),
		clock:          clock.New(),
		fs:             afero.NewOsFs(),
		timeout:        def.Timeout,
		pollInterval:   def.PollInterval,
		screenshotPath: def.ScreenshotPath,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Timeout is the budget used when Until is given zero.
func (w *Waiter) Timeout() time.Duration { return w.timeout }

type outcome[T any] struct {
	val T
	err error
}

// Until polls fn until it reports done, returns an error, or the timeout
// elapses, whichever happens first. Only the first of those outcomes
// counts; anything fn produces afterwards is discarded. fn receives a
// context that is cancelled once Until returns.
//
// On timeout a screenshot is written best effort and a *TimeoutError is
// returned. Cancellation of ctx returns ctx.Err() and takes no screenshot.
func Until[T any](ctx context.Context, w *Waiter, description string, timeout time.Duration, fn func(ctx context.Context) (T, bool, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = w.timeout
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	deadline := w.clock.Timer(timeout)
	defer deadline.Stop()

	actx, stop := context.WithCancel(ctx)
	defer stop()

	var attempts atomic.Int64
	done := make(chan outcome[T], 1)
	go func() {
		for {
			attempts.Add(1)
			v, ok, err := fn(actx)
			if err != nil {
				done <- outcome[T]{err: err}
				return
			}
			if ok {
				done <- outcome[T]{val: v}
				return
			}
			if w.yield(actx) != nil {
				return
			}
		}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-deadline.C:
		stop()
		w.logger.Warn("Wait timed out.",
			zap.String("condition", description),
			zap.Duration("timeout", timeout),
			zap.Int64("attempts", attempts.Load()))
		terr := &TimeoutError{Description: description, Timeout: timeout}
		if diag.SaveScreenshot(ctx, w.fs, w.shooter, w.screenshotPath, w.logger) {
			terr.ScreenshotPath = w.screenshotPath
		}
		return zero, terr
	}
}

// yield gives the event loop a turn between attempts.
func (w *Waiter) yield(ctx context.Context) error {
	if w.pollInterval <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}
	t := w.clock.Timer(w.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
