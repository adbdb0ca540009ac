// internal/browser/interact/interactor.go
package interact

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabctl/internal/config"
)

// Page is the slice of a session the input engine needs: a protocol
// executor and value-returning evaluation. *session.Session satisfies it.
type Page interface {
	cdp.Executor
	Evaluate(ctx context.Context, expr string) (any, error)
}

// Sleeper pauses between the steps of a composite gesture.
type Sleeper func(ctx context.Context, d time.Duration) error

// Interactor synthesises mouse and keyboard input against a Page.
type Interactor struct {
	page   Page
	cfg    config.InputConfig
	logger *zap.Logger
	sleep  Sleeper
}

// Option configures an Interactor.
type Option func(*Interactor)

// WithSleeper swaps the pause implementation, mostly for tests.
func WithSleeper(s Sleeper) Option { return func(i *Interactor) { i.sleep = s } }

// New builds an Interactor. Zero delays in cfg are taken literally.
func New(page Page, cfg config.InputConfig, logger *zap.Logger, opts ...Option) *Interactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Interactor{
		page:   page,
		cfg:    cfg,
		logger: logger.Named("interact"),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interactor) ctx(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, i.page)
}

func (i *Interactor) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return i.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
