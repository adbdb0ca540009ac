// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// valueOnlyContext keeps the parent's values but drops its deadline and
// cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that carries ctx's values but is never canceled
// by it. Teardown runs on a detached context so an interrupted command still
// closes the browser and removes its profile.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}

// detachedWithTimeout bounds a detached context.
func detachedWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(Detach(ctx))
	}
	return context.WithTimeout(Detach(ctx), d)
}
