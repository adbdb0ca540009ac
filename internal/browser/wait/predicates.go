// internal/browser/wait/predicates.go
package wait

import (
	"context"
	"math"
	"time"
)

// VisibilityChecker is satisfied by *session.Session.
type VisibilityChecker interface {
	IsVisible(ctx context.Context, selector string) bool
	IsNotVisible(ctx context.Context, selector string) bool
}

// Evaluator is satisfied by *session.Session.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string) (any, error)
}

// Visible holds once selector matches an element that is not display:none.
func Visible(page VisibilityChecker, selector string) func(context.Context) (struct{}, bool, error) {
	return func(ctx context.Context) (struct{}, bool, error) {
		return struct{}{}, page.IsVisible(ctx, selector), nil
	}
}

// NotVisible holds once selector's element is display:none.
func NotVisible(page VisibilityChecker, selector string) func(context.Context) (struct{}, bool, error) {
	return func(ctx context.Context) (struct{}, bool, error) {
		return struct{}{}, page.IsNotVisible(ctx, selector), nil
	}
}

// Eval holds once expr evaluates to a truthy value, which is returned.
// Evaluation errors end the wait.
func Eval(page Evaluator, expr string) func(context.Context) (any, bool, error) {
	return func(ctx context.Context) (any, bool, error) {
		v, err := page.Evaluate(ctx, expr)
		if err != nil {
			return nil, false, err
		}
		return v, truthy(v), nil
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		return true
	}
}

// ForVisible waits for selector to become visible.
func (w *Waiter) ForVisible(ctx context.Context, page VisibilityChecker, selector string, timeout time.Duration) error {
	_, err := Until(ctx, w, "visible "+selector, timeout, Visible(page, selector))
	return err
}

// ForNotVisible waits for selector to become hidden.
func (w *Waiter) ForNotVisible(ctx context.Context, page VisibilityChecker, selector string, timeout time.Duration) error {
	_, err := Until(ctx, w, "hidden "+selector, timeout, NotVisible(page, selector))
	return err
}
