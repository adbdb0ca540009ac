// internal/browser/interact/mouse.go
package interact

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/input"
	"go.uber.org/zap"
)

// MouseOptions tunes a single pointer action. The zero value is a left
// button, one click, aimed at the centre of the target.
type MouseOptions struct {
	Button     input.MouseButton
	ClickCount int
	Offset     Offset
}

func (o MouseOptions) button() input.MouseButton {
	if o.Button == "" {
		return input.Left
	}
	return o.Button
}

func (o MouseOptions) clicks() int64 {
	if o.ClickCount <= 0 {
		return 1
	}
	return int64(o.ClickCount)
}

// DragOptions tunes Drag.
type DragOptions struct {
	Button       input.MouseButton
	SourceOffset Offset
	DestOffset   Offset
}

// MouseEvent resolves t and dispatches one raw mouse event of type typ.
func (i *Interactor) MouseEvent(ctx context.Context, t Target, typ input.MouseType, opts MouseOptions) error {
	x, y, err := i.ResolveTarget(ctx, t, opts.Offset)
	if err != nil {
		return err
	}
	return i.dispatchMouse(ctx, typ, x, y, opts)
}

func (i *Interactor) MouseDown(ctx context.Context, t Target, opts MouseOptions) error {
	return i.MouseEvent(ctx, t, input.MousePressed, opts)
}

func (i *Interactor) MouseUp(ctx context.Context, t Target, opts MouseOptions) error {
	return i.MouseEvent(ctx, t, input.MouseReleased, opts)
}

func (i *Interactor) MouseMove(ctx context.Context, t Target, opts MouseOptions) error {
	return i.MouseEvent(ctx, t, input.MouseMoved, opts)
}

func (i *Interactor) dispatchMouse(ctx context.Context, typ input.MouseType, x, y float64, opts MouseOptions) error {
	err := input.DispatchMouseEvent(typ, x, y).
		WithButton(opts.button()).
		WithClickCount(opts.clicks()).
		Do(i.ctx(ctx))
	if err != nil {
		return fmt.Errorf("dispatch %s at (%g, %g): %w", typ, x, y, err)
	}
	return nil
}

// Click moves to t, presses, holds briefly and releases. The target is
// resolved once.
func (i *Interactor) Click(ctx context.Context, t Target, opts MouseOptions) error {
	x, y, err := i.ResolveTarget(ctx, t, opts.Offset)
	if err != nil {
		return err
	}
	i.logger.Debug("click", zap.Stringer("target", t), zap.Float64("x", x), zap.Float64("y", y))
	return i.clickAt(ctx, x, y, opts)
}

func (i *Interactor) clickAt(ctx context.Context, x, y float64, opts MouseOptions) error {
	if err := i.dispatchMouse(ctx, input.MouseMoved, x, y, opts); err != nil {
		return err
	}
	if err := i.dispatchMouse(ctx, input.MousePressed, x, y, opts); err != nil {
		return err
	}
	if err := i.pause(ctx, i.cfg.ClickHold); err != nil {
		return err
	}
	return i.dispatchMouse(ctx, input.MouseReleased, x, y, opts)
}

// RightClick is Click with the right button.
func (i *Interactor) RightClick(ctx context.Context, t Target, opts MouseOptions) error {
	opts.Button = input.Right
	return i.Click(ctx, t, opts)
}

// DoubleClick clicks twice at the same coordinate. The second click carries
// a click count of two so the page sees a dblclick.
func (i *Interactor) DoubleClick(ctx context.Context, t Target, opts MouseOptions) error {
	x, y, err := i.ResolveTarget(ctx, t, opts.Offset)
	if err != nil {
		return err
	}
	first := opts
	first.ClickCount = 1
	if err := i.clickAt(ctx, x, y, first); err != nil {
		return err
	}
	if err := i.pause(ctx, i.cfg.DoubleClickGap); err != nil {
		return err
	}
	second := opts
	second.ClickCount = 2
	return i.clickAt(ctx, x, y, second)
}

// Drag presses on src, moves to dst and releases there. Both ends are
// resolved before any event is sent, so a bad destination never leaves the
// button held down.
func (i *Interactor) Drag(ctx context.Context, src, dst Target, opts DragOptions) error {
	sx, sy, err := i.ResolveTarget(ctx, src, opts.SourceOffset)
	if err != nil {
		return fmt.Errorf("drag source: %w", err)
	}
	dx, dy, err := i.ResolveTarget(ctx, dst, opts.DestOffset)
	if err != nil {
		return fmt.Errorf("drag destination: %w", err)
	}
	mo := MouseOptions{Button: opts.Button}

	if err := i.dispatchMouse(ctx, input.MouseMoved, sx, sy, mo); err != nil {
		return err
	}
	if err := i.dispatchMouse(ctx, input.MousePressed, sx, sy, mo); err != nil {
		return err
	}
	if err := i.pause(ctx, i.cfg.DragStep); err != nil {
		return err
	}
	if err := i.dispatchMouse(ctx, input.MouseMoved, dx, dy, mo); err != nil {
		return err
	}
	if err := i.pause(ctx, i.cfg.DragStep); err != nil {
		return err
	}
	return i.dispatchMouse(ctx, input.MouseReleased, dx, dy, mo)
}
