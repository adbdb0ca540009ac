// internal/browser/interact/keyboard.go
package interact

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
	"github.com/samber/lo"
)

// ErrUnsupportedModifier is returned when more than one modifier is requested.
var ErrUnsupportedModifier = errors.New("interact: only one modifier key is supported per press")

// KeyOptions selects at most one held modifier.
type KeyOptions struct {
	Alt   bool
	Ctrl  bool
	Meta  bool
	Shift bool
}

func (o KeyOptions) modifier() (input.Modifier, error) {
	if lo.Count([]bool{o.Alt, o.Ctrl, o.Meta, o.Shift}, true) > 1 {
		return input.ModifierNone, ErrUnsupportedModifier
	}
	switch {
	case o.Alt:
		return input.ModifierAlt, nil
	case o.Ctrl:
		return input.ModifierCtrl, nil
	case o.Meta:
		return input.ModifierMeta, nil
	case o.Shift:
		return input.ModifierShift, nil
	default:
		return input.ModifierNone, nil
	}
}

// PressKey sends keyDown, an optional char event and keyUp for one key.
// Modifier and keymap errors are reported before anything is dispatched.
func (i *Interactor) PressKey(ctx context.Context, name string, opts KeyOptions) error {
	mod, err := opts.modifier()
	if err != nil {
		return err
	}
	k, err := lookupKey(name)
	if err != nil {
		return err
	}

	if err := i.dispatchKey(ctx, input.KeyDown, k, mod); err != nil {
		return err
	}
	// Enter produces its input through keyDown; a char event would double it.
	if k.Text != "" && k.Text != "\r" {
		if err := i.dispatchKey(ctx, input.KeyChar, k, mod); err != nil {
			return err
		}
	}
	return i.dispatchKey(ctx, input.KeyUp, k, mod)
}

func (i *Interactor) dispatchKey(ctx context.Context, typ input.KeyType, k *kb.Key, mod input.Modifier) error {
	p := input.DispatchKeyEvent(typ).
		WithKey(k.Key).
		WithCode(k.Code).
		WithNativeVirtualKeyCode(k.Native).
		WithWindowsVirtualKeyCode(k.Windows).
		WithModifiers(mod)
	if typ == input.KeyChar {
		p = p.WithText(k.Text).WithUnmodifiedText(k.Unmodified)
	}
	if err := p.Do(i.ctx(ctx)); err != nil {
		return fmt.Errorf("dispatch %s %q: %w", typ, k.Key, err)
	}
	return nil
}

// PressKeys presses each key in turn with the configured interval after
// every press. It stops at the first failure.
func (i *Interactor) PressKeys(ctx context.Context, keys []string, opts KeyOptions) error {
	for n, key := range keys {
		if err := i.PressKey(ctx, key, opts); err != nil {
			return fmt.Errorf("key %d of %d: %w", n+1, len(keys), err)
		}
		if err := i.pause(ctx, i.cfg.KeyInterval); err != nil {
			return err
		}
	}
	return nil
}

// TypeText presses every character of text.
func (i *Interactor) TypeText(ctx context.Context, text string, opts KeyOptions) error {
	chars := lo.Map([]rune(text), func(r rune, _ int) string { return string(r) })
	return i.PressKeys(ctx, chars, opts)
}
