// internal/browser/interact/interact_test.go
package interact_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tabctl/internal/browser/interact"
	"github.com/xkilldash9x/tabctl/internal/browser/session"
	"github.com/xkilldash9x/tabctl/internal/config"
	"github.com/xkilldash9x/tabctl/internal/mocks"
)

// fakePage answers Evaluate from a script and records protocol calls.
type fakePage struct {
	*mocks.FakeExecutor
	eval  func(expr string) (any, error)
	evals []string
}

func newFakePage() *fakePage {
	return &fakePage{FakeExecutor: mocks.NewFakeExecutor()}
}

func (p *fakePage) Evaluate(_ context.Context, expr string) (any, error) {
	p.evals = append(p.evals, expr)
	if p.eval == nil {
		return nil, nil
	}
	return p.eval(expr)
}

// rectPage reports the same bounding box for every selector.
func rectPage(json string) *fakePage {
	p := newFakePage()
	p.eval = func(string) (any, error) { return json, nil }
	return p
}

type sleepRecorder struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses = append(r.pauses, d)
	return nil
}

func newInteractor(t *testing.T, p interact.Page) (*interact.Interactor, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	i := interact.New(p, config.DefaultInputConfig(), zaptest.NewLogger(t), interact.WithSleeper(rec.sleep))
	return i, rec
}

type mouseEv struct {
	Type   input.MouseType
	X, Y   float64
	Button input.MouseButton
	Count  int64
}

func mouseEvents(t *testing.T, f *mocks.FakeExecutor) []mouseEv {
	t.Helper()
	var out []mouseEv
	for _, c := range f.CallsTo(input.CommandDispatchMouseEvent) {
		p, ok := c.Params.(*input.DispatchMouseEventParams)
		require.True(t, ok)
		out = append(out, mouseEv{p.Type, p.X, p.Y, p.Button, p.ClickCount})
	}
	return out
}

type keyEv struct {
	Type      input.KeyType
	Key, Code string
	Text      string
	Mod       input.Modifier
}

func keyEvents(t *testing.T, f *mocks.FakeExecutor) []keyEv {
	t.Helper()
	var out []keyEv
	for _, c := range f.CallsTo(input.CommandDispatchKeyEvent) {
		p, ok := c.Params.(*input.DispatchKeyEventParams)
		require.True(t, ok)
		out = append(out, keyEv{p.Type, p.Key, p.Code, p.Text, p.Modifiers})
	}
	return out
}

// -- Target resolution --

func TestResolveTarget_Offsets(t *testing.T) {
	page := rectPage(`{"x":10,"y":20,"width":100,"height":50}`)
	i, _ := newInteractor(t, page)
	ctx := context.Background()

	x, y, err := i.ResolveTarget(ctx, interact.Selector("#box"), interact.Offset{})
	require.NoError(t, err)
	assert.Equal(t, 60.0, x)
	assert.Equal(t, 45.0, y)

	x, y, err = i.ResolveTarget(ctx, interact.Selector("#box"), interact.Offset{X: interact.Pct(50), Y: interact.Pct(50)})
	require.NoError(t, err)
	assert.Equal(t, 60.0, x)
	assert.Equal(t, 45.0, y)

	x, y, err = i.ResolveTarget(ctx, interact.Selector("#box"), interact.Offset{X: interact.Px(0), Y: interact.Px(0)})
	require.NoError(t, err)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 20.0, y)

	x, y, err = i.ResolveTarget(ctx, interact.Selector("#box"), interact.Offset{X: interact.Px(5), Y: interact.Pct(100)})
	require.NoError(t, err)
	assert.Equal(t, 15.0, x)
	assert.Equal(t, 70.0, y)

	require.Len(t, page.evals, 4)
	assert.Contains(t, page.evals[0], `document.querySelector("#box")`)
}

func TestResolveTarget_PointPassesThrough(t *testing.T) {
	page := newFakePage()
	i, _ := newInteractor(t, page)

	x, y, err := i.ResolveTarget(context.Background(), interact.Point(3, 4), interact.Offset{X: interact.Px(100)})
	require.NoError(t, err)
	assert.Equal(t, 3.0, x)
	assert.Equal(t, 4.0, y)
	assert.Empty(t, page.evals)
	assert.Empty(t, page.Calls())
}

func TestResolveTarget_MissingSelector(t *testing.T) {
	i, _ := newInteractor(t, newFakePage())

	_, _, err := i.ResolveTarget(context.Background(), interact.Selector("#nope"), interact.Offset{})
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrSelectorNotFound)
	assert.Contains(t, err.Error(), `"#nope"`)
}

func TestResolveTarget_Node(t *testing.T) {
	page := newFakePage()
	page.Handle(dom.CommandGetBoxModel, func(params any) (any, error) {
		p := params.(*dom.GetBoxModelParams)
		assert.Equal(t, cdp.NodeID(7), p.NodeID)
		return &dom.GetBoxModelReturns{Model: &dom.BoxModel{
			Content: dom.Quad{10, 20, 110, 20, 110, 70, 10, 70},
		}}, nil
	})
	i, _ := newInteractor(t, page)

	x, y, err := i.ResolveTarget(context.Background(), interact.Node(7), interact.Offset{})
	require.NoError(t, err)
	assert.Equal(t, 60.0, x)
	assert.Equal(t, 45.0, y)
}

func TestResolveTarget_EmptyTarget(t *testing.T) {
	i, _ := newInteractor(t, newFakePage())
	_, _, err := i.ResolveTarget(context.Background(), interact.Target{}, interact.Offset{})
	assert.ErrorIs(t, err, interact.ErrEmptyTarget)
}

func TestResolveTarget_UnexpectedResult(t *testing.T) {
	page := newFakePage()
	page.eval = func(string) (any, error) { return 12.0, nil }
	i, _ := newInteractor(t, page)

	_, _, err := i.ResolveTarget(context.Background(), interact.Selector("a"), interact.Offset{})
	assert.ErrorIs(t, err, session.ErrUnsupportedResult)
}

func TestParseOffset(t *testing.T) {
	o, err := interact.ParseOffset("50%", "10px")
	require.NoError(t, err)
	x, y := interact.Rect{X: 0, Y: 0, Width: 200, Height: 40}.Point(o)
	assert.Equal(t, 100.0, x)
	assert.Equal(t, 10.0, y)

	o, err = interact.ParseOffset("", " 25 ")
	require.NoError(t, err)
	assert.Equal(t, "50%", o.X.String())
	assert.Equal(t, "25", o.Y.String())

	for _, bad := range []string{"abc", "%", "NaN", "1e999"} {
		_, err := interact.ParseLength(bad)
		assert.Error(t, err, bad)
	}
}

func TestTargetKinds(t *testing.T) {
	assert.Equal(t, interact.KindSelector, interact.Selector("a").Kind())
	assert.Equal(t, interact.KindPoint, interact.Point(1, 2).Kind())
	assert.Equal(t, interact.KindNode, interact.Node(3).Kind())
	assert.Equal(t, `selector "a"`, interact.Selector("a").String())
	assert.Equal(t, "none", interact.Target{}.Kind().String())
}

// -- Mouse --

func TestClick_Sequence(t *testing.T) {
	page := rectPage(`{"x":10,"y":20,"width":100,"height":50}`)
	i, rec := newInteractor(t, page)

	require.NoError(t, i.Click(context.Background(), interact.Selector("#b"), interact.MouseOptions{}))

	assert.Equal(t, []mouseEv{
		{input.MouseMoved, 60, 45, input.Left, 1},
		{input.MousePressed, 60, 45, input.Left, 1},
		{input.MouseReleased, 60, 45, input.Left, 1},
	}, mouseEvents(t, page.FakeExecutor))
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, rec.pauses)
	assert.Len(t, page.evals, 1, "target resolved once")
}

func TestRightClick(t *testing.T) {
	page := newFakePage()
	i, _ := newInteractor(t, page)

	require.NoError(t, i.RightClick(context.Background(), interact.Point(1, 2), interact.MouseOptions{}))
	for _, ev := range mouseEvents(t, page.FakeExecutor) {
		assert.Equal(t, input.Right, ev.Button)
	}
}

func TestDoubleClick(t *testing.T) {
	page := rectPage(`{"x":0,"y":0,"width":10,"height":10}`)
	i, rec := newInteractor(t, page)

	require.NoError(t, i.DoubleClick(context.Background(), interact.Selector("#d"), interact.MouseOptions{}))

	evs := mouseEvents(t, page.FakeExecutor)
	require.Len(t, evs, 6)
	assert.Equal(t, int64(1), evs[1].Count)
	assert.Equal(t, int64(2), evs[4].Count)
	assert.Len(t, page.evals, 1)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 150 * time.Millisecond, 50 * time.Millisecond}, rec.pauses)
}

func TestDrag(t *testing.T) {
	page := newFakePage()
	i, rec := newInteractor(t, page)

	require.NoError(t, i.Drag(context.Background(), interact.Point(1, 1), interact.Point(9, 9), interact.DragOptions{}))

	assert.Equal(t, []mouseEv{
		{input.MouseMoved, 1, 1, input.Left, 1},
		{input.MousePressed, 1, 1, input.Left, 1},
		{input.MouseMoved, 9, 9, input.Left, 1},
		{input.MouseReleased, 9, 9, input.Left, 1},
	}, mouseEvents(t, page.FakeExecutor))
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, rec.pauses)
}

func TestDrag_BadDestinationSendsNothing(t *testing.T) {
	page := newFakePage()
	i, _ := newInteractor(t, page)

	err := i.Drag(context.Background(), interact.Point(1, 1), interact.Selector("#gone"), interact.DragOptions{})
	require.ErrorIs(t, err, session.ErrSelectorNotFound)
	assert.Empty(t, mouseEvents(t, page.FakeExecutor))
}

func TestMouseEvent_DispatchError(t *testing.T) {
	page := newFakePage()
	page.Handle(input.CommandDispatchMouseEvent, func(any) (any, error) { return nil, errors.New("boom") })
	i, _ := newInteractor(t, page)

	err := i.MouseDown(context.Background(), interact.Point(1, 1), interact.MouseOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

// -- Keyboard --

func TestPressKey_Character(t *testing.T) {
	page := newFakePage()
	i, _ := newInteractor(t, page)

	require.NoError(t, i.PressKey(context.Background(), "a", interact.KeyOptions{}))

	assert.Equal(t, []keyEv{
		{input.KeyDown, "a", "KeyA", "", input.ModifierNone},
		{input.KeyChar, "a", "KeyA", "a", input.ModifierNone},
		{input.KeyUp, "a", "KeyA", "", input.ModifierNone},
	}, keyEvents(t, page.FakeExecutor))
}

func TestPressKey_EnterHasNoChar(t *testing.T) {
	for _, name := range []string{"Enter", "\r"} {
		page := newFakePage()
		i, _ := newInteractor(t, page)

		require.NoError(t, i.PressKey(context.Background(), name, interact.KeyOptions{}))
		evs := keyEvents(t, page.FakeExecutor)
		require.Len(t, evs, 2, name)
		assert.Equal(t, input.KeyDown, evs[0].Type)
		assert.Equal(t, input.KeyUp, evs[1].Type)
		assert.Equal(t, "Enter", evs[0].Key)
	}
}

func TestPressKey_Modifier(t *testing.T) {
	tests := []struct {
		opts interact.KeyOptions
		want input.Modifier
	}{
		{interact.KeyOptions{Alt: true}, input.ModifierAlt},
		{interact.KeyOptions{Ctrl: true}, input.ModifierCtrl},
		{interact.KeyOptions{Meta: true}, input.ModifierMeta},
		{interact.KeyOptions{Shift: true}, input.ModifierShift},
	}
	for _, tt := range tests {
		page := newFakePage()
		i, _ := newInteractor(t, page)
		require.NoError(t, i.PressKey(context.Background(), "Tab", tt.opts))
		for _, ev := range keyEvents(t, page.FakeExecutor) {
			assert.Equal(t, tt.want, ev.Mod)
		}
	}
}

func TestPressKey_RejectsTwoModifiers(t *testing.T) {
	page := newFakePage()
	i, _ := newInteractor(t, page)

	err := i.PressKey(context.Background(), "a", interact.KeyOptions{Ctrl: true, Shift: true})
	require.ErrorIs(t, err, interact.ErrUnsupportedModifier)
	assert.Empty(t, page.Calls())
}

func TestPressKey_UnknownKey(t *testing.T) {
	page := newFakePage()
	i, _ := newInteractor(t, page)

	err := i.PressKey(context.Background(), "NotAKey", interact.KeyOptions{})
	require.ErrorIs(t, err, interact.ErrUnknownKey)
	assert.Empty(t, page.Calls())
}

func TestTypeText(t *testing.T) {
	page := newFakePage()
	i, rec := newInteractor(t, page)

	require.NoError(t, i.TypeText(context.Background(), "hi", interact.KeyOptions{}))

	var typed string
	for _, ev := range keyEvents(t, page.FakeExecutor) {
		if ev.Type == input.KeyChar {
			typed += ev.Text
		}
	}
	assert.Equal(t, "hi", typed)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, rec.pauses)
}

func TestPressKeys_StopsAtFirstError(t *testing.T) {
	page := newFakePage()
	i, _ := newInteractor(t, page)

	err := i.PressKeys(context.Background(), []string{"a", "Bogus", "b"}, interact.KeyOptions{})
	require.ErrorIs(t, err, interact.ErrUnknownKey)
	assert.Contains(t, err.Error(), "key 2 of 3")
	assert.Len(t, keyEvents(t, page.FakeExecutor), 3, "only the first key was sent")
}

func TestDefaultSleeperHonoursContext(t *testing.T) {
	page := newFakePage()
	i := interact.New(page, config.InputConfig{ClickHold: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := i.Click(ctx, interact.Point(0, 0), interact.MouseOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, mouseEvents(t, page.FakeExecutor), 2, "release never sent")
}
