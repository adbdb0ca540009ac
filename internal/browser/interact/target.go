// internal/browser/interact/target.go
package interact

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/tabctl/internal/browser/session"
)

// ErrEmptyTarget is returned for the zero Target.
var ErrEmptyTarget = errors.New("interact: empty target")

// Kind tags the variant held by a Target.
type Kind int

const (
	KindSelector Kind = iota + 1
	KindPoint
	KindNode
)

func (k Kind) String() string {
	switch k {
	case KindSelector:
		return "selector"
	case KindPoint:
		return "point"
	case KindNode:
		return "node"
	default:
		return "none"
	}
}

// Target is what a pointer action aims at: a CSS selector, a literal
// viewport coordinate, or a DOM node handle.
type Target struct {
	kind     Kind
	selector string
	x, y     float64
	node     cdp.NodeID
}

func Selector(sel string) Target        { return Target{kind: KindSelector, selector: sel} }
func Point(x, y float64) Target         { return Target{kind: KindPoint, x: x, y: y} }
func Node(id cdp.NodeID) Target         { return Target{kind: KindNode, node: id} }
func (t Target) Kind() Kind             { return t.kind }
func (t Target) SelectorValue() string  { return t.selector }
func (t Target) NodeID() cdp.NodeID     { return t.node }
func (t Target) Coords() (x, y float64) { return t.x, t.y }

func (t Target) String() string {
	switch t.kind {
	case KindSelector:
		return "selector " + strconv.Quote(t.selector)
	case KindPoint:
		return fmt.Sprintf("point (%g, %g)", t.x, t.y)
	case KindNode:
		return fmt.Sprintf("node %d", t.node)
	default:
		return "empty target"
	}
}

// -- Offsets --

// Length is one axis of an offset: absolute pixels or a percentage of the
// element's extent on that axis. The zero Length means "unset" and resolves
// to the centre.
type Length struct {
	value   float64
	percent bool
	set     bool
}

func Px(v float64) Length  { return Length{value: v, set: true} }
func Pct(v float64) Length { return Length{value: v, percent: true, set: true} }

// ParseLength accepts "50%", "12" or "12px".
func ParseLength(s string) (Length, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Length{}, nil
	case strings.HasSuffix(s, "%"):
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Length{}, fmt.Errorf("invalid percentage offset %q", s)
		}
		return Pct(v), nil
	default:
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "px"), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Length{}, fmt.Errorf("invalid pixel offset %q", s)
		}
		return Px(v), nil
	}
}

func (l Length) resolve(extent float64) float64 {
	switch {
	case !l.set:
		return extent / 2
	case l.percent:
		return extent * l.value / 100
	default:
		return l.value
	}
}

func (l Length) String() string {
	switch {
	case !l.set:
		return "50%"
	case l.percent:
		return strconv.FormatFloat(l.value, 'f', -1, 64) + "%"
	default:
		return strconv.FormatFloat(l.value, 'f', -1, 64)
	}
}

// Offset is measured from the element's top-left corner. The zero Offset is
// the centre.
type Offset struct {
	X, Y Length
}

// ParseOffset parses a pair such as ("50%", "10").
func ParseOffset(x, y string) (Offset, error) {
	lx, err := ParseLength(x)
	if err != nil {
		return Offset{}, err
	}
	ly, err := ParseLength(y)
	if err != nil {
		return Offset{}, err
	}
	return Offset{X: lx, Y: ly}, nil
}

// Rect is an element's bounding box in viewport pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point applies o to r.
func (r Rect) Point(o Offset) (x, y float64) {
	return r.X + o.X.resolve(r.Width), r.Y + o.Y.resolve(r.Height)
}

// -- Resolution --

const rectJS = `(() => {
	const el = document.querySelector(%s);
	if (!el) return undefined;
	const r = el.getBoundingClientRect();
	return JSON.stringify({x: r.x, y: r.y, width: r.width, height: r.height});
})()`

// ResolveTarget turns t into a viewport coordinate. Points pass through
// untouched; selectors and nodes are measured and o is applied.
func (i *Interactor) ResolveTarget(ctx context.Context, t Target, o Offset) (x, y float64, err error) {
	switch t.kind {
	case KindPoint:
		return t.x, t.y, nil
	case KindSelector:
		r, err := i.selectorRect(ctx, t.selector)
		if err != nil {
			return 0, 0, err
		}
		x, y = r.Point(o)
		return x, y, nil
	case KindNode:
		r, err := i.nodeRect(ctx, t.node)
		if err != nil {
			return 0, 0, err
		}
		x, y = r.Point(o)
		return x, y, nil
	default:
		return 0, 0, ErrEmptyTarget
	}
}

func (i *Interactor) selectorRect(ctx context.Context, sel string) (Rect, error) {
	expr := fmt.Sprintf(rectJS, session.QuoteJS(sel))
	v, err := i.page.Evaluate(ctx, expr)
	if err != nil {
		return Rect{}, err
	}
	if v == nil {
		return Rect{}, &session.SelectorError{Selector: sel}
	}
	raw, ok := v.(string)
	if !ok {
		return Rect{}, &session.UnsupportedResultError{Type: fmt.Sprintf("%T", v), Expression: expr}
	}
	var r Rect
	if err := jsoniter.ConfigFastest.UnmarshalFromString(raw, &r); err != nil {
		return Rect{}, fmt.Errorf("decode bounding rect for %q: %w", sel, err)
	}
	return r, nil
}

func (i *Interactor) nodeRect(ctx context.Context, id cdp.NodeID) (Rect, error) {
	model, err := dom.GetBoxModel().WithNodeID(id).Do(cdp.WithExecutor(ctx, i.page))
	if err != nil {
		return Rect{}, fmt.Errorf("box model for node %d: %w", id, err)
	}
	return quadBounds(model.Content)
}

// quadBounds returns the axis-aligned box around a quad of four x,y pairs.
func quadBounds(q dom.Quad) (Rect, error) {
	if len(q) < 8 {
		return Rect{}, fmt.Errorf("malformed quad with %d coordinates", len(q))
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for j := 0; j+1 < len(q); j += 2 {
		minX, maxX = math.Min(minX, q[j]), math.Max(maxX, q[j])
		minY, maxY = math.Min(minY, q[j+1]), math.Max(maxY, q[j+1])
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, nil
}
