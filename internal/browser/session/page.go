// internal/browser/session/page.go
package session

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/tabctl/internal/browser/events"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PageOptions tunes OpenURL. Zero values fall back to configuration.
type PageOptions struct {
	Width  int
	Height int
	// Extra settle time after the load event.
	Delay time.Duration
}

// QuoteJS renders s as a JavaScript string literal, safe to splice into an expression.
func QuoteJS(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func (s *Session) withExecutor(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, s)
}

// OpenURL enables the page domains, applies the viewport, navigates and
// waits for the load event, then refreshes the cached document.
func (s *Session) OpenURL(ctx context.Context, url string, opts PageOptions) error {
	ectx := s.withExecutor(ctx)

	g, gctx := errgroup.WithContext(ectx)
	g.Go(func() error { return page.Enable().Do(gctx) })
	g.Go(func() error { return dom.Enable().Do(gctx) })
	g.Go(func() error { return network.Enable().Do(gctx) })
	g.Go(func() error { return runtime.Enable().Do(gctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("enable domains: %w", err)
	}

	width, height := opts.Width, opts.Height
	if s.headless {
		if width == 0 {
			width = s.cfg.Browser().WindowWidth
		}
		if height == 0 {
			height = s.cfg.Browser().WindowHeight
		}
	}
	if err := emulation.SetDeviceMetricsOverride(int64(width), int64(height), 0, false).Do(ectx); err != nil {
		return fmt.Errorf("set device metrics: %w", err)
	}

	// Subscribe before navigating so a fast load is not missed.
	loaded := make(chan struct{})
	var loadOnce sync.Once
	onLoad := events.NewListener(func(any) { loadOnce.Do(func() { close(loaded) }) })
	s.registry.Listen(EventLoadFired, onLoad)
	defer s.registry.Unlisten(EventLoadFired, onLoad)

	var nav page.NavigateReturns
	if err := s.Execute(ctx, page.CommandNavigate, page.Navigate(url), &nav); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if nav.ErrorText != "" {
		return fmt.Errorf("navigate to %s: %s", url, nav.ErrorText)
	}

	loadTimeout := s.cfg.Page().LoadTimeout
	timer := time.NewTimer(loadTimeout)
	defer timer.Stop()
	select {
	case <-loaded:
	case <-timer.C:
		return fmt.Errorf("page %s did not fire load within %v", url, loadTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	delay := opts.Delay
	if delay == 0 {
		delay = s.cfg.Page().PostLoadDelay
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.logger.Debug("Page loaded.", zap.String("url", url))
	return s.PageChanged(ctx)
}

// PageChanged re-fetches the document root. Call it after anything that
// replaces the document, such as in-page navigation.
func (s *Session) PageChanged(ctx context.Context) error {
	doc, err := dom.GetDocument().Do(s.withExecutor(ctx))
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	s.mu.Lock()
	s.document = doc
	s.mu.Unlock()
	return nil
}

// Document returns the cached root node, or nil before the first load.
func (s *Session) Document() *cdp.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.document
}

// Evaluate runs expr in the page. Only number, string, boolean and undefined
// results are accepted; undefined comes back as nil, numbers as float64.
func (s *Session) Evaluate(ctx context.Context, expr string) (any, error) {
	obj, exc, err := runtime.Evaluate(expr).WithReturnByValue(true).Do(s.withExecutor(ctx))
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if exc != nil {
		return nil, &EvaluationError{Expression: expr, Text: exceptionText(exc)}
	}
	return decodeResult(expr, obj)
}

// EvaluateString is Evaluate for expressions that must produce a string.
func (s *Session) EvaluateString(ctx context.Context, expr string) (string, error) {
	v, err := s.Evaluate(ctx, expr)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", &UnsupportedResultError{Type: fmt.Sprintf("%T", v), Expression: expr}
	}
	return str, nil
}

func decodeResult(expr string, obj *runtime.RemoteObject) (any, error) {
	if obj == nil {
		return nil, nil
	}
	switch obj.Type {
	case runtime.TypeUndefined:
		return nil, nil
	case runtime.TypeNumber:
		if len(obj.Value) == 0 {
			// NaN, Infinity and -0 arrive as unserializable values.
			return parseUnserializable(string(obj.UnserializableValue))
		}
		var f float64
		if err := json.Unmarshal([]byte(obj.Value), &f); err != nil {
			return nil, fmt.Errorf("decode number result: %w", err)
		}
		return f, nil
	case runtime.TypeString:
		var str string
		if err := json.Unmarshal([]byte(obj.Value), &str); err != nil {
			return nil, fmt.Errorf("decode string result: %w", err)
		}
		return str, nil
	case runtime.TypeBoolean:
		var b bool
		if err := json.Unmarshal([]byte(obj.Value), &b); err != nil {
			return nil, fmt.Errorf("decode boolean result: %w", err)
		}
		return b, nil
	default:
		return nil, &UnsupportedResultError{Type: string(obj.Type), Subtype: string(obj.Subtype), Expression: expr}
	}
}

func parseUnserializable(v string) (float64, error) {
	switch v {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	case "-0":
		return math.Copysign(0, -1), nil
	}
	return strconv.ParseFloat(v, 64)
}

func exceptionText(exc *runtime.ExceptionDetails) string {
	if exc.Exception != nil && exc.Exception.Description != "" {
		return exc.Exception.Description
	}
	return exc.Text
}

// QuerySelector resolves selector against the cached document.
func (s *Session) QuerySelector(ctx context.Context, selector string) (cdp.NodeID, error) {
	doc := s.Document()
	if doc == nil {
		return 0, ErrNoDocument
	}
	id, err := dom.QuerySelector(doc.NodeID, selector).Do(s.withExecutor(ctx))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", &SelectorError{Selector: selector}, err)
	}
	if id == 0 {
		return 0, &SelectorError{Selector: selector}
	}
	return id, nil
}

// IsVisible reports whether selector's computed display is not "none".
// A failed evaluation (missing element, detached page) is not determinable
// and reports false.
func (s *Session) IsVisible(ctx context.Context, selector string) bool {
	return s.displayCheck(ctx, selector, "!==")
}

// IsNotVisible reports whether selector's computed display is "none", with
// the same false-on-error rule as IsVisible.
func (s *Session) IsNotVisible(ctx context.Context, selector string) bool {
	return s.displayCheck(ctx, selector, "===")
}

func (s *Session) displayCheck(ctx context.Context, selector, op string) bool {
	expr := fmt.Sprintf(`window.getComputedStyle(document.querySelector(%s)).display %s "none"`, QuoteJS(selector), op)
	v, err := s.Evaluate(ctx, expr)
	if err != nil {
		s.logger.Debug("Visibility not determinable.", zap.String("selector", selector), zap.Error(err))
		return false
	}
	b, _ := v.(bool)
	return b
}

// Text returns the rendered text of the first element matching selector.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	expr := fmt.Sprintf(`(() => { const el = document.querySelector(%s); return el ? el.innerText : undefined; })()`, QuoteJS(selector))
	v, err := s.Evaluate(ctx, expr)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", &SelectorError{Selector: selector}
	}
	str, ok := v.(string)
	if !ok {
		return "", &UnsupportedResultError{Type: fmt.Sprintf("%T", v), Expression: expr}
	}
	return str, nil
}

// CaptureScreenshot returns a PNG of the current viewport.
func (s *Session) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	buf, err := page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(s.withExecutor(ctx))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// ResponseBody fetches the decoded body of a finished request.
func (s *Session) ResponseBody(ctx context.Context, id network.RequestID) ([]byte, error) {
	body, err := network.GetResponseBody(id).Do(s.withExecutor(ctx))
	if err != nil {
		return nil, fmt.Errorf("get response body %s: %w", id, err)
	}
	return body, nil
}
