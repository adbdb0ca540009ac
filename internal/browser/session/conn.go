// internal/browser/session/conn.go
package session

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Conn is an attached protocol client. Execute is safe for concurrent use;
// each call carries its own correlation.
type Conn interface {
	cdp.Executor
	// Listen installs the sink for push events. name is the protocol method,
	// e.g. "Network.loadingFinished". The sink runs on the connection's read
	// loop and must not block.
	Listen(sink func(name string, payload any))
	Close() error
}

// Protocol event names the page and capture layers subscribe to.
const (
	EventResponseReceived = string(cdproto.EventNetworkResponseReceived)
	EventLoadingFinished  = string(cdproto.EventNetworkLoadingFinished)
	EventLoadingFailed    = string(cdproto.EventNetworkLoadingFailed)
	EventLoadFired        = string(cdproto.EventPageLoadEventFired)
)

// Dialer performs the protocol handshake against a browser's debug endpoint.
type Dialer interface {
	Dial(ctx context.Context, debugURL string) (Conn, error)
}

// ChromedpDialer attaches to an already running browser through chromedp's
// remote allocator and opens one page target.
type ChromedpDialer struct {
	logger *zap.Logger
}

func NewChromedpDialer(logger *zap.Logger) *ChromedpDialer {
	return &ChromedpDialer{logger: logger.Named("dialer")}
}

// Dial attaches to debugURL. ctx bounds the handshake only; the connection
// itself lives until Close.
func (d *ChromedpDialer) Dial(ctx context.Context, debugURL string) (Conn, error) {
	// The first chromedp.Run allocates the browser connection on the context it
	// is handed, so a deadline there would later tear the connection down.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(Detach(ctx), debugURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx) }()

	select {
	case err := <-errc:
		if err != nil {
			tabCancel()
			allocCancel()
			return nil, err
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		<-errc
		return nil, ctx.Err()
	}

	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("no page target attached at %s", debugURL)
	}

	conn := &chromedpConn{
		ctx:         tabCtx,
		target:      c.Target,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		logger:      d.logger,
	}
	chromedp.ListenTarget(tabCtx, conn.onEvent)

	d.logger.Debug("Attached to browser.", zap.String("url", debugURL))
	return conn, nil
}

type chromedpConn struct {
	ctx         context.Context
	target      cdp.Executor
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	mu   sync.RWMutex
	sink func(name string, payload any)

	closeOnce sync.Once
	closeErr  error
}

func (c *chromedpConn) Execute(ctx context.Context, method string, params, res any) error {
	return c.target.Execute(ctx, method, params, res)
}

func (c *chromedpConn) Listen(sink func(name string, payload any)) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *chromedpConn) onEvent(ev any) {
	c.mu.RLock()
	sink := c.sink
	c.mu.RUnlock()
	if sink == nil {
		return
	}
	sink(eventName(ev), ev)
}

func (c *chromedpConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = chromedp.Cancel(c.ctx)
		c.tabCancel()
		c.allocCancel()
	})
	return c.closeErr
}

// eventName maps a decoded chromedp event back to its protocol method name.
// Events nothing here subscribes to fall back to their Go type name.
func eventName(ev any) string {
	if ev == nil {
		return ""
	}
	var m cdproto.MethodType
	switch ev.(type) {
	case *network.EventRequestWillBeSent:
		m = cdproto.EventNetworkRequestWillBeSent
	case *network.EventResponseReceived:
		m = cdproto.EventNetworkResponseReceived
	case *network.EventDataReceived:
		m = cdproto.EventNetworkDataReceived
	case *network.EventLoadingFinished:
		m = cdproto.EventNetworkLoadingFinished
	case *network.EventLoadingFailed:
		m = cdproto.EventNetworkLoadingFailed
	case *page.EventLoadEventFired:
		m = cdproto.EventPageLoadEventFired
	case *page.EventDomContentEventFired:
		m = cdproto.EventPageDomContentEventFired
	case *page.EventFrameNavigated:
		m = cdproto.EventPageFrameNavigated
	case *dom.EventDocumentUpdated:
		m = cdproto.EventDOMDocumentUpdated
	case *runtime.EventConsoleAPICalled:
		m = cdproto.EventRuntimeConsoleAPICalled
	case *runtime.EventExceptionThrown:
		m = cdproto.EventRuntimeExceptionThrown
	default:
		return reflect.TypeOf(ev).String()
	}
	return string(m)
}
