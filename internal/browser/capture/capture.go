// internal/browser/capture/capture.go
package capture

import (
	"context"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/chromedp/cdproto/network"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabctl/internal/browser/diag"
	"github.com/xkilldash9x/tabctl/internal/browser/events"
	"github.com/xkilldash9x/tabctl/internal/browser/session"
	"github.com/xkilldash9x/tabctl/internal/config"
)

// Fetcher retrieves a finished response body. *session.Session satisfies it.
type Fetcher interface {
	ResponseBody(ctx context.Context, id network.RequestID) ([]byte, error)
}

// Capturer writes matching response bodies to a file in the order their
// responses arrived.
type Capturer struct {
	registry *events.Registry
	fetcher  Fetcher
	shooter  diag.Screenshotter
	logger   *zap.Logger

	fs             afero.Fs
	clock          clock.Clock
	flushInterval  time.Duration
	inactivity     time.Duration
	fetchDrain     time.Duration
	screenshotPath string
	mimePatterns   []string
}

// Option configures a Capturer.
type Option func(*Capturer)

func WithFs(fs afero.Fs) Option                    { return func(c *Capturer) { c.fs = fs } }
func WithClock(clk clock.Clock) Option             { return func(c *Capturer) { c.clock = clk } }
func WithFlushInterval(d time.Duration) Option     { return func(c *Capturer) { c.flushInterval = d } }
func WithInactivityTimeout(d time.Duration) Option { return func(c *Capturer) { c.inactivity = d } }
func WithScreenshotPath(path string) Option        { return func(c *Capturer) { c.screenshotPath = path } }

// WithFetchDrain bounds how long a finishing stream waits for body fetches
// that are still running. Zero abandons them at once.
func WithFetchDrain(d time.Duration) Option { return func(c *Capturer) { c.fetchDrain = d } }

// WithConfig applies every capture setting from cfg.
func WithConfig(cfg config.CaptureConfig) Option {
	return func(c *Capturer) {
		c.flushInterval = cfg.FlushInterval
		c.inactivity = cfg.InactivityTimeout
		c.fetchDrain = cfg.FetchDrain
		c.screenshotPath = cfg.ScreenshotPath
		c.mimePatterns = append([]string(nil), cfg.MimePatterns...)
	}
}

// New builds a Capturer over a session's event registry and body fetcher.
// shooter may be nil.
func New(registry *events.Registry, fetcher Fetcher, shooter diag.Screenshotter, logger *zap.Logger, opts ...Option) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Capturer{
		registry: registry,
		fetcher:  fetcher,
		shooter:  shooter,
		logger:   logger.Named("capture"),
		fs:       afero.NewOsFs(),
		clock:    clock.New(),
	}
	WithConfig(config.NewDefaultConfig().Capture())(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CaptureStreamTo starts a stream into path. A nil match falls back to the
// configured mime patterns and a zero inactivity to the configured timeout.
// The inactivity timer starts with the first matching response, so a slow
// page load does not end the stream before any media was requested. The
// returned Stream runs until it goes quiet for inactivity, Stop is called,
// ctx ends, or the output fails.
func (c *Capturer) CaptureStreamTo(ctx context.Context, path string, match Matcher, inactivity time.Duration) (*Stream, error) {
	if match == nil {
		match = MatchMime(c.mimePatterns...)
	}
	if inactivity <= 0 {
		inactivity = c.inactivity
	}
	flush := c.flushInterval
	if flush <= 0 {
		flush = config.NewDefaultConfig().Capture().FlushInterval
	}

	f, err := c.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		c.screenshot(ctx)
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	fctx, fcancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Stream{
		c:           c,
		path:        path,
		file:        f,
		match:       match,
		logger:      c.logger.With(zap.String("path", path)),
		byID:        make(map[network.RequestID]*entry),
		stop:        make(chan struct{}),
		armed:       make(chan struct{}),
		done:        make(chan struct{}),
		fetchCtx:    fctx,
		fetchCancel: fcancel,
		inactivity:  inactivity,
	}
	s.onResponse = events.NewListener(s.handleResponseReceived)
	s.onFinished = events.NewListener(s.handleLoadingFinished)
	s.onFailed = events.NewListener(s.handleLoadingFailed)

	// The ticker exists before the first event can arrive.
	ticker := c.clock.Ticker(flush)

	c.registry.Listen(session.EventResponseReceived, s.onResponse)
	c.registry.Listen(session.EventLoadingFinished, s.onFinished)
	c.registry.Listen(session.EventLoadingFailed, s.onFailed)

	s.logger.Info("Capture started.", zap.Duration("inactivity", inactivity), zap.Duration("flush_interval", flush))
	go s.run(ctx, ticker)
	return s, nil
}

func (c *Capturer) screenshot(ctx context.Context) {
	diag.SaveScreenshot(ctx, c.fs, c.shooter, c.screenshotPath, c.logger)
}
