// internal/browser/capture/stream.go
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/chromedp/cdproto/network"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabctl/internal/browser/events"
	"github.com/xkilldash9x/tabctl/internal/browser/session"
)

type entryState int

const (
	statePending entryState = iota
	stateReady
	stateDropped
)

type entry struct {
	id       network.RequestID
	mime     string
	url      string
	state    entryState
	fetching bool
	body     []byte
}

// Stats summarises a stream's output so far. Abandoned counts entries left
// unwritten at shutdown because an earlier body never became ready.
type Stats struct {
	Written   int
	Bytes     int64
	Dropped   int
	Abandoned int
}

// Stream is one running capture. All file writes happen on its pipeline
// goroutine.
type Stream struct {
	c      *Capturer
	path   string
	file   afero.File
	match  Matcher
	logger *zap.Logger

	onResponse, onFinished, onFailed *events.Listener

	mu      sync.Mutex
	queue   []*entry
	byID    map[network.RequestID]*entry
	closing bool
	stats   Stats
	idle    *clock.Timer

	fetches     sync.WaitGroup
	fetchCtx    context.Context
	fetchCancel context.CancelFunc

	inactivity time.Duration
	stopOnce   sync.Once
	stop       chan struct{}
	armOnce    sync.Once
	armed      chan struct{}
	done       chan struct{}
	err        error
}

// Stop ends the stream after writing every body that is already in order.
// It does not wait; use Wait for that.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Done is closed once the stream has finished and the file is closed.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err is the stream's outcome. It is only meaningful after Done.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the stream finishes or ctx ends.
func (s *Stream) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Path is the output file.
func (s *Stream) Path() string { return s.path }

func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// -- Event handlers (dispatch path: lock and append only) --

func (s *Stream) handleResponseReceived(payload any) {
	ev, ok := payload.(*network.EventResponseReceived)
	if !ok || ev.Response == nil || !s.match(ev.Response.MimeType) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	if _, seen := s.byID[ev.RequestID]; seen {
		return
	}
	e := &entry{id: ev.RequestID, mime: ev.Response.MimeType, url: ev.Response.URL}
	s.queue = append(s.queue, e)
	s.byID[ev.RequestID] = e
	s.logger.Debug("Queued response.", zap.String("request_id", string(e.id)), zap.String("mime", e.mime))
	s.armOnce.Do(func() {
		s.idle = s.c.clock.Timer(s.inactivity)
		close(s.armed)
	})
}

func (s *Stream) handleLoadingFinished(payload any) {
	ev, ok := payload.(*network.EventLoadingFinished)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[ev.RequestID]
	if !ok || s.closing || e.state != statePending || e.fetching {
		return
	}
	e.fetching = true
	s.fetches.Add(1)
	go s.fetch(e)
}

func (s *Stream) handleLoadingFailed(payload any) {
	ev, ok := payload.(*network.EventLoadingFailed)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[ev.RequestID]; ok && e.state == statePending {
		e.state = stateDropped
		s.logger.Warn("Dropping failed response.", zap.String("request_id", string(e.id)), zap.String("error", ev.ErrorText))
	}
}

func (s *Stream) fetch(e *entry) {
	defer s.fetches.Done()
	body, err := s.c.fetcher.ResponseBody(s.fetchCtx, e.id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.state != statePending {
		return
	}
	if err != nil && s.fetchCtx.Err() != nil {
		// Cut off by shutdown. The entry stays pending so nothing behind it
		// is written out of order.
		e.fetching = false
		s.logger.Debug("Body fetch abandoned at shutdown.", zap.String("request_id", string(e.id)))
		return
	}
	if err != nil {
		e.state = stateDropped
		s.logger.Warn("Dropping response, body fetch failed.",
			zap.String("request_id", string(e.id)), zap.String("url", e.url), zap.Error(err))
		return
	}
	e.body = body
	e.state = stateReady
}

// -- Pipeline --

func (s *Stream) run(ctx context.Context, ticker *clock.Ticker) {
	defer close(s.done)
	defer ticker.Stop()
	defer s.stopIdle()

	// idleC stays nil until the first matched response arms the timer.
	armed := s.armed
	var idleC <-chan time.Time
	for {
		select {
		case <-armed:
			armed = nil
			idleC = s.idleTimer().C
		case <-ticker.C:
			n, err := s.flush()
			if err != nil {
				s.fail(ctx, err)
				return
			}
			if n > 0 {
				resetTimer(s.idleTimer(), s.inactivity)
			}
		case <-idleC:
			s.logger.Info("Capture idle, finalizing.", zap.Duration("inactivity", s.inactivity))
			s.finish(ctx, nil)
			return
		case <-s.stop:
			s.logger.Info("Capture stopped.")
			s.finish(ctx, nil)
			return
		case <-ctx.Done():
			s.logger.Info("Capture canceled.", zap.Error(ctx.Err()))
			s.finish(ctx, ctx.Err())
			return
		}
	}
}

// idleTimer is non-nil once anything has been queued.
func (s *Stream) idleTimer() *clock.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle
}

func (s *Stream) stopIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle != nil {
		s.idle.Stop()
	}
}

func resetTimer(t *clock.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// flush writes every ready head in order and discards dropped ones. It
// stops at the first pending head.
func (s *Stream) flush() (int, error) {
	s.mu.Lock()
	var bodies [][]byte
	for len(s.queue) > 0 {
		head := s.queue[0]
		if head.state == statePending {
			break
		}
		s.queue[0] = nil
		s.queue = s.queue[1:]
		delete(s.byID, head.id)
		if head.state == stateDropped {
			s.stats.Dropped++
			continue
		}
		bodies = append(bodies, head.body)
	}
	s.mu.Unlock()

	written := 0
	for _, b := range bodies {
		n, err := s.file.Write(b)
		s.mu.Lock()
		s.stats.Bytes += int64(n)
		if err == nil {
			s.stats.Written++
		}
		s.mu.Unlock()
		if err != nil {
			return written, &IOError{Op: "write", Path: s.path, Err: err}
		}
		written++
	}
	return written, nil
}

// detach unsubscribes, optionally gives in-flight fetches up to the drain
// budget to complete, then cancels the rest.
func (s *Stream) detach(drain bool) {
	r := s.c.registry
	r.Unlisten(session.EventResponseReceived, s.onResponse)
	r.Unlisten(session.EventLoadingFinished, s.onFinished)
	r.Unlisten(session.EventLoadingFailed, s.onFailed)

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	if drain {
		s.drainFetches()
	}
	s.fetchCancel()
	s.fetches.Wait()
}

func (s *Stream) drainFetches() {
	if s.c.fetchDrain <= 0 {
		return
	}
	settled := make(chan struct{})
	go func() {
		s.fetches.Wait()
		close(settled)
	}()
	t := s.c.clock.Timer(s.c.fetchDrain)
	defer t.Stop()
	select {
	case <-settled:
	case <-t.C:
		s.logger.Warn("Body fetches still running at shutdown, abandoning them.", zap.Duration("drain", s.c.fetchDrain))
	}
}

// finish is the clean shutdown: final in-order flush, close, resolve with
// cause (nil or the context error).
func (s *Stream) finish(ctx context.Context, cause error) {
	s.detach(true)
	if _, err := s.flush(); err != nil {
		s.fail(ctx, err)
		return
	}
	s.mu.Lock()
	s.stats.Abandoned = len(s.queue)
	s.mu.Unlock()
	if err := s.file.Close(); err != nil {
		s.c.screenshot(ctx)
		s.err = &IOError{Op: "close", Path: s.path, Err: err}
		return
	}
	st := s.Stats()
	s.logger.Info("Capture finished.",
		zap.Int("written", st.Written), zap.Int64("bytes", st.Bytes),
		zap.Int("dropped", st.Dropped), zap.Int("abandoned", st.Abandoned))
	s.err = cause
}

// fail ends the stream on an output error, keeping whatever was written.
func (s *Stream) fail(ctx context.Context, err error) {
	s.logger.Error("Capture output failed.", zap.Error(err))
	s.c.screenshot(ctx)
	s.detach(false)
	if cerr := s.file.Close(); cerr != nil {
		s.logger.Warn("Failed to close capture output after error.", zap.Error(cerr))
	}
	s.err = err
}
