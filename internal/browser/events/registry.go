// internal/browser/events/registry.go
package events

import (
	"sync"

	"go.uber.org/zap"
)

// Listener is a registered callback handle. Identity is the pointer, so the
// same *Listener registered twice under one name is stored once.
type Listener struct {
	fn func(payload any)
}

// NewListener wraps fn in a handle suitable for Listen/Unlisten.
func NewListener(fn func(payload any)) *Listener {
	return &Listener{fn: fn}
}

// Registry maps protocol event names (e.g. "Network.responseReceived") to
// ordered listener lists and fans incoming push events out to them.
type Registry struct {
	logger *zap.Logger

	mu        sync.RWMutex
	listeners map[string][]*Listener
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:    logger.Named("events"),
		listeners: make(map[string][]*Listener),
	}
}

// Listen registers l under name. Registering an already-present listener is a no-op.
func (r *Registry) Listen(name string, l *Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.listeners[name] {
		if existing == l {
			return
		}
	}
	r.listeners[name] = append(r.listeners[name], l)
}

// Unlisten removes one occurrence of l under name, if any.
func (r *Registry) Unlisten(name string, l *Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.listeners[name]
	if !ok {
		return
	}
	for i, existing := range subs {
		if existing == l {
			// Copy rather than reslice in place: a dispatch may hold the old backing array.
			next := make([]*Listener, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(r.listeners, name)
			} else {
				r.listeners[name] = next
			}
			return
		}
	}
}

// Count reports how many listeners are registered under name.
func (r *Registry) Count(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[name])
}

// Dispatch invokes every listener registered under name, in registration
// order, on the calling goroutine. The listener list is snapshotted first;
// registrations made by a listener only affect later dispatches.
func (r *Registry) Dispatch(name string, payload any) {
	r.mu.RLock()
	subs := r.listeners[name]
	if len(subs) == 0 {
		r.mu.RUnlock()
		return
	}
	snapshot := make([]*Listener, len(subs))
	copy(snapshot, subs)
	r.mu.RUnlock()

	for _, l := range snapshot {
		r.invoke(name, l, payload)
	}
}

// invoke runs a single listener. A panicking listener must not take down the
// connection's read loop, so it is recovered and logged.
func (r *Registry) invoke(name string, l *Listener, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Event listener panicked.", zap.String("event", name), zap.Any("panic", rec))
		}
	}()
	l.fn(payload)
}
