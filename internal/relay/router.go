package relay

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	logx "logrelay/pkg/logx"
)

// Sink receives routed events and decides on its own whether and how to
// forward them.
type Sink interface {
	Name() string
	MinSeverity() Severity
	Handle(ctx context.Context, ev Event) error
}

// Router delivers events to registered sinks. It is built once at startup
// and passed to call sites; there is no global registry.
//
// Router is safe for concurrent use.
type Router struct {
	mu    sync.Mutex // serializes Register
	sinks atomic.Pointer[[]Sink]

	fallback logx.Logger

	routed    atomic.Uint64
	sinkFails atomic.Uint64
}

// NewRouter creates a router. fallback receives sink failures and must not
// itself be fed by this router.
func NewRouter(fallback logx.Logger, sinks ...Sink) *Router {
	if fallback.IsZero() {
		fallback = logx.NewStderr("WARN")
	}
	r := &Router{fallback: fallback}
	empty := []Sink{}
	r.sinks.Store(&empty)
	r.Register(sinks...)
	return r
}

// Register appends sinks. Events already in flight keep the previous list.
func (r *Router) Register(sinks ...Sink) {
	if len(sinks) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.sinks.Load()
	next := make([]Sink, 0, len(cur)+len(sinks))
	next = append(next, cur...)
	for _, s := range sinks {
		if s != nil {
			next = append(next, s)
		}
	}
	r.sinks.Store(&next)
}

// Sinks returns a copy of the registered sinks in registration order.
func (r *Router) Sinks() []Sink {
	return append([]Sink(nil), *r.sinks.Load()...)
}

// Route delivers ev to every sink whose minimum severity it meets.
func (r *Router) Route(ev Event) { r.RouteContext(context.Background(), ev) }

// RouteContext is Route with a caller context passed down to sinks.
// It never returns sink failures; those go to the fallback logger.
func (r *Router) RouteContext(ctx context.Context, ev Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ev.Severity == 0 {
		ev.Severity = Info
	}
	r.routed.Add(1)
	for _, s := range *r.sinks.Load() {
		if s.MinSeverity() > ev.Severity {
			continue
		}
		r.deliver(ctx, s, ev)
	}
}

func (r *Router) deliver(ctx context.Context, s Sink, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.sinkFails.Add(1)
			r.fallback.Error("sink panicked",
				logx.String("sink", s.Name()),
				logx.String("event_id", ev.ID),
				logx.String("panic", fmt.Sprint(p)),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	if err := s.Handle(ctx, ev); err != nil {
		r.sinkFails.Add(1)
		r.fallback.Warn("sink failed",
			logx.String("sink", s.Name()),
			logx.String("event_id", ev.ID),
			logx.Err(err),
		)
	}
}

// Stats returns how many events were routed and how many sink calls failed.
func (r *Router) Stats() (routed, sinkFailures uint64) {
	return r.routed.Load(), r.sinkFails.Load()
}
