package relay

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is a named handle that emits events through a Router.
// The zero value drops everything.
type Logger struct {
	r    *Router
	name string
}

// Logger returns a named logger bound to r. Names are dot-separated and
// hierarchical ("api", "api.demo").
func (r *Router) Logger(name string) Logger {
	return Logger{r: r, name: strings.TrimSpace(name)}
}

func (l Logger) Name() string { return l.name }

// Named returns a child logger ("parent.child").
func (l Logger) Named(child string) Logger {
	child = strings.Trim(strings.TrimSpace(child), ".")
	switch {
	case child == "":
		return l
	case l.name == "":
		return Logger{r: l.r, name: child}
	default:
		return Logger{r: l.r, name: l.name + "." + child}
	}
}

// Option decorates an event before it is routed.
type Option func(*Event)

// WithFailure attaches err and the caller's stack as failure context.
func WithFailure(err error) Option {
	return func(e *Event) {
		if err == nil {
			return
		}
		e.Failure = joinFailure(fmt.Sprintf("%T: %v", err, err), callerStack(4, 32))
	}
}

// WithTrace attaches pre-captured trace text as failure context.
func WithTrace(trace string) Option {
	return func(e *Event) {
		if strings.TrimSpace(trace) != "" {
			e.Failure = trace
		}
	}
}

// At overrides the event timestamp.
func At(t time.Time) Option {
	return func(e *Event) {
		if !t.IsZero() {
			e.Time = t
		}
	}
}

func (l Logger) Debug(msg string, opts ...Option)    { l.Log(Debug, msg, opts...) }
func (l Logger) Info(msg string, opts ...Option)     { l.Log(Info, msg, opts...) }
func (l Logger) Warn(msg string, opts ...Option)     { l.Log(Warning, msg, opts...) }
func (l Logger) Error(msg string, opts ...Option)    { l.Log(Error, msg, opts...) }
func (l Logger) Critical(msg string, opts ...Option) { l.Log(Critical, msg, opts...) }

// Log builds an event and routes it synchronously.
func (l Logger) Log(sev Severity, msg string, opts ...Option) {
	if l.r == nil {
		return
	}
	ev := Event{
		ID:       uuid.NewString(),
		Severity: sev,
		Logger:   l.name,
		Message:  msg,
		Time:     time.Now(),
	}
	for _, o := range opts {
		if o != nil {
			o(&ev)
		}
	}
	l.r.Route(ev)
}

// Recover logs a recovered panic at Critical. It must be deferred directly:
//
//	defer log.Recover("worker crashed")
//
// The panic is swallowed.
func (l Logger) Recover(msg string) {
	p := recover()
	if p == nil {
		return
	}
	l.Log(Critical, msg, WithTrace(joinFailure(fmt.Sprintf("panic: %v", p), string(debug.Stack()))))
}

func joinFailure(head, stack string) string {
	if stack == "" {
		return head
	}
	return head + "\n\n" + stack
}

// callerStack renders up to maxFrames frames as "func\n  file:line".
func callerStack(skip, maxFrames int) string {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	i := 0
	for {
		fr, more := frames.Next()
		if fr.File != "" {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(fr.Function)
			b.WriteString("\n  ")
			b.WriteString(fr.File)
			b.WriteString(":")
			b.WriteString(strconv.Itoa(fr.Line))
			i++
		}
		if !more || i >= maxFrames {
			break
		}
	}
	return b.String()
}
