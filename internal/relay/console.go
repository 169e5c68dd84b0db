package relay

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	logx "logrelay/pkg/logx"
)

// ConsoleSink prints events for local visibility.
type ConsoleSink struct {
	mu  sync.Mutex
	w   io.Writer
	zl  zerolog.Logger
	min Severity
}

// NewConsoleSink writes to w in logx's console format. Pass Debug as min to
// see every event.
func NewConsoleSink(w io.Writer, min Severity) *ConsoleSink {
	if w == nil {
		w = logx.Stdout()
	}
	cw, ok := logx.ConsoleWriter(w).(zerolog.ConsoleWriter)
	if !ok {
		cw = zerolog.ConsoleWriter{Out: w}
	}
	cw.FormatLevel = func(i any) string {
		s, _ := i.(string)
		return fmt.Sprintf("%-8s", strings.ToUpper(s))
	}
	if min == 0 {
		min = Debug
	}
	return &ConsoleSink{w: w, zl: zerolog.New(cw), min: min}
}

func (c *ConsoleSink) Name() string          { return "console" }
func (c *ConsoleSink) MinSeverity() Severity { return c.min }

func (c *ConsoleSink) Handle(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.zl.Log().
		Str(zerolog.LevelFieldName, ev.Severity.String()).
		Time(zerolog.TimestampFieldName, ev.Time)
	if ev.Logger != "" {
		e.Str("logger", ev.Logger)
	}
	e.Msg(ev.Message)

	if !ev.HasFailure() {
		return nil
	}
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(ev.Failure, "\n"), "\n") {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	_, err := io.WriteString(c.w, b.String())
	return err
}
