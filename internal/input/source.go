package input

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/hpcloud/tail"

	"logrelay/internal/relay"
	logx "logrelay/pkg/logx"
)

// IdleFlush is how long a folded event may wait for more continuation lines
// before it is routed.
const IdleFlush = 300 * time.Millisecond

// Router receives parsed events. *relay.Router satisfies it.
type Router interface {
	RouteContext(ctx context.Context, ev relay.Event)
}

// MaxLineBytes caps a single input line. Longer lines are cut and marked
// with TruncatedMark.
const MaxLineBytes = 1 << 20

const TruncatedMark = "…(truncated)"

// ReadFrom parses r until EOF or ctx is done and routes every event.
// Over-long lines are truncated and a read error ends input like EOF does;
// both are reported to log. It returns nil on EOF and on cancellation.
func ReadFrom(ctx context.Context, r io.Reader, def Defaults, router Router, log logx.Logger) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		if err := readLines(ctx, r, lines, log); err != nil {
			log.Warn("input read failed", logx.Err(err))
		}
	}()

	pump(ctx, lines, def, router)
	return nil
}

// readLines splits r into lines without a per-line size failure.
func readLines(ctx context.Context, r io.Reader, out chan<- string, log logx.Logger) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		buf       []byte
		truncated bool
		dropped   int
	)
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if room := MaxLineBytes - len(buf); len(chunk) > room {
			buf = append(buf, chunk[:room]...)
			dropped += len(chunk) - room
			truncated = true
		} else {
			buf = append(buf, chunk...)
		}
		if isPrefix {
			continue
		}

		line := string(buf)
		if truncated {
			log.Warn("input line truncated", logx.Int("kept_bytes", len(buf)), logx.Int("dropped_bytes", dropped))
			line += TruncatedMark
		}
		buf, truncated, dropped = buf[:0], false, 0

		select {
		case out <- line:
		case <-ctx.Done():
			return nil
		}
	}
}

// Follow tails path from its current end, surviving rotation, until ctx is
// done.
func Follow(ctx context.Context, path string, def Defaults, router Router, log logx.Logger) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()
	log.Info("following file", logx.String("path", path))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line == nil {
					continue
				}
				if line.Err != nil {
					log.Warn("tail read failed", logx.String("path", path), logx.Err(line.Err))
					continue
				}
				select {
				case lines <- line.Text:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	pump(ctx, lines, def, router)
	_ = t.Stop()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// pump folds lines and routes events, flushing a pending event after
// IdleFlush without input.
func pump(ctx context.Context, lines <-chan string, def Defaults, router Router) {
	// The final flush happens after cancellation; sinks bound their own sends.
	routeCtx := context.WithoutCancel(ctx)
	folder := NewFolder(def, func(ev relay.Event) { router.RouteContext(routeCtx, ev) })

	idle := time.NewTimer(IdleFlush)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			folder.Flush()
			return
		case line, ok := <-lines:
			if !ok {
				folder.Flush()
				return
			}
			folder.Push(line)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(IdleFlush)
		case <-idle.C:
			folder.Flush()
			idle.Reset(IdleFlush)
		}
	}
}
