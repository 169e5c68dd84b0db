package relay

import (
	"bytes"
	"context"
	"sync"
	"time"

	kit "logrelay/internal/transport"
	logx "logrelay/pkg/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(offset time.Duration, base time.Time) {
	c.mu.Lock()
	c.t = base.Add(offset)
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	opts  []kit.SendOptions
	err   error
	delay time.Duration
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return kit.MessageRef{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.texts = append(f.texts, text)
	if opt != nil {
		f.opts = append(f.opts, *opt)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}

func (f *fakeSender) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// syncBuffer is a goroutine-safe bytes.Buffer for fallback output.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func bufferLogger() (logx.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return logx.NewWriter(buf, "DEBUG"), buf
}

var testTarget = kit.ChatTarget{ChatID: -1001}

func errorEvent(msg string) Event {
	return NewEvent(Error, "test", msg)
}
