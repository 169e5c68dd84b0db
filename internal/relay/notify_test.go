package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logrelay/internal/eventbus"
	kit "logrelay/internal/transport"
)

func newTestSink(t *testing.T, max int, period time.Duration, sender *fakeSender, clock *fakeClock, opts ...NotificationOption) *NotificationSink {
	t.Helper()
	fb, _ := bufferLogger()
	all := append([]NotificationOption{WithClock(clock.Now), WithFallback(fb)}, opts...)
	s, err := NewNotificationSink(SinkConfig{MaxMessages: max, Period: period, Target: testTarget}, sender, all...)
	require.NoError(t, err)
	return s
}

func isNotice(text string) bool { return strings.Contains(text, "RATE LIMIT REACHED") }

func TestNewNotificationSinkDefaults(t *testing.T) {
	s, err := NewNotificationSink(SinkConfig{Target: testTarget}, &fakeSender{})
	require.NoError(t, err)
	cfg := s.Config()
	assert.Equal(t, DefaultMaxMessages, cfg.MaxMessages)
	assert.Equal(t, DefaultPeriod, cfg.Period)
	assert.Equal(t, Error, cfg.MinSeverity)
	assert.Equal(t, DefaultSendTimeout, cfg.SendTimeout)
	assert.Equal(t, "telegram", s.Name())
}

func TestNewNotificationSinkRejectsBadConfig(t *testing.T) {
	_, err := NewNotificationSink(SinkConfig{MaxMessages: -1, Target: testTarget}, &fakeSender{})
	assert.ErrorIs(t, err, ErrInvalidSinkConfig)

	_, err = NewNotificationSink(SinkConfig{Period: -time.Second, Target: testTarget}, &fakeSender{})
	assert.ErrorIs(t, err, ErrInvalidSinkConfig)

	_, err = NewNotificationSink(SinkConfig{}, &fakeSender{})
	assert.ErrorIs(t, err, kit.ErrInvalidTarget)

	_, err = NewNotificationSink(SinkConfig{Target: testTarget}, nil)
	assert.ErrorIs(t, err, ErrInvalidSinkConfig)
}

func TestWithinBudgetEverythingIsForwarded(t *testing.T) {
	sender := &fakeSender{}
	clock := newFakeClock()
	s := newTestSink(t, 5, time.Minute, sender, clock)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Handle(context.Background(), errorEvent("boom")))
		clock.Advance(time.Second)
	}

	sent := sender.Sent()
	require.Len(t, sent, 5)
	for _, text := range sent {
		assert.False(t, isNotice(text))
	}
}

func TestExhaustionSendsExactlyOneNotice(t *testing.T) {
	sender := &fakeSender{}
	clock := newFakeClock()
	s := newTestSink(t, 3, time.Minute, sender, clock)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Handle(context.Background(), errorEvent("event")))
		clock.Advance(time.Second)
	}

	sent := sender.Sent()
	require.Len(t, sent, 4)
	notices := 0
	for _, text := range sent {
		if isNotice(text) {
			notices++
		}
	}
	assert.Equal(t, 1, notices)
	assert.True(t, isNotice(sent[3]))
	assert.True(t, s.Snapshot().NoticeSent)
}

func TestNewEpisodeAfterWindowClears(t *testing.T) {
	sender := &fakeSender{}
	clock := newFakeClock()
	s := newTestSink(t, 2, time.Minute, sender, clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = s.Handle(ctx, errorEvent("first episode"))
	}
	require.Len(t, sender.Sent(), 3)

	clock.Advance(2 * time.Minute)
	_ = s.Handle(ctx, errorEvent("accepted again"))
	assert.False(t, s.Snapshot().NoticeSent)

	_ = s.Handle(ctx, errorEvent("fills budget"))
	_ = s.Handle(ctx, errorEvent("second episode"))
	_ = s.Handle(ctx, errorEvent("still suppressed"))

	sent := sender.Sent()
	require.Len(t, sent, 6)
	assert.Contains(t, sent[3], "accepted again")
	assert.True(t, isNotice(sent[5]))
}

func TestSpecScenarioBoundaryRetention(t *testing.T) {
	sender := &fakeSender{}
	clock := newFakeClock()
	base := clock.Now()
	s := newTestSink(t, 2, 60*time.Second, sender, clock)
	ctx := context.Background()

	emit := func(at time.Duration, msg string) {
		clock.Set(at, base)
		require.NoError(t, s.Handle(ctx, errorEvent(msg)))
	}

	emit(0, "E1")
	emit(10*time.Second, "E2")
	emit(20*time.Second, "E3")

	sent := sender.Sent()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[0], "E1")
	assert.Contains(t, sent[1], "E2")
	assert.True(t, isNotice(sent[2]))

	emit(70*time.Second, "E4")
	sent = sender.Sent()
	require.Len(t, sent, 4)
	assert.Contains(t, sent[3], "E4")

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, base.Add(10*time.Second), snap.Oldest)
}

func TestSendFailureStillSpendsSlot(t *testing.T) {
	sender := &fakeSender{err: errors.New("channel_not_found")}
	clock := newFakeClock()
	fb, fbBuf := bufferLogger()
	s, err := NewNotificationSink(SinkConfig{MaxMessages: 2, Period: time.Minute, Target: testTarget}, sender,
		WithClock(clock.Now), WithFallback(fb))
	require.NoError(t, err)

	assert.NoError(t, s.Handle(context.Background(), errorEvent("one")))
	assert.NoError(t, s.Handle(context.Background(), errorEvent("two")))
	assert.Equal(t, 2, s.Snapshot().Count)
	assert.Contains(t, fbBuf.String(), "channel_not_found")

	// Budget is spent even though nothing was delivered.
	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()
	assert.NoError(t, s.Handle(context.Background(), errorEvent("three")))
	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.True(t, isNotice(sent[0]))
}

func TestNoticeFlagSetEvenWhenNoticeFails(t *testing.T) {
	sender := &fakeSender{}
	clock := newFakeClock()
	s := newTestSink(t, 1, time.Minute, sender, clock)

	_ = s.Handle(context.Background(), errorEvent("one"))
	sender.mu.Lock()
	sender.err = errors.New("network down")
	sender.mu.Unlock()
	_ = s.Handle(context.Background(), errorEvent("two"))
	assert.True(t, s.Snapshot().NoticeSent)

	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()
	_ = s.Handle(context.Background(), errorEvent("three"))
	assert.Len(t, sender.Sent(), 1)
}

func TestSlowSendIsBounded(t *testing.T) {
	sender := &fakeSender{delay: time.Second}
	fb, fbBuf := bufferLogger()
	s, err := NewNotificationSink(SinkConfig{MaxMessages: 5, Period: time.Minute, Target: testTarget, SendTimeout: 30 * time.Millisecond},
		sender, WithFallback(fb))
	require.NoError(t, err)

	start := time.Now()
	assert.NoError(t, s.Handle(context.Background(), errorEvent("slow")))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, s.Snapshot().Count)
	assert.Contains(t, fbBuf.String(), "deadline exceeded")
}

type panicSender struct{}

func (panicSender) SendText(context.Context, kit.ChatTarget, string, *kit.SendOptions) (kit.MessageRef, error) {
	panic("sender exploded")
}

func TestPanicInsideSinkIsContained(t *testing.T) {
	fb, fbBuf := bufferLogger()
	s, err := NewNotificationSink(SinkConfig{Target: testTarget}, panicSender{}, WithFallback(fb))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.NoError(t, s.Handle(context.Background(), errorEvent("x")))
	})
	assert.Contains(t, fbBuf.String(), "sender exploded")
	assert.Equal(t, 1, s.Snapshot().Count)
}

func TestClockPanicDoesNotWedgeLaterEvents(t *testing.T) {
	fb, fbBuf := bufferLogger()
	sender := &fakeSender{}
	clock := newFakeClock()
	var calls atomic.Int32
	now := func() time.Time {
		if calls.Add(1) == 1 {
			panic("clock exploded")
		}
		return clock.Now()
	}
	s, err := NewNotificationSink(SinkConfig{Target: testTarget}, sender, WithClock(now), WithFallback(fb))
	require.NoError(t, err)

	assert.NoError(t, s.Handle(context.Background(), errorEvent("first")))
	assert.Contains(t, fbBuf.String(), "clock exploded")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Handle(context.Background(), errorEvent("second"))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle blocked after an earlier panic")
	}
	require.Len(t, sender.Sent(), 1)
	assert.Contains(t, sender.Sent()[0], "second")
}

func TestConcurrentHandleAdmitsExactlyRemaining(t *testing.T) {
	const n = 50
	sender := &fakeSender{}
	clock := newFakeClock()
	s := newTestSink(t, n+10, time.Hour, sender, clock)

	for i := 0; i < 10; i++ {
		_ = s.Handle(context.Background(), errorEvent("pre"))
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_ = s.Handle(context.Background(), errorEvent("concurrent"))
		}()
	}
	close(start)
	wg.Wait()

	sent := sender.Sent()
	assert.Len(t, sent, n+10)
	for _, text := range sent {
		assert.False(t, isNotice(text))
	}
	assert.Equal(t, n+10, s.Snapshot().Count)
}

func TestConcurrentOverflowProducesOneNotice(t *testing.T) {
	sender := &fakeSender{}
	clock := newFakeClock()
	s := newTestSink(t, 5, time.Hour, sender, clock)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Handle(context.Background(), errorEvent("storm"))
		}()
	}
	wg.Wait()

	notices := 0
	for _, text := range sender.Sent() {
		if isNotice(text) {
			notices++
		}
	}
	assert.Equal(t, 1, notices)
	assert.Len(t, sender.Sent(), 6)
}

func TestSendOptionsDisablePreview(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSink(t, 1, time.Minute, sender, newFakeClock())
	_ = s.Handle(context.Background(), errorEvent("x"))

	require.Len(t, sender.opts, 1)
	assert.True(t, sender.opts[0].DisablePreview)
	assert.Equal(t, kit.ParseModeHTML, sender.opts[0].ParseMode)
}

func TestOutcomesArePublished(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	sender := &fakeSender{}
	s := newTestSink(t, 1, time.Minute, sender, newFakeClock(), WithBus(bus))
	ev := errorEvent("first")
	_ = s.Handle(context.Background(), ev)
	_ = s.Handle(context.Background(), errorEvent("second"))
	_ = s.Handle(context.Background(), errorEvent("third"))

	var kinds []string
	for len(ch) > 0 {
		e := <-ch
		kinds = append(kinds, e.Type)
		if e.Type == OutcomeForwarded.EventType() {
			o := e.Data.(Outcome)
			assert.Equal(t, ev.ID, o.EventID)
			assert.Equal(t, "ERROR", o.Severity)
			assert.Equal(t, 1, o.InWindow)
		}
	}
	assert.Equal(t, []string{"relay.forwarded", "relay.suppressed", "relay.notice", "relay.suppressed"}, kinds)
}
