package relay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"logrelay/internal/eventbus"
	kit "logrelay/internal/transport"
	logx "logrelay/pkg/logx"
)

var ErrInvalidSinkConfig = errors.New("invalid notification sink config")

const (
	DefaultMaxMessages = 10
	DefaultPeriod      = 10 * time.Minute
	DefaultSendTimeout = 10 * time.Second
)

// SinkConfig is fixed for the lifetime of a NotificationSink.
type SinkConfig struct {
	Name        string
	MaxMessages int
	Period      time.Duration
	MinSeverity Severity
	Target      kit.ChatTarget
	SendTimeout time.Duration
}

func (c SinkConfig) withDefaults() SinkConfig {
	if c.Name == "" {
		c.Name = "telegram"
	}
	if c.MaxMessages == 0 {
		c.MaxMessages = DefaultMaxMessages
	}
	if c.Period == 0 {
		c.Period = DefaultPeriod
	}
	if c.MinSeverity == 0 {
		c.MinSeverity = Error
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}

func (c SinkConfig) validate() error {
	if c.MaxMessages < 0 {
		return fmt.Errorf("%w: max_messages must be > 0", ErrInvalidSinkConfig)
	}
	if c.Period < 0 {
		return fmt.Errorf("%w: period must be > 0", ErrInvalidSinkConfig)
	}
	if c.Target.IsZero() {
		return fmt.Errorf("%w: %w", ErrInvalidSinkConfig, kit.ErrInvalidTarget)
	}
	return nil
}

type NotificationOption func(*NotificationSink)

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) NotificationOption {
	return func(s *NotificationSink) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFallback sets where send failures are reported. It must not be a
// logger that feeds this sink.
func WithFallback(log logx.Logger) NotificationOption {
	return func(s *NotificationSink) { s.fallback = log }
}

// WithBus publishes an Outcome for every decision.
func WithBus(bus eventbus.Bus) NotificationOption {
	return func(s *NotificationSink) { s.bus = bus }
}

// NotificationSink forwards events to a chat under a sliding-window budget.
//
// Handle is safe for concurrent use. The prune-check-append step runs under
// one mutex; the network send happens after the slot is spent and outside the
// lock, bounded by SendTimeout.
type NotificationSink struct {
	cfg      SinkConfig
	sender   kit.Sender
	now      func() time.Time
	fallback logx.Logger
	bus      eventbus.Bus

	mu  sync.Mutex
	win window
}

func NewNotificationSink(cfg SinkConfig, sender kit.Sender, opts ...NotificationOption) (*NotificationSink, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, fmt.Errorf("%w: sender is nil", ErrInvalidSinkConfig)
	}
	s := &NotificationSink{
		cfg:    cfg,
		sender: sender,
		now:    time.Now,
		win:    newWindow(cfg.MaxMessages, cfg.Period),
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.fallback.IsZero() {
		s.fallback = logx.NewStderr("WARN")
	}
	s.fallback = s.fallback.With(logx.String("sink", cfg.Name))
	return s, nil
}

func (s *NotificationSink) Name() string          { return s.cfg.Name }
func (s *NotificationSink) MinSeverity() Severity { return s.cfg.MinSeverity }
func (s *NotificationSink) Config() SinkConfig    { return s.cfg }

// Snapshot returns the current budget state without pruning it.
func (s *NotificationSink) Snapshot() WindowSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.win.snapshot()
}

// Handle applies the budget to ev and forwards it when a slot is free.
// It always returns nil: delivery is best-effort and failures go to the
// fallback logger.
func (s *NotificationSink) Handle(ctx context.Context, ev Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		if p := recover(); p != nil {
			s.fallback.Error("unexpected error in notification sink",
				logx.String("event_id", ev.ID),
				logx.String("panic", fmt.Sprint(p)),
				logx.Stack(string(debug.Stack())),
			)
			s.publish(Outcome{Kind: OutcomeFailed, Error: fmt.Sprint(p)}, ev)
		}
	}()

	now, d, inWindow := s.reserve()

	switch d {
	case decisionSuppress:
		s.publish(Outcome{Kind: OutcomeSuppressed, At: now, InWindow: inWindow}, ev)
	case decisionNotice:
		s.publish(Outcome{Kind: OutcomeSuppressed, At: now, InWindow: inWindow}, ev)
		s.sendNotice(ctx, now, inWindow)
	case decisionForward:
		s.forward(ctx, ev, now, inWindow)
	}
	return nil
}

// reserve takes the decision for one event under the lock.
func (s *NotificationSink) reserve() (now time.Time, d decision, inWindow int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now = s.now()
	d = s.win.decide(now)
	return now, d, len(s.win.sent)
}

func (s *NotificationSink) forward(ctx context.Context, ev Event, now time.Time, inWindow int) {
	if err := s.send(ctx, FormatEvent(ev)); err != nil {
		s.fallback.Warn("error sending message to channel",
			logx.String("event_id", ev.ID),
			logx.String("logger", ev.Logger),
			logx.Err(err),
		)
		s.publish(Outcome{Kind: OutcomeFailed, At: now, InWindow: inWindow, Error: err.Error()}, ev)
		return
	}
	s.publish(Outcome{Kind: OutcomeForwarded, At: now, InWindow: inWindow}, ev)
}

func (s *NotificationSink) sendNotice(ctx context.Context, now time.Time, inWindow int) {
	err := s.send(ctx, FormatNotice(s.cfg.MaxMessages, s.cfg.Period))
	if err != nil {
		s.fallback.Warn("error sending rate limit notice to channel", logx.Err(err))
		s.publish(Outcome{Kind: OutcomeFailed, At: now, InWindow: inWindow, Notice: true, Error: err.Error()}, Event{})
		return
	}
	s.publish(Outcome{Kind: OutcomeNotice, At: now, InWindow: inWindow, Notice: true}, Event{})
}

func (s *NotificationSink) send(ctx context.Context, text string) error {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	_, err := s.sender.SendText(sctx, s.cfg.Target, text, &kit.SendOptions{
		ParseMode:      kit.ParseModeHTML,
		DisablePreview: true,
	})
	return err
}

func (s *NotificationSink) publish(o Outcome, ev Event) {
	if s.bus == nil {
		return
	}
	o.Sink = s.cfg.Name
	if ev.ID != "" {
		o.EventID = ev.ID
		o.Logger = ev.Logger
		o.Severity = ev.Severity.String()
	}
	if o.At.IsZero() {
		o.At = time.Now()
	}
	s.bus.Publish(eventbus.Event{Type: o.Kind.EventType(), Time: o.At, Data: o})
}
