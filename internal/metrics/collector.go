// Package metrics counts relay decisions from the event bus and exposes them
// as Prometheus metrics.
package metrics

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"logrelay/internal/eventbus"
	"logrelay/internal/relay"
	logx "logrelay/pkg/logx"
)

// Snapshot is a point-in-time copy of the decision counters.
type Snapshot struct {
	Forwarded  uint64 `json:"forwarded"`
	Suppressed uint64 `json:"suppressed"`
	Notices    uint64 `json:"notices"`
	Failed     uint64 `json:"failed"`
}

// Collector turns bus outcomes into counters. It owns a private registry so
// tests and multiple instances never collide on the global one.
type Collector struct {
	reg    *prometheus.Registry
	events *prometheus.CounterVec
	log    logx.Logger

	profiling atomic.Bool

	forwarded  atomic.Uint64
	suppressed atomic.Uint64
	notices    atomic.Uint64
	failed     atomic.Uint64
}

func NewCollector(log logx.Logger) *Collector {
	if log.IsZero() {
		log = logx.Nop()
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		log: log,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "logrelay_events_total",
			Help: "Notification decisions by outcome.",
		}, []string{"outcome", "sink"}),
	}
}

// Registry exposes the collector's registry for extra metrics and scraping.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// CounterFunc registers a counter read from fn on every scrape.
func (c *Collector) CounterFunc(name, help string, fn func() float64) {
	promauto.With(c.reg).NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, fn)
}

// GaugeFunc registers a gauge read from fn on every scrape.
func (c *Collector) GaugeFunc(name, help string, fn func() float64) {
	promauto.With(c.reg).NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
}

// Observe records one outcome.
func (c *Collector) Observe(o relay.Outcome) {
	switch o.Kind {
	case relay.OutcomeForwarded:
		c.forwarded.Add(1)
	case relay.OutcomeSuppressed:
		c.suppressed.Add(1)
	case relay.OutcomeNotice:
		c.notices.Add(1)
	case relay.OutcomeFailed:
		c.failed.Add(1)
	default:
		return
	}
	c.events.WithLabelValues(string(o.Kind), o.Sink).Inc()
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Forwarded:  c.forwarded.Load(),
		Suppressed: c.suppressed.Load(),
		Notices:    c.notices.Load(),
		Failed:     c.failed.Load(),
	}
}

// Run consumes relay outcomes from ch until ctx is done or ch is closed.
// Subscribe before the relay starts publishing so no outcome is missed.
func (c *Collector) Run(ctx context.Context, ch <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(ev.Type, "relay.") {
				continue
			}
			o, ok := ev.Data.(relay.Outcome)
			if !ok {
				c.log.Debug("unexpected bus payload", logx.String("type", ev.Type))
				continue
			}
			c.Observe(o)
		}
	}
}
