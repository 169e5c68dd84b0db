package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"logrelay/internal/config"
	"logrelay/internal/eventbus"
	"logrelay/internal/input"
	"logrelay/internal/metrics"
	"logrelay/internal/relay"
	"logrelay/internal/runtime/supervisor"
	"logrelay/internal/storage"
	kit "logrelay/internal/transport"
	telegram "logrelay/internal/transport/telegram/adapter"
	logx "logrelay/pkg/logx"
)

// Options are process-level inputs that do not live in the config file.
type Options struct {
	ConfigPath string
	// Stdin and Follow add to the inputs section of the config.
	Stdin  bool
	Follow []string

	// In replaces os.Stdin.
	In io.Reader
	// Console replaces stdout for the console sink.
	Console io.Writer
	// Sender replaces the Telegram adapter.
	Sender kit.Sender
}

func (o Options) consoleWriter() io.Writer {
	if o.Console != nil {
		return o.Console
	}
	return logx.Stdout()
}

type App struct {
	opts Options

	cfgm *config.Manager
	cfg  *config.Config
	sup  *supervisor.Supervisor

	root logx.Logger
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store     storage.Store
	collector *metrics.Collector
	adapter   *telegram.Adapter
	router    *relay.Router
	notify    *relay.NotificationSink
	cron      *cron.Cron

	stdinDone chan struct{}
}

// New loads configuration and builds every component. Nothing runs until
// Start.
func New(opts Options) (*App, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfgm := config.NewManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(cfg.Logging.LogxConfig())
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	a := &App{
		opts:      opts,
		cfgm:      cfgm,
		cfg:       cfg,
		root:      root,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		collector: metrics.NewCollector(root.With(logx.String("comp", "metrics"))),
	}
	if err := a.buildRelay(); err != nil {
		a.closeResources()
		return nil, err
	}
	a.registerMetrics()
	return a, nil
}

func (a *App) buildRelay() error {
	sender := a.opts.Sender
	if sender == nil {
		acfg, err := mapAdapterConfig(a.cfg)
		if err != nil {
			return err
		}
		ad, err := telegram.New(acfg, a.root.With(logx.String("comp", "telegram")))
		if err != nil {
			return err
		}
		a.adapter = ad
		sender = ad
	}

	scfg, err := mapSinkConfig(a.cfg)
	if err != nil {
		return err
	}
	// Sink failures go to the operator log, which never feeds the router.
	fallback := a.root.With(logx.String("comp", "relay"))
	notify, err := relay.NewNotificationSink(scfg, sender,
		relay.WithFallback(fallback),
		relay.WithBus(a.bus),
	)
	if err != nil {
		return err
	}
	a.notify = notify

	a.router = relay.NewRouter(fallback)
	if a.cfg.Console.IsEnabled() {
		a.router.Register(relay.NewConsoleSink(a.opts.consoleWriter(), relay.ParseSeverity(a.cfg.Console.MinLevel, relay.Debug)))
	}
	a.router.Register(notify)

	a.log.Info("relay configured",
		logx.String("target", scfg.Target.String()),
		logx.Int("max_messages", scfg.MaxMessages),
		logx.Duration("period", scfg.Period),
		logx.String("min_level", scfg.MinSeverity.String()),
	)
	return nil
}

func (a *App) registerMetrics() {
	c := a.collector
	c.CounterFunc("logrelay_routed_total", "Events passed to the router.", func() float64 {
		routed, _ := a.router.Stats()
		return float64(routed)
	})
	c.CounterFunc("logrelay_sink_failures_total", "Sink errors and panics caught by the router.", func() float64 {
		_, fails := a.router.Stats()
		return float64(fails)
	})
	c.CounterFunc("logrelay_bus_dropped_total", "Outcomes dropped because a bus subscriber was full.", func() float64 {
		return float64(a.bus.Dropped())
	})
	c.GaugeFunc("logrelay_window_messages", "Messages spent in the current window.", func() float64 {
		return float64(a.notify.Snapshot().Count)
	})
	c.GaugeFunc("logrelay_window_capacity", "Messages allowed per window.", func() float64 {
		return float64(a.notify.Snapshot().Capacity)
	})
}

// Router is the entry point for events.
func (a *App) Router() *relay.Router { return a.router }

// Logger returns the operator log.
func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Config() *config.Config { return a.cfg }

// Done is closed when the supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// StdinDone is closed when the stdin input reaches EOF. It is nil (never
// ready) when stdin is not an input.
func (a *App) StdinDone() <-chan struct{} { return a.stdinDone }

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.root.With(logx.String("comp", "supervisor"))), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.root.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateReload)

	// Subscribe before anything can route.
	outcomes, unsubMetrics := a.bus.Subscribe(256)
	a.sup.Go("metrics.collect", func(c context.Context) error {
		defer unsubMetrics()
		return a.collector.Run(c, outcomes)
	})
	if a.store != nil {
		audit, unsubAudit := a.bus.Subscribe(512)
		a.sup.Go("storage.audit", func(c context.Context) error {
			defer unsubAudit()
			a.runAudit(c, audit)
			return nil
		})
	}

	if a.cfg.Metrics.Enabled {
		if a.cfg.Metrics.Pprof {
			a.collector.EnableProfiling()
		}
		addr := a.cfg.Metrics.Addr
		a.sup.GoRestart("metrics.serve", func(c context.Context) error {
			return a.collector.Serve(c, addr)
		}, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}

	if spec := strings.TrimSpace(a.cfg.Report.Schedule); spec != "" {
		if err := a.startReporter(spec); err != nil {
			return fmt.Errorf("report.schedule: %w", err)
		}
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.startInputs()

	a.log.Info("app started")
	return nil
}

func (a *App) startInputs() {
	def := inputDefaults(a.cfg)
	log := a.root.With(logx.String("comp", "input"))

	if a.opts.Stdin || a.cfg.Inputs.Stdin {
		in := a.opts.In
		if in == nil {
			in = os.Stdin
		}
		a.stdinDone = make(chan struct{})
		done := a.stdinDone
		a.sup.Go("input.stdin", func(c context.Context) error {
			defer close(done)
			err := input.ReadFrom(c, in, def, a.router, log)
			log.Info("stdin closed")
			return err
		})
	}

	seen := map[string]bool{}
	for _, p := range append(append([]string(nil), a.cfg.Inputs.Files...), a.opts.Follow...) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		path := p
		a.sup.GoRestart("input.follow:"+path, func(c context.Context) error {
			return input.Follow(c, path, def, a.router, log)
		}, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}
}

// runAudit writes every relay outcome to the store. On shutdown it drains
// what is already buffered.
func (a *App) runAudit(ctx context.Context, ch <-chan eventbus.Event) {
	log := a.root.With(logx.String("comp", "audit"))
	write := func(ev eventbus.Event) {
		o, ok := ev.Data.(relay.Outcome)
		if !ok {
			return
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := a.store.AppendOutcome(wctx, o); err != nil {
			log.Warn("audit append failed", logx.String("kind", string(o.Kind)), logx.Err(err))
		}
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return
					}
					write(ev)
				default:
					return
				}
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			write(ev)
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// validateReload rejects a reloaded config that could not build the relay
// on the next restart.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	if _, err := mapSinkConfig(cfg); err != nil {
		return err
	}
	if _, err := mapAdapterConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}

// applyConfig applies what can change at runtime (operator logging) and
// reports everything else as needing a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	ch := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Debug("config change summary", fields...)

	a.logs.Apply(newCfg.Logging.LogxConfig())

	if ch.RestartRequired {
		a.log.Warn("config changed; restart required for relay settings to take effect",
			logx.String("changed", strings.Join(ch.Sections, ",")))
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(ch.Sections, ",")))
}

// Stats is a point-in-time view of the relay.
type Stats struct {
	Routed       uint64               `json:"routed"`
	SinkFailures uint64               `json:"sink_failures"`
	Outcomes     metrics.Snapshot     `json:"outcomes"`
	BusDropped   uint64               `json:"bus_dropped"`
	Window       relay.WindowSnapshot `json:"window"`
	Sent         uint64               `json:"sent"`
	SendFailed   uint64               `json:"send_failed"`
}

func (a *App) Stats() Stats {
	routed, fails := a.router.Stats()
	st := Stats{
		Routed:       routed,
		SinkFailures: fails,
		Outcomes:     a.collector.Snapshot(),
		BusDropped:   a.bus.Dropped(),
		Window:       a.notify.Snapshot(),
	}
	if a.adapter != nil {
		st.Sent, st.SendFailed = a.adapter.Stats()
	}
	return st
}

// Stop cancels all loops and releases resources. Each step is bounded so a
// stuck component cannot stall shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		start := time.Now()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("report", time.Second, func(c context.Context) error {
		if a.cron == nil {
			return nil
		}
		select {
		case <-a.cron.Stop().Done():
		case <-c.Done():
		}
		return nil
	})
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})

	st := a.Stats()
	a.log.Info("stopped",
		logx.Uint64("routed", st.Routed),
		logx.Uint64("forwarded", st.Outcomes.Forwarded),
		logx.Uint64("suppressed", st.Outcomes.Suppressed),
		logx.Uint64("notices", st.Outcomes.Notices),
		logx.Uint64("failed", st.Outcomes.Failed),
	)
	a.closeResources()
	return errors.Join(errs...)
}

func (a *App) closeResources() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
