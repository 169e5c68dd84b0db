package app

import (
	"fmt"

	"github.com/robfig/cron/v3"

	logx "logrelay/pkg/logx"
)

// startReporter logs relay statistics on a cron schedule (standard syntax or
// descriptors like "@every 1h").
func (a *App) startReporter(spec string) error {
	clog := cronLogger{log: a.root.With(logx.String("comp", "report"))}
	c := cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := c.AddFunc(spec, a.Report); err != nil {
		return err
	}
	c.Start()
	a.cron = c
	a.log.Info("stats report scheduled", logx.String("schedule", spec))
	return nil
}

// Report writes one statistics line to the operator log.
func (a *App) Report() {
	st := a.Stats()
	a.log.Info("relay stats",
		logx.Uint64("routed", st.Routed),
		logx.Uint64("sink_failures", st.SinkFailures),
		logx.Uint64("forwarded", st.Outcomes.Forwarded),
		logx.Uint64("suppressed", st.Outcomes.Suppressed),
		logx.Uint64("notices", st.Outcomes.Notices),
		logx.Uint64("failed", st.Outcomes.Failed),
		logx.Uint64("bus_dropped", st.BusDropped),
		logx.Int("window_count", st.Window.Count),
		logx.Int("window_capacity", st.Window.Capacity),
		logx.Bool("notice_sent", st.Window.NoticeSent),
	)
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
