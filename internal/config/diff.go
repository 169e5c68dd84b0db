package config

import (
	"reflect"
	"sort"
	"strings"

	logx "logrelay/pkg/logx"
)

// Change describes how a new config differs from the running one.
type Change struct {
	// Sections lists changed top-level sections, sorted.
	Sections []string
	// Attrs are secret-free log fields describing the new values.
	Attrs []logx.Field
	// RestartRequired is set when a section that is fixed at startup changed.
	RestartRequired bool
}

// liveSections can be applied without restarting the relay.
var liveSections = map[string]bool{"logging": true}

// SummarizeConfigChange compares two configs. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var ch Change

	// Telegram (never log token)
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		strings.TrimSpace(ot.ChatID) != strings.TrimSpace(nt.ChatID) ||
		ot.ThreadID != nt.ThreadID ||
		strings.TrimSpace(ot.APIURL) != strings.TrimSpace(nt.APIURL) ||
		strings.TrimSpace(ot.SendTimeout) != strings.TrimSpace(nt.SendTimeout) ||
		ot.RatePerSec != nt.RatePerSec {
		ch.Sections = append(ch.Sections, "telegram")
		ch.Attrs = append(ch.Attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.String("telegram.chat_id", strings.TrimSpace(nt.ChatID)),
			logx.Int("telegram.thread_id", nt.ThreadID),
			logx.String("telegram.send_timeout", strings.TrimSpace(nt.SendTimeout)),
		)
	}

	if oldCfg.Relay != newCfg.Relay {
		ch.Sections = append(ch.Sections, "relay")
		ch.Attrs = append(ch.Attrs,
			logx.Int("relay.max_messages", newCfg.Relay.MaxMessages),
			logx.Int("relay.period_minutes", newCfg.Relay.PeriodMinutes),
			logx.String("relay.min_level", newCfg.Relay.MinLevel),
		)
	}

	if oldCfg.Console.IsEnabled() != newCfg.Console.IsEnabled() ||
		oldCfg.Console.MinLevel != newCfg.Console.MinLevel {
		ch.Sections = append(ch.Sections, "console")
		ch.Attrs = append(ch.Attrs,
			logx.Bool("console.enabled", newCfg.Console.IsEnabled()),
			logx.String("console.min_level", newCfg.Console.MinLevel),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		ch.Sections = append(ch.Sections, "logging")
		ch.Attrs = append(ch.Attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.StorageDriver() != newCfg.StorageDriver() || !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		ch.Sections = append(ch.Sections, "storage")
		ch.Attrs = append(ch.Attrs, logx.String("storage.driver", newCfg.StorageDriver()))
	}

	if oldCfg.Metrics != newCfg.Metrics {
		ch.Sections = append(ch.Sections, "metrics")
		ch.Attrs = append(ch.Attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
		)
	}

	if oldCfg.Report != newCfg.Report {
		ch.Sections = append(ch.Sections, "report")
		ch.Attrs = append(ch.Attrs, logx.String("report.schedule", newCfg.Report.Schedule))
	}

	if !reflect.DeepEqual(oldCfg.Inputs, newCfg.Inputs) {
		ch.Sections = append(ch.Sections, "inputs")
		ch.Attrs = append(ch.Attrs,
			logx.Bool("inputs.stdin", newCfg.Inputs.Stdin),
			logx.Int("inputs.files", len(newCfg.Inputs.Files)),
		)
	}

	sort.Strings(ch.Sections)
	for _, s := range ch.Sections {
		if !liveSections[s] {
			ch.RestartRequired = true
			break
		}
	}
	return ch
}

// LogxConfig maps the logging section onto logx.
func (c LoggingConfig) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}
