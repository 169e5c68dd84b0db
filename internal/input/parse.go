// Package input turns log lines from stdin or followed files into relay
// events.
package input

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"logrelay/internal/relay"
)

// Defaults apply to lines that carry no level or logger of their own.
type Defaults struct {
	Severity relay.Severity
	Logger   string
}

func (d Defaults) normalized() Defaults {
	if d.Severity == 0 {
		d.Severity = relay.Info
	}
	if strings.TrimSpace(d.Logger) == "" {
		d.Logger = "stdin"
	}
	return d
}

// ParseLine parses one complete line. It reports false for blank lines.
//
// Accepted shapes, in order: a JSON object (zerolog/slog/logrus keys),
// "LEVEL - name - message", "name - LEVEL - message",
// "time - name - LEVEL - message", "[LEVEL] message", "LEVEL: message".
// Anything else becomes a message at the default severity.
func ParseLine(line string, def Defaults) (relay.Event, bool) {
	def = def.normalized()
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return relay.Event{}, false
	}
	if ev, ok := parseJSON(line, def); ok {
		return ev, true
	}
	if ev, ok := parseDashed(line, def); ok {
		return ev, true
	}
	if ev, ok := parsePrefixed(line, def); ok {
		return ev, true
	}
	return relay.NewEvent(def.Severity, def.Logger, line), true
}

// IsContinuation reports whether line extends the previous event's failure
// text (indented stack frames, Python tracebacks, Go goroutine dumps).
func IsContinuation(line string) bool {
	if line == "" {
		return false
	}
	switch line[0] {
	case ' ', '\t':
		return strings.TrimSpace(line) != ""
	}
	return strings.HasPrefix(line, "Traceback ") ||
		strings.HasPrefix(line, "goroutine ") ||
		strings.HasPrefix(line, "During handling of the above exception") ||
		strings.HasPrefix(line, "The above exception was the direct cause")
}

var (
	levelKeys   = []string{"level", "severity", "levelname", "lvl"}
	loggerKeys  = []string{"logger", "name", "comp", "component"}
	messageKeys = []string{"message", "msg"}
	timeKeys    = []string{"time", "timestamp", "ts", "asctime"}
	failureKeys = []string{"stack", "trace", "exc_info", "stacktrace"}
)

func parseJSON(line string, def Defaults) (relay.Event, bool) {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "{") {
		return relay.Event{}, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return relay.Event{}, false
	}

	sev := def.Severity
	if v, ok := firstString(m, levelKeys); ok {
		sev = relay.ParseSeverity(v, def.Severity)
	}
	logger := def.Logger
	if v, ok := firstString(m, loggerKeys); ok && v != "" {
		logger = v
	}
	msg, _ := firstString(m, messageKeys)
	if e, ok := firstString(m, []string{"error", "err"}); ok && e != "" {
		if msg == "" {
			msg = e
		} else {
			msg += ": " + e
		}
	}
	if msg == "" {
		msg = s
	}

	ev := relay.NewEvent(sev, logger, msg)
	if t, ok := parseTime(m); ok {
		ev.Time = t
	}
	if f, ok := firstString(m, failureKeys); ok {
		ev.Failure = f
	}
	return ev, true
}

func firstString(m map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			return x, true
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), true
		case []any:
			parts := make([]string, 0, len(x))
			for _, p := range x {
				parts = append(parts, fmt.Sprint(p))
			}
			return strings.Join(parts, "\n"), true
		default:
			return fmt.Sprint(x), true
		}
	}
	return "", false
}

func parseTime(m map[string]any) (time.Time, bool) {
	for _, k := range timeKeys {
		switch v := m[k].(type) {
		case string:
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z07:00", "2006-01-02 15:04:05,000", "2006-01-02 15:04:05"} {
				if t, err := time.Parse(layout, v); err == nil {
					return t, true
				}
			}
		case float64:
			sec, frac := int64(v), v-float64(int64(v))
			return time.Unix(sec, int64(frac*1e9)), true
		}
	}
	return time.Time{}, false
}

func parseDashed(line string, def Defaults) (relay.Event, bool) {
	parts := strings.SplitN(line, " - ", 4)
	switch len(parts) {
	case 3:
		if sev, ok := severityToken(parts[0]); ok {
			return dashedEvent(sev, parts[1], parts[2], def), true
		}
		if sev, ok := severityToken(parts[1]); ok {
			return dashedEvent(sev, parts[0], parts[2], def), true
		}
	case 4:
		if sev, ok := severityToken(parts[2]); ok {
			ev := dashedEvent(sev, parts[1], parts[3], def)
			for _, layout := range []string{"2006-01-02 15:04:05,000", "2006-01-02 15:04:05", time.RFC3339Nano} {
				if t, err := time.ParseInLocation(layout, strings.TrimSpace(parts[0]), time.Local); err == nil {
					ev.Time = t
					break
				}
			}
			return ev, true
		}
		if sev, ok := severityToken(parts[0]); ok {
			return dashedEvent(sev, parts[1], parts[2]+" - "+parts[3], def), true
		}
		if sev, ok := severityToken(parts[1]); ok {
			return dashedEvent(sev, parts[0], parts[2]+" - "+parts[3], def), true
		}
	}
	return relay.Event{}, false
}

func dashedEvent(sev relay.Severity, logger, msg string, def Defaults) relay.Event {
	logger = strings.TrimSpace(logger)
	if logger == "" {
		logger = def.Logger
	}
	return relay.NewEvent(sev, logger, strings.TrimSpace(msg))
}

func parsePrefixed(line string, def Defaults) (relay.Event, bool) {
	s := strings.TrimSpace(line)
	if strings.HasPrefix(s, "[") {
		if end := strings.IndexByte(s, ']'); end > 1 {
			if sev, ok := severityToken(s[1:end]); ok {
				return relay.NewEvent(sev, def.Logger, strings.TrimSpace(s[end+1:])), true
			}
		}
	}
	if head, rest, ok := strings.Cut(s, ":"); ok {
		if sev, ok := severityToken(head); ok {
			return relay.NewEvent(sev, def.Logger, strings.TrimSpace(rest)), true
		}
	}
	return relay.Event{}, false
}

func severityToken(s string) (relay.Severity, bool) {
	sev := relay.ParseSeverity(s, 0)
	return sev, sev != 0
}
