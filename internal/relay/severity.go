package relay

import "strings"

// Severity is an ordered log severity. The zero value means "unset".
type Severity int

const (
	Debug Severity = iota + 1
	Info
	Warning
	Error
	Critical
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Critical:
		return "CRITICAL"
	default:
		if s < Debug {
			return "DEBUG"
		}
		return "CRITICAL"
	}
}

// ParseSeverity maps a level name to a Severity. Unknown names return def.
func ParseSeverity(s string, def Severity) Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE", "DEBUG", "DBG":
		return Debug
	case "INFO", "INF", "NOTICE":
		return Info
	case "WARN", "WARNING", "WRN":
		return Warning
	case "ERROR", "ERR":
		return Error
	case "CRITICAL", "CRIT", "FATAL", "FTL", "PANIC", "EMERG", "ALERT":
		return Critical
	default:
		return def
	}
}
