package relay

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"
)

// maxMessageLen keeps a formatted event inside one Telegram message.
const maxMessageLen = 3900

const truncMark = "\n…(truncated)"

// FormatEvent renders ev for Telegram HTML parse mode:
//
//	ERROR - api.demo - division by zero
//
//	<pre>trace…</pre>
func FormatEvent(ev Event) string {
	logger := ev.Logger
	if logger == "" {
		logger = "root"
	}
	line := fitEscaped(fmt.Sprintf("%s - %s - %s", ev.Severity, logger, ev.Message), maxMessageLen, "…")
	if strings.TrimSpace(ev.Failure) == "" {
		return line
	}

	const open, closeTag = "\n\n<pre>", "</pre>"
	budget := maxMessageLen - utf8.RuneCountInString(line) - len(open) - len(closeTag)
	if budget <= len(truncMark) {
		return line
	}
	trace := fitEscaped(strings.TrimRight(ev.Failure, "\n"), budget, truncMark)
	return line + open + trace + closeTag
}

// FormatNotice renders the one-per-episode rate limit notice.
func FormatNotice(max int, period time.Duration) string {
	p := humanPeriod(period)
	return fmt.Sprintf(
		"⚠️ <b>RATE LIMIT REACHED</b>: Maximum of %d messages per %s exceeded. "+
			"Some log messages will be suppressed until %s have passed since the first message.",
		max, p, p,
	)
}

func humanPeriod(d time.Duration) string {
	if d > 0 && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}

// fitEscaped HTML-escapes s so the result has at most budget runes,
// cutting the raw text (never an entity) and appending mark when cut.
// Invalid UTF-8 is replaced with U+FFFD.
func fitEscaped(s string, budget int, mark string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	esc := html.EscapeString(s)
	if utf8.RuneCountInString(esc) <= budget {
		return esc
	}
	rs := []rune(s)
	n := min(len(rs), budget-utf8.RuneCountInString(mark))
	for n > 0 {
		esc = html.EscapeString(string(rs[:n])) + mark
		over := utf8.RuneCountInString(esc) - budget
		if over <= 0 {
			return esc
		}
		n -= over
	}
	return ""
}
