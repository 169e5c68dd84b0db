package relay

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestFormatEventLine(t *testing.T) {
	ev := NewEvent(Error, "api.demo", "Custom error: <oops> & more")
	assert.Equal(t, "ERROR - api.demo - Custom error: &lt;oops&gt; &amp; more", FormatEvent(ev))
}

func TestFormatEventRootLogger(t *testing.T) {
	ev := NewEvent(Critical, "", "down")
	assert.Equal(t, "CRITICAL - root - down", FormatEvent(ev))
}

func TestFormatEventFailureIsSeparateBlock(t *testing.T) {
	ev := NewEvent(Error, "demo", "Division by zero error occurred")
	ev.Failure = "runtime error: integer divide by zero\n\nmain.handler\n  /app/main.go:42"

	got := FormatEvent(ev)
	line, block, ok := strings.Cut(got, "\n\n")
	assert.True(t, ok)
	assert.Equal(t, "ERROR - demo - Division by zero error occurred", line)
	assert.True(t, strings.HasPrefix(block, "<pre>"))
	assert.True(t, strings.HasSuffix(block, "</pre>"))
	assert.Contains(t, block, "main.go:42")
	assert.NotContains(t, line, "divide")
}

func TestFormatEventTruncatesHugeTrace(t *testing.T) {
	ev := NewEvent(Error, "demo", "boom")
	ev.Failure = strings.Repeat("<frame> & ", 2000)

	got := FormatEvent(ev)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), maxMessageLen)
	assert.True(t, strings.HasSuffix(got, "(truncated)</pre>"))
	// Never cut inside an entity.
	body := strings.TrimSuffix(strings.TrimPrefix(got[strings.Index(got, "<pre>"):], "<pre>"), "</pre>")
	assert.NotContains(t, body, "<")
	for _, part := range strings.Split(body, "&")[1:] {
		assert.Regexp(t, `^(lt|gt|amp|#39|quot);`, part)
	}
}

func TestFormatEventTruncatesHugeMessage(t *testing.T) {
	ev := NewEvent(Error, "demo", strings.Repeat("x", 10000))
	got := FormatEvent(ev)
	assert.Equal(t, maxMessageLen, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestFormatEventRepairsInvalidUTF8(t *testing.T) {
	ev := NewEvent(Error, "app", "bad \xff\xfe bytes")
	ev.Failure = "frame \xc3"
	out := FormatEvent(ev)
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "bad \uFFFD bytes")
	assert.Contains(t, out, "<pre>frame \uFFFD</pre>")
}

func TestFormatNotice(t *testing.T) {
	got := FormatNotice(10, 10*time.Minute)
	assert.Contains(t, got, "RATE LIMIT REACHED")
	assert.Contains(t, got, "Maximum of 10 messages per 10 minutes exceeded")
	assert.Contains(t, got, "suppressed until 10 minutes have passed")

	assert.Contains(t, FormatNotice(2, time.Minute), "per 1 minute exceeded")
	assert.Contains(t, FormatNotice(2, 90*time.Second), "per 1m30s exceeded")
}
