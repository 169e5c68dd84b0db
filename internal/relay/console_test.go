package relay

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleSinkWritesEveryLevel(t *testing.T) {
	buf := &syncBuffer{}
	c := NewConsoleSink(buf, 0)
	assert.Equal(t, Debug, c.MinSeverity())

	require.NoError(t, c.Handle(context.Background(), NewEvent(Debug, "app", "debugging")))
	require.NoError(t, c.Handle(context.Background(), NewEvent(Critical, "app", "on fire")))

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "debugging")
	assert.Contains(t, out, "CRITICAL")
	assert.Contains(t, out, "logger=app")
}

func TestConsoleSinkIndentsFailure(t *testing.T) {
	buf := &syncBuffer{}
	c := NewConsoleSink(buf, Debug)
	ev := NewEvent(Error, "app", "failed")
	ev.Failure = "line one\nline two"

	require.NoError(t, c.Handle(context.Background(), ev))
	out := buf.String()
	assert.True(t, strings.Contains(out, "\n    line one\n    line two\n"), out)
}
