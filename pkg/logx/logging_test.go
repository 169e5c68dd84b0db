package logx

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	l.Error("dropped", String("k", "v"))
}

func TestWriterLoggerRendersFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "DEBUG").With(String("comp", "relay"))
	l.Warn("send failed", Err(errors.New("boom")), Int("attempt", 1))

	out := buf.String()
	assert.Contains(t, out, "send failed")
	assert.Contains(t, out, "comp=relay")
	assert.Contains(t, out, "attempt=1")
	assert.Contains(t, out, "boom")
}

func TestWriterLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "ERROR")
	l.Info("hidden")
	assert.Empty(t, buf.String())
	assert.False(t, l.Enabled(LevelWarn))
	assert.True(t, l.Enabled(LevelError))
}

func TestServiceFileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	svc, l := New(Config{Level: "INFO", File: FileConfig{Enabled: true, Path: path}})
	l.Info("hello", String("k", "v"))
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(b))
	assert.True(t, strings.HasPrefix(line, "{"), "expected JSON line, got %q", line)
	assert.Contains(t, line, `"message":"hello"`)
	assert.Contains(t, line, `"k":"v"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLevel("warning", LevelInfo))
	assert.Equal(t, LevelDebug, ParseLevel(" debug ", LevelInfo))
	assert.Equal(t, LevelInfo, ParseLevel("nope", LevelInfo))
}
