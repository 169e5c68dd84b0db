package relay

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerRoutesWithName(t *testing.T) {
	sink := &recordingSink{name: "rec", min: Debug}
	fb, _ := bufferLogger()
	r := NewRouter(fb, sink)

	log := r.Logger("api").Named("demo")
	log.Info("Root endpoint called")
	log.Warn("This is a warning message")

	require.Equal(t, 2, sink.count())
	assert.Equal(t, "api.demo", sink.got[0].Logger)
	assert.Equal(t, Info, sink.got[0].Severity)
	assert.Equal(t, Warning, sink.got[1].Severity)
	assert.NotEmpty(t, sink.got[0].ID)
	assert.NotEqual(t, sink.got[0].ID, sink.got[1].ID)
	assert.False(t, sink.got[0].HasFailure())
}

func TestLoggerWithFailureCapturesErrorAndStack(t *testing.T) {
	sink := &recordingSink{name: "rec", min: Debug}
	fb, _ := bufferLogger()
	log := NewRouter(fb, sink).Logger("demo")

	log.Error("Division by zero error occurred", WithFailure(errors.New("integer divide by zero")))

	require.Equal(t, 1, sink.count())
	f := sink.got[0].Failure
	assert.Contains(t, f, "*errors.errorString: integer divide by zero")
	assert.Contains(t, f, "logger_test.go")
}

func TestLoggerOptions(t *testing.T) {
	sink := &recordingSink{name: "rec", min: Debug}
	fb, _ := bufferLogger()
	log := NewRouter(fb, sink).Logger("demo")
	at := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)

	log.Critical("x", WithTrace("Traceback (most recent call last):"), At(at), WithFailure(nil))

	require.Equal(t, 1, sink.count())
	assert.Equal(t, at, sink.got[0].Time)
	assert.Equal(t, "Traceback (most recent call last):", sink.got[0].Failure)
}

func TestLoggerRecover(t *testing.T) {
	sink := &recordingSink{name: "rec", min: Debug}
	fb, _ := bufferLogger()
	log := NewRouter(fb, sink).Logger("worker")

	assert.NotPanics(t, func() {
		defer log.Recover("worker crashed")
		var m map[string]int
		m["x"] = 1
	})

	require.Equal(t, 1, sink.count())
	ev := sink.got[0]
	assert.Equal(t, Critical, ev.Severity)
	assert.Contains(t, ev.Failure, "panic: assignment to entry in nil map")
	assert.Contains(t, ev.Failure, "goroutine")
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	assert.NotPanics(t, func() { log.Error("nothing") })
	assert.Equal(t, "child", log.Named("child").Name())
}
