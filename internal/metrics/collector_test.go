package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logrelay/internal/eventbus"
	"logrelay/internal/relay"
	logx "logrelay/pkg/logx"
)

func outcome(k relay.OutcomeKind) eventbus.Event {
	o := relay.Outcome{Kind: k, Sink: "telegram", At: time.Now()}
	return eventbus.Event{Type: k.EventType(), Data: o}
}

func TestRunCountsBusOutcomes(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	c := NewCollector(logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx, ch)
	}()

	bus.Publish(outcome(relay.OutcomeForwarded))
	bus.Publish(outcome(relay.OutcomeForwarded))
	bus.Publish(outcome(relay.OutcomeSuppressed))
	bus.Publish(outcome(relay.OutcomeNotice))
	bus.Publish(outcome(relay.OutcomeFailed))
	bus.Publish(eventbus.Event{Type: "other", Data: 1})
	bus.Publish(eventbus.Event{Type: "relay.forwarded", Data: "not an outcome"})

	want := Snapshot{Forwarded: 2, Suppressed: 1, Notices: 1, Failed: 1}
	require.Eventually(t, func() bool { return c.Snapshot() == want }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues("forwarded", "telegram")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("notice", "telegram")))

	cancel()
	<-done
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(logx.Nop())
	c.CounterFunc("logrelay_routed_total", "Events routed.", func() float64 { return 7 })
	c.Observe(relay.Outcome{Kind: relay.OutcomeForwarded, Sink: "telegram"})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	body := get(t, srv.URL+"/metrics")
	assert.Contains(t, body, `logrelay_events_total{outcome="forwarded",sink="telegram"} 1`)
	assert.Contains(t, body, "logrelay_routed_total 7")

	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(get(t, srv.URL+"/stats")), &snap))
	assert.Equal(t, uint64(1), snap.Forwarded)

	assert.Equal(t, "ok", get(t, srv.URL+"/healthz"))
}

func TestProfilingIsOptIn(t *testing.T) {
	c := NewCollector(logx.Nop())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c.EnableProfiling()
	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeListenerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	c := NewCollector(logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.ServeListener(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	assert.True(t, isLoopbackAddr("127.0.0.1:9464"))
	assert.True(t, isLoopbackAddr("localhost:1"))
	assert.True(t, isLoopbackAddr("[::1]:1"))
	assert.False(t, isLoopbackAddr(":9464"))
	assert.False(t, isLoopbackAddr("0.0.0.0:9464"))
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
