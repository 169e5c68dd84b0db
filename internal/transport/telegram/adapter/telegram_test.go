package adapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "logrelay/internal/transport"
	logx "logrelay/pkg/logx"
)

type botAPI struct {
	mu    sync.Mutex
	texts []string
	delay time.Duration
	fail  bool
}

func (b *botAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var params map[string]any
		_ = json.Unmarshal(body, &params)

		if b.delay > 0 {
			time.Sleep(b.delay)
		}
		w.Header().Set("Content-Type", "application/json")
		if b.fail {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
			return
		}
		b.mu.Lock()
		if s, ok := params["text"].(string); ok {
			b.texts = append(b.texts, s)
		}
		n := len(b.texts)
		b.mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":`+itoa(n)+`,"date":0,"chat":{"id":-100,"type":"supergroup"}}}`)
	})
}

func (b *botAPI) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.texts...)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newTestAdapter(t *testing.T, api *botAPI) *Adapter {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	a, err := New(Config{Token: "123:abc", URL: srv.URL, RatePerSec: 1000, Burst: 100, HTTPTimeout: 2 * time.Second}, logx.Nop())
	require.NoError(t, err)
	return a
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{Token: "  "}, logx.Nop())
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestSendTextPostsMessage(t *testing.T) {
	api := &botAPI{}
	a := newTestAdapter(t, api)

	ref, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: -100}, "hello", &kit.SendOptions{DisablePreview: true})
	require.NoError(t, err)
	assert.Equal(t, 1, ref.MessageID)
	assert.Equal(t, []string{"hello"}, api.sent())

	sent, failed := a.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Zero(t, failed)
}

func TestSendTextRejectsZeroTarget(t *testing.T) {
	a := newTestAdapter(t, &botAPI{})
	_, err := a.SendText(context.Background(), kit.ChatTarget{}, "x", nil)
	assert.ErrorIs(t, err, kit.ErrInvalidTarget)
}

func TestSendTextReportsAPIError(t *testing.T) {
	a := newTestAdapter(t, &botAPI{fail: true})
	_, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: -100}, "x", nil)
	require.Error(t, err)

	_, failed := a.Stats()
	assert.Equal(t, uint64(1), failed)
}

func TestSendTextHonorsContextDeadline(t *testing.T) {
	a := newTestAdapter(t, &botAPI{delay: 500 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: -100}, "slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, "timeout", ErrorKind(err))
}

func TestSplitTelegramText(t *testing.T) {
	short := splitTelegramText("abc", 10, "")
	assert.Equal(t, []string{"abc"}, short)

	long := strings.Repeat("line\n", 10)
	chunks := splitTelegramText(long, 12, "")
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 12)
		assert.NotEmpty(t, c)
	}
}
