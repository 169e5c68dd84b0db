package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	kit "logrelay/internal/transport"
	logx "logrelay/pkg/logx"
)

var ErrEmptyToken = errors.New("telegram token is empty")

// Config configures the send-only Telegram adapter.
type Config struct {
	Token string
	// URL overrides the Bot API endpoint (tests, self-hosted API servers).
	URL string
	// HTTPTimeout bounds each Bot API request. Default 10s.
	HTTPTimeout time.Duration
	// RatePerSec paces outbound messages. Telegram allows roughly one message
	// per second per chat before answering 429. Default 1.
	RatePerSec float64
	Burst      int
	// Verify calls getMe at construction time. Off by default so a broken
	// network cannot prevent startup; auth failures surface on first send.
	Verify bool
}

// Adapter posts text messages through the Telegram Bot API.
// It is safe for concurrent use.
type Adapter struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	sent   atomic.Uint64
	failed atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrEmptyToken
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     strings.TrimSpace(cfg.URL),
		Client:  &http.Client{Timeout: cfg.HTTPTimeout},
		Offline: !cfg.Verify,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}, nil
}

// Stats returns best-effort send counters.
func (a *Adapter) Stats() (sent, failed uint64) {
	return a.sent.Load(), a.failed.Load()
}

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and (best-effort) avoids splitting inside HTML tags when ParseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, kit.ParseModeHTML) && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// SendText sends text to the target, split into Telegram-sized chunks.
//
// The call returns when ctx is done even if the Bot API request is still in
// flight; the request itself is bounded by Config.HTTPTimeout.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if to.IsZero() {
		return kit.MessageRef{}, kit.ErrInvalidTarget
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chat := &tele.Chat{ID: to.ChatID}
	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit, opt.ParseMode) {
		if err := a.limiter.Wait(ctx); err != nil {
			a.failed.Add(1)
			return first, err
		}

		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		msg, err := a.send(ctx, chat, chunk, sendOpt)
		if err != nil {
			a.failed.Add(1)
			a.log.Debug("telegram send failed",
				logx.String("chat", to.String()),
				logx.String("kind", ErrorKind(err)),
				logx.Err(err),
			)
			return first, err
		}
		if i == 0 && msg != nil {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	a.sent.Add(1)
	return first, nil
}

type sendResult struct {
	msg *tele.Message
	err error
}

func (a *Adapter) send(ctx context.Context, chat *tele.Chat, text string, opt *tele.SendOptions) (*tele.Message, error) {
	// telebot has no context support; race the request against ctx.
	ch := make(chan sendResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- sendResult{err: fmt.Errorf("telegram send panic: %v", r)}
			}
		}()
		msg, err := a.bot.Send(chat, text, opt)
		ch <- sendResult{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.msg, res.err
	}
}

// ErrorKind classifies a send error for logs and metrics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var flood tele.FloodError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &flood):
		return "rate_limited"
	case errors.Is(err, tele.ErrUnauthorized):
		return "auth"
	case errors.Is(err, kit.ErrInvalidTarget), errors.Is(err, tele.ErrChatNotFound):
		return "target"
	default:
		return "transport"
	}
}
