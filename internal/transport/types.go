package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidTarget = errors.New("invalid chat target")

// ChatTarget addresses a Telegram chat, optionally a forum topic inside it.
type ChatTarget struct {
	ChatID   int64
	ThreadID int // forum topic thread id (0 if none)
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

func (t ChatTarget) String() string {
	if t.ThreadID != 0 {
		return fmt.Sprintf("%d:%d", t.ChatID, t.ThreadID)
	}
	return strconv.FormatInt(t.ChatID, 10)
}

// ParseChatTarget accepts "<chat_id>" or "<chat_id>:<thread_id>".
// A non-zero threadID argument wins over a thread parsed from raw.
func ParseChatTarget(raw string, threadID int) (ChatTarget, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChatTarget{}, fmt.Errorf("%w: empty chat id", ErrInvalidTarget)
	}
	chatPart, threadPart, hasThread := strings.Cut(s, ":")
	chatID, err := strconv.ParseInt(strings.TrimSpace(chatPart), 10, 64)
	if err != nil || chatID == 0 {
		return ChatTarget{}, fmt.Errorf("%w: chat id %q", ErrInvalidTarget, raw)
	}
	to := ChatTarget{ChatID: chatID}
	if hasThread {
		tid, err := strconv.Atoi(strings.TrimSpace(threadPart))
		if err != nil || tid < 0 {
			return ChatTarget{}, fmt.Errorf("%w: thread id %q", ErrInvalidTarget, raw)
		}
		to.ThreadID = tid
	}
	if threadID != 0 {
		to.ThreadID = threadID
	}
	return to, nil
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

const (
	ParseModeNone = ""
	ParseModeHTML = "HTML"
)

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender posts a text message to a chat. It is the only outbound capability
// the relay needs; authentication, pacing and transport live behind it.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
