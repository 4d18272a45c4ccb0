package transport

import (
	"context"
	"strconv"
	"strings"
)

// ChatTarget identifies a chat destination. Telegram accepts either a
// numeric chat id or a public "@username"; Username wins when set.
type ChatTarget struct {
	ChatID   int64
	Username string
	ThreadID int // telegram forum topic thread id (0 if none)
}

// ParseChatTarget converts a destination id as provided by the operator
// ("123456", "-100123456" or "@channel") into a ChatTarget.
func ParseChatTarget(raw string, threadID int) (ChatTarget, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChatTarget{}, ErrEmptyTarget
	}
	if strings.HasPrefix(s, "@") {
		return ChatTarget{Username: s, ThreadID: threadID}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ChatTarget{}, &InvalidTargetError{Raw: raw, Err: err}
	}
	return ChatTarget{ChatID: id, ThreadID: threadID}, nil
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 && t.Username == "" }

// Recipient renders the target the way the Bot API expects chat_id.
func (t ChatTarget) Recipient() string {
	if t.Username != "" {
		return t.Username
	}
	return strconv.FormatInt(t.ChatID, 10)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the outbound messaging capability the watcher needs.
type Adapter interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
