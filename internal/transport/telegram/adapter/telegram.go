package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"homeworkbot/internal/transport"
	logx "homeworkbot/pkg/logx"
)

// Config configures the Telegram adapter.
type Config struct {
	Token string
	// APIURL overrides the Bot API base URL (self-hosted Bot API server or tests).
	APIURL string
	// Timeout bounds a single Bot API call. 0 keeps the http.Client default (none).
	Timeout time.Duration
	// Offline skips the getMe round-trip on construction.
	Offline bool
}

// Adapter is a send-only Telegram transport. The watcher never consumes
// updates, so no poller is started.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

// New builds the adapter. Unless cfg.Offline is set, the token is checked
// with getMe; a failed check is logged and the adapter is built offline,
// so an unreachable Bot API surfaces later as send errors.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	settings := tele.Settings{
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: cfg.Offline,
		OnError: func(err error, _ tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	}
	b, err := tele.NewBot(settings)
	if err != nil && !settings.Offline {
		log.Warn("telegram getMe failed; continuing without it", logx.Err(err))
		settings.Offline = true
		b, err = tele.NewBot(settings)
	}
	if err != nil {
		return nil, err
	}
	if b.Me != nil && b.Me.Username != "" {
		log.Info("telegram bot ready", logx.String("username", b.Me.Username))
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// SendText delivers text to the target chat. telebot has no context-aware
// API, so ctx is only checked before the call.
func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	if to.IsZero() {
		return transport.MessageRef{}, transport.ErrEmptyTarget
	}
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}

	msg, err := a.bot.Send(to, text, sendOpt)
	if err != nil {
		return transport.MessageRef{}, err
	}
	ref := transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
	if msg.Chat != nil {
		ref.ChatID = msg.Chat.ID
	}
	return ref, nil
}
