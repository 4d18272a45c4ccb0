package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"homeworkbot/internal/eventbus"
	"homeworkbot/internal/transport"
	logx "homeworkbot/pkg/logx"
)

var ErrEmptyMessage = errors.New("notifier: empty message")

// Service sends plain-text messages to a single chat. Safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter transport.Adapter
	log     logx.Logger
	bus     eventbus.Bus

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	s := &Service{adapter: adapter, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Target() transport.ChatTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Target
}

// Send delivers text to the configured destination. Any transport failure
// comes back as *DeliveryError.
func (s *Service) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return &DeliveryError{Target: cfg.Target, Err: err}
	}

	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	ref, err := s.adapter.SendText(sctx, cfg.Target, text, &transport.SendOptions{DisablePreview: true})
	cancel()

	ev := NotificationEvent{
		ChatID:   cfg.Target.ChatID,
		Username: cfg.Target.Username,
		ThreadID: cfg.Target.ThreadID,
		Bytes:    len(text),
		At:       time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
		s.publish(eventbus.TypeNotifyFailed, ev)
		return &DeliveryError{Target: cfg.Target, Err: err}
	}

	s.appendHistory(HistoryItem{At: ev.At, Text: text, MessageID: ref.MessageID}, cfg.HistorySize)
	s.publish(eventbus.TypeNotifySent, ev)
	s.log.Debug("message delivered", logx.String("chat", cfg.Target.Recipient()), logx.Int("message_id", ref.MessageID))
	return nil
}

func (s *Service) publish(typ string, ev NotificationEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// Snapshot returns delivered messages, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem, limit int) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}
