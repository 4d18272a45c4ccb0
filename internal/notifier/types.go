package notifier

import (
	"fmt"
	"time"

	"homeworkbot/internal/transport"
)

// Config controls delivery.
type Config struct {
	Target      transport.ChatTarget
	RatePerSec  int
	SendTimeout time.Duration
	HistorySize int
}

type HistoryItem struct {
	At        time.Time
	Text      string
	MessageID int
}

// DeliveryError reports a message that did not reach the chat.
type DeliveryError struct {
	Target transport.ChatTarget
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver message to %s: %v", e.Target.Recipient(), e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// NotificationEvent is published on the event bus after each send attempt.
type NotificationEvent struct {
	ChatID   int64     `json:"chat_id,omitempty"`
	Username string    `json:"username,omitempty"`
	ThreadID int       `json:"thread_id,omitempty"`
	Bytes    int       `json:"bytes"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
