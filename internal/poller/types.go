package poller

import (
	"context"
	"time"

	"homeworkbot/internal/eventbus"
)

// DefaultRetryPeriod is the pause between two poll cycles.
const DefaultRetryPeriod = 10 * time.Minute

// Fetcher returns the raw decoded API response for the window starting at from.
type Fetcher interface {
	FetchHomeworkStatuses(ctx context.Context, from int64) (any, error)
}

// Sender delivers a message to the chat.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Cycle summarizes one loop iteration.
type Cycle struct {
	ID        string        `json:"id"`
	Started   time.Time     `json:"started"`
	Took      time.Duration `json:"took"`
	From      int64         `json:"from"`
	Cursor    int64         `json:"cursor"`
	Homeworks int           `json:"homeworks"`
	Notified  bool          `json:"notified"`
	// Skipped is set when the fetch failed transiently and nothing was reported.
	Skipped bool  `json:"skipped"`
	Err     error `json:"-"`
}

type Option func(*Poller)

// WithClock overrides time.Now (initial cursor, cycle timestamps).
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// WithSleep overrides the inter-cycle wait. fn must return a non-nil error
// when ctx is done.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// WithStartCursor starts polling from a fixed timestamp instead of "now".
func WithStartCursor(unix int64) Option {
	return func(p *Poller) { p.startCursor = unix }
}

func WithBus(bus eventbus.Bus) Option {
	return func(p *Poller) { p.bus = bus }
}

// WithCycleHook runs fn after every iteration, on the loop goroutine.
func WithCycleHook(fn func(Cycle)) Option {
	return func(p *Poller) { p.onCycle = fn }
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
