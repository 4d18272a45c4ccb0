package poller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"homeworkbot/internal/eventbus"
	"homeworkbot/internal/practicum"
	logx "homeworkbot/pkg/logx"
)

// failurePrefix starts every fault report sent to the chat.
const failurePrefix = "Bot failure: "

// Poller owns the cursor and runs the fetch, validate, translate and
// notify loop. Run must not be called concurrently.
type Poller struct {
	fetch Fetcher
	send  Sender
	log   logx.Logger
	bus   eventbus.Bus

	period      atomic.Int64 // time.Duration
	cursor      atomic.Int64
	startCursor int64

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	onCycle func(Cycle)
}

func New(fetch Fetcher, send Sender, retryPeriod time.Duration, log logx.Logger, opts ...Option) *Poller {
	p := &Poller{
		fetch: fetch,
		send:  send,
		log:   log,
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, o := range opts {
		o(p)
	}
	p.SetRetryPeriod(retryPeriod)
	if p.startCursor > 0 {
		p.cursor.Store(p.startCursor)
	} else {
		p.cursor.Store(p.now().Unix())
	}
	return p
}

// Cursor returns the start of the next polling window (Unix seconds).
func (p *Poller) Cursor() int64 { return p.cursor.Load() }

func (p *Poller) RetryPeriod() time.Duration { return time.Duration(p.period.Load()) }

// SetRetryPeriod changes the pause between cycles; it takes effect after
// the current wait.
func (p *Poller) SetRetryPeriod(d time.Duration) {
	if d <= 0 {
		d = DefaultRetryPeriod
	}
	p.period.Store(int64(d))
}

// Run polls until ctx is canceled. Every iteration is followed by exactly
// one wait of the retry period, whatever the iteration's outcome.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller started", logx.Int64("cursor", p.Cursor()), logx.Duration("retry_period", p.RetryPeriod()))
	for {
		if ctx.Err() != nil {
			break
		}
		p.Iterate(ctx)
		if err := p.sleep(ctx, p.RetryPeriod()); err != nil {
			break
		}
	}
	p.log.Info("poller stopped", logx.Int64("cursor", p.Cursor()))
	return nil
}

// Iterate runs a single poll cycle. Faults never escape: they are logged,
// reported to the chat when appropriate, and recorded in the returned Cycle.
func (p *Poller) Iterate(ctx context.Context) (c Cycle) {
	c = Cycle{ID: uuid.NewString(), Started: p.now(), From: p.Cursor()}
	log := p.log.With(logx.String("cycle", c.ID))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in poll cycle: %v", r)
			log.Error("poll cycle panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			p.report(ctx, log, err)
			c.Err = err
		}
		c.Cursor = p.Cursor()
		c.Took = p.now().Sub(c.Started)
		p.finish(log, c)
	}()

	c.Err = p.cycle(ctx, log, &c)
	return c
}

func (p *Poller) cycle(ctx context.Context, log logx.Logger, c *Cycle) error {
	raw, err := p.fetch.FetchHomeworkStatuses(ctx, c.From)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case practicum.IsTransient(err):
			// Already logged by the client; stay quiet in the chat.
			c.Skipped = true
			return err
		default:
			log.Error("homework fetch failed", logx.Err(err))
			p.report(ctx, log, err)
			return err
		}
	}

	snap, err := practicum.ValidateResponse(raw, log)
	if err != nil {
		p.report(ctx, log, err)
		return err
	}
	c.Homeworks = len(snap.Homeworks)

	if len(snap.Homeworks) > 0 {
		msg, err := practicum.ParseStatus(snap.Homeworks[0], log)
		if err != nil {
			p.report(ctx, log, err)
			return err
		}
		if err := p.send.Send(ctx, msg); err != nil {
			// The cursor stays put so the verdict is fetched and sent again.
			log.Error("verdict not delivered", logx.Err(err))
			return err
		}
		c.Notified = true
		log.Info("verdict delivered", logx.String("status", fmt.Sprint(snap.Homeworks[0]["status"])))
	}

	p.advance(log, snap.CurrentDate)
	return nil
}

func (p *Poller) advance(log logx.Logger, to int64) {
	cur := p.Cursor()
	switch {
	case to > cur:
		p.cursor.Store(to)
	case to < cur:
		log.Warn("current_date behind cursor; keeping cursor", logx.Int64("current_date", to), logx.Int64("cursor", cur))
	}
}

// report sends the fault text to the chat. A failed or panicking report is
// only logged; it runs inside Iterate's recover and must not panic itself.
func (p *Poller) report(ctx context.Context, log logx.Logger, err error) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("failure report panicked", logx.Any("panic", r), logx.String("fault", err.Error()))
		}
	}()
	if serr := p.send.Send(ctx, failurePrefix+err.Error()); serr != nil {
		log.Error("failure report not delivered", logx.Err(serr), logx.String("fault", err.Error()))
	}
}

func (p *Poller) finish(log logx.Logger, c Cycle) {
	fields := []logx.Field{
		logx.Int64("from", c.From),
		logx.Int64("cursor", c.Cursor),
		logx.Int("homeworks", c.Homeworks),
		logx.Bool("notified", c.Notified),
		logx.Duration("took", c.Took),
	}
	if c.Err != nil && !errors.Is(c.Err, context.Canceled) {
		fields = append(fields, logx.Bool("skipped", c.Skipped), logx.Err(c.Err))
	}
	log.Debug("poll cycle done", fields...)

	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: eventbus.TypePollCycle, Time: c.Started, Data: c})
	}
	if p.onCycle != nil {
		p.onCycle(c)
	}
}
