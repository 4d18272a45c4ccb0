package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"homeworkbot/internal/eventbus"
	"homeworkbot/internal/notifier"
	"homeworkbot/internal/practicum"
	logx "homeworkbot/pkg/logx"
)

const startUnix = 1699990000

type recordingSender struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (s *recordingSender) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, text)
	return nil
}

func (s *recordingSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

// apiStub serves a fixed response and records the requested from_date values.
type apiStub struct {
	status int
	body   atomic.Value // string
	mu     sync.Mutex
	froms  []string
}

func (a *apiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.froms = append(a.froms, r.URL.Query().Get("from_date"))
	a.mu.Unlock()
	if a.status != 0 {
		w.WriteHeader(a.status)
	}
	body, _ := a.body.Load().(string)
	_, _ = w.Write([]byte(body))
}

func (a *apiStub) requested() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.froms...)
}

func newStub(status int, body string) *apiStub {
	a := &apiStub{status: status}
	a.body.Store(body)
	return a
}

func newPoller(t *testing.T, endpoint string, send Sender, opts ...Option) *Poller {
	t.Helper()
	client, err := practicum.NewClient(practicum.ClientConfig{Endpoint: endpoint, Token: "token"}, logx.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	clock := func() time.Time { return time.Unix(startUnix, 0) }
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(client, send, time.Minute, logx.Nop(), opts...)
}

func serve(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestIterateSendsVerdictAndAdvancesCursor(t *testing.T) {
	api := newStub(0, `{"homeworks":[{"homework_name":"hw1","status":"approved"}],"current_date":1700000000}`)
	send := &recordingSender{}
	p := newPoller(t, serve(t, api), send)

	c := p.Iterate(context.Background())
	if c.Err != nil {
		t.Fatalf("unexpected cycle error: %v", c.Err)
	}

	msgs := send.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one message, got %d: %v", len(msgs), msgs)
	}
	verdict, _ := practicum.Verdict(practicum.StatusApproved)
	if !strings.Contains(msgs[0], `"hw1"`) || !strings.Contains(msgs[0], verdict) {
		t.Fatalf("unexpected message: %q", msgs[0])
	}
	if p.Cursor() != 1700000000 {
		t.Fatalf("Cursor = %d, want 1700000000", p.Cursor())
	}
	if !c.Notified || c.Homeworks != 1 || c.Cursor != 1700000000 || c.ID == "" {
		t.Fatalf("unexpected cycle: %+v", c)
	}
	if froms := api.requested(); froms[0] != "1699990000" {
		t.Fatalf("first request from_date = %s, want start cursor", froms[0])
	}
}

func TestIterateEmptyHomeworksOnlyAdvancesCursor(t *testing.T) {
	api := newStub(0, `{"homeworks":[],"current_date":1700000100}`)
	send := &recordingSender{}
	p := newPoller(t, serve(t, api), send)

	c := p.Iterate(context.Background())
	if c.Err != nil {
		t.Fatalf("unexpected cycle error: %v", c.Err)
	}
	if n := len(send.messages()); n != 0 {
		t.Fatalf("expected no messages, got %d", n)
	}
	if p.Cursor() != 1700000100 {
		t.Fatalf("Cursor = %d, want 1700000100", p.Cursor())
	}
}

func TestIterateUsesCursorForNextWindow(t *testing.T) {
	api := newStub(0, `{"homeworks":[],"current_date":1700000100}`)
	p := newPoller(t, serve(t, api), &recordingSender{})

	p.Iterate(context.Background())
	p.Iterate(context.Background())

	if froms := api.requested(); len(froms) != 2 || froms[1] != "1700000100" {
		t.Fatalf("second request should use the advanced cursor, got %v", froms)
	}
}

func TestIterateCursorNeverMovesBackward(t *testing.T) {
	api := newStub(0, `{"homeworks":[],"current_date":1600000000}`)
	p := newPoller(t, serve(t, api), &recordingSender{})

	p.Iterate(context.Background())
	if p.Cursor() != startUnix {
		t.Fatalf("Cursor = %d, want unchanged %d", p.Cursor(), startUnix)
	}
}

func TestIterateTransientFailuresStayQuiet(t *testing.T) {
	tests := []struct {
		name     string
		endpoint func(t *testing.T) string
	}{
		{name: "not json", endpoint: func(t *testing.T) string {
			return serve(t, newStub(0, `definitely not json`))
		}},
		{name: "transport", endpoint: func(t *testing.T) string {
			srv := httptest.NewServer(http.NotFoundHandler())
			srv.Close()
			return srv.URL
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			send := &recordingSender{}
			p := newPoller(t, tt.endpoint(t), send)

			c := p.Iterate(context.Background())
			if !c.Skipped || !practicum.IsTransient(c.Err) {
				t.Fatalf("expected skipped transient cycle, got %+v", c)
			}
			if n := len(send.messages()); n != 0 {
				t.Fatalf("expected no messages, got %d", n)
			}
			if p.Cursor() != startUnix {
				t.Fatalf("cursor moved on transient failure: %d", p.Cursor())
			}
		})
	}
}

func TestIterateReportsHardFaults(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "unexpected status", status: http.StatusServiceUnavailable, body: `{}`, want: "503"},
		{name: "missing current_date", body: `{"homeworks":[]}`, want: "current_date"},
		{name: "unknown status", body: `{"homeworks":[{"homework_name":"hw","status":"lost"}],"current_date":1700000000}`, want: "status"},
		{name: "missing name", body: `{"homeworks":[{"status":"approved"}],"current_date":1700000000}`, want: "homework_name"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			send := &recordingSender{}
			p := newPoller(t, serve(t, newStub(tt.status, tt.body)), send)

			c := p.Iterate(context.Background())
			if c.Err == nil || c.Skipped {
				t.Fatalf("expected reported fault, got %+v", c)
			}
			msgs := send.messages()
			if len(msgs) != 1 || !strings.HasPrefix(msgs[0], failurePrefix) || !strings.Contains(msgs[0], tt.want) {
				t.Fatalf("unexpected fault report: %v", msgs)
			}
			if p.Cursor() != startUnix {
				t.Fatalf("cursor moved on fault: %d", p.Cursor())
			}
		})
	}
}

func TestIterateDeliveryFailureIsNotReported(t *testing.T) {
	api := newStub(0, `{"homeworks":[{"homework_name":"hw1","status":"rejected"}],"current_date":1700000000}`)
	calls := 0
	send := senderFunc(func(ctx context.Context, text string) error {
		calls++
		return &notifier.DeliveryError{Err: errors.New("chat unreachable")}
	})
	p := newPoller(t, serve(t, api), send)

	c := p.Iterate(context.Background())
	var de *notifier.DeliveryError
	if !errors.As(c.Err, &de) {
		t.Fatalf("expected DeliveryError, got %v", c.Err)
	}
	if calls != 1 {
		t.Fatalf("delivery failure must not trigger another send, got %d sends", calls)
	}
	if p.Cursor() != startUnix {
		t.Fatalf("cursor should stay for redelivery, got %d", p.Cursor())
	}
}

func TestIterateResendsUnchangedStatus(t *testing.T) {
	api := newStub(0, `{"homeworks":[{"homework_name":"hw1","status":"reviewing"}],"current_date":1700000000}`)
	send := &recordingSender{}
	p := newPoller(t, serve(t, api), send)

	p.Iterate(context.Background())
	p.Iterate(context.Background())
	msgs := send.messages()
	if len(msgs) != 2 || msgs[0] != msgs[1] {
		t.Fatalf("expected the same verdict twice, got %v", msgs)
	}
}

type senderFunc func(ctx context.Context, text string) error

func (f senderFunc) Send(ctx context.Context, text string) error { return f(ctx, text) }

type fetcherFunc func(ctx context.Context, from int64) (any, error)

func (f fetcherFunc) FetchHomeworkStatuses(ctx context.Context, from int64) (any, error) {
	return f(ctx, from)
}

func TestIterateRecoversPanics(t *testing.T) {
	send := &recordingSender{}
	fetch := fetcherFunc(func(ctx context.Context, from int64) (any, error) {
		panic("decoder exploded")
	})
	p := New(fetch, send, time.Minute, logx.Nop())

	c := p.Iterate(context.Background())
	if c.Err == nil || !strings.Contains(c.Err.Error(), "decoder exploded") {
		t.Fatalf("expected panic recorded as error, got %v", c.Err)
	}
	msgs := send.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "decoder exploded") {
		t.Fatalf("expected panic report, got %v", msgs)
	}
}

func TestIteratePanickingSenderStaysContained(t *testing.T) {
	api := newStub(0, `{"homeworks":[{"homework_name":"hw1","status":"approved"}],"current_date":1700000000}`)
	sends := 0
	send := senderFunc(func(ctx context.Context, text string) error {
		sends++
		panic("sender exploded")
	})
	p := newPoller(t, serve(t, api), send)

	c := p.Iterate(context.Background())
	if c.Err == nil || !strings.Contains(c.Err.Error(), "sender exploded") {
		t.Fatalf("expected recovered panic in cycle, got %v", c.Err)
	}
	if sends != 2 {
		t.Fatalf("sends = %d, want verdict attempt plus one failure report", sends)
	}
	if p.Cursor() != startUnix {
		t.Fatalf("cursor moved on panic: %d", p.Cursor())
	}
}

func TestRunSleepsOncePerIteration(t *testing.T) {
	fetches := 0
	fetch := fetcherFunc(func(ctx context.Context, from int64) (any, error) {
		fetches++
		switch fetches {
		case 1:
			return nil, &practicum.FetchError{Kind: practicum.ErrTransport, Err: errors.New("connection refused")}
		case 2:
			return nil, &practicum.FetchError{Kind: practicum.ErrUnexpectedStatus, StatusCode: 500}
		default:
			return map[string]any{"homeworks": []any{}, "current_date": int64(1700000000)}, nil
		}
	})
	send := &recordingSender{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var sleeps []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	var cycles []Cycle
	p := New(fetch, send, 42*time.Second, logx.Nop(),
		WithClock(func() time.Time { return time.Unix(startUnix, 0) }),
		WithSleep(sleep),
		WithBus(bus),
		WithCycleHook(func(c Cycle) { cycles = append(cycles, c) }),
	)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fetches != 3 || len(sleeps) != 3 || len(cycles) != 3 {
		t.Fatalf("fetches=%d sleeps=%d cycles=%d, want 3 each", fetches, len(sleeps), len(cycles))
	}
	for _, d := range sleeps {
		if d != 42*time.Second {
			t.Fatalf("sleep = %v, want retry period", d)
		}
	}
	if msgs := send.messages(); len(msgs) != 1 || !strings.Contains(msgs[0], "500") {
		t.Fatalf("only the hard fault should be reported, got %v", msgs)
	}
	if p.Cursor() != 1700000000 {
		t.Fatalf("Cursor = %d", p.Cursor())
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 cycle events, got %d", len(events))
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	fetch := fetcherFunc(func(ctx context.Context, from int64) (any, error) {
		t.Fatal("fetch must not run after cancel")
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(fetch, &recordingSender{}, time.Minute, logx.Nop())
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestSetRetryPeriodDefaults(t *testing.T) {
	p := New(fetcherFunc(nil), &recordingSender{}, 0, logx.Nop(), WithStartCursor(5))
	if p.RetryPeriod() != DefaultRetryPeriod {
		t.Fatalf("RetryPeriod = %v, want default", p.RetryPeriod())
	}
	p.SetRetryPeriod(time.Second)
	if p.RetryPeriod() != time.Second {
		t.Fatalf("RetryPeriod = %v", p.RetryPeriod())
	}
	if p.Cursor() != 5 {
		t.Fatalf("Cursor = %d, want start cursor", p.Cursor())
	}
}
