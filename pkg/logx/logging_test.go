package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"homeworkbot/internal/transport"
)

type chatSpy struct{ got chan string }

func (c *chatSpy) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	c.got <- text
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func TestCriticalDoesNotExit(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Critical("tokens missing", Strings("missing", []string{"TELEGRAM_TOKEN"}), Err(errors.New("boom")))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["level"] != "fatal" || line["comp"] != "test" || line["err"] != "boom" {
		t.Fatalf("unexpected line: %v", line)
	}
}

func TestNopAndZeroLoggerAreSafe(t *testing.T) {
	t.Parallel()
	Nop().Error("dropped")
	var zero Logger
	zero.With(String("k", "v")).Critical("dropped")
	if !zero.IsZero() || Nop().IsZero() {
		t.Fatal("IsZero mismatch")
	}
}

func TestChatSinkMirrorsErrorsOnly(t *testing.T) {
	spy := &chatSpy{got: make(chan string, 4)}
	svc, log := New(Config{Level: "debug", Chat: ChatConfig{Enabled: true, MinLevel: "error", RatePerSec: 10}}, spy)
	defer svc.Close()
	svc.SetChatTarget(transport.ChatTarget{ChatID: 42})

	log.Info("routine")
	log.Error("api response rejected", String("field", "homeworks"))

	select {
	case msg := <-spy.got:
		if !strings.HasPrefix(msg, "[ERROR] api response rejected") || !strings.Contains(msg, "field=homeworks") {
			t.Fatalf("unexpected chat line %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error line not mirrored")
	}
	select {
	case msg := <-spy.got:
		t.Fatalf("unexpected extra message %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	got := formatChatLine([]byte(`{"level":"warn","time":"x","caller":"a.go:1","message":"slow","b":2,"a":"x"}`))
	want := "[WARN] slow\n- a=x\n- b=2"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := formatChatLine([]byte("not json\n")); got != "not json" {
		t.Fatalf("raw fallback = %q", got)
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	for _, lv := range []string{"", "debug", "INFO", "warning", "critical"} {
		if !ValidLevel(lv) {
			t.Fatalf("%q should be valid", lv)
		}
	}
	if ValidLevel("verbose") {
		t.Fatal("verbose should be invalid")
	}
}
