package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/telebot.v3"

	"semaphore/reports/internal/workflow"
)

type fakeSender struct {
	to   telebot.Recipient
	what interface{}
	err  error
}

func (f *fakeSender) Send(to telebot.Recipient, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	f.to = to
	f.what = what
	return &telebot.Message{}, f.err
}

func TestTelegramNotifySendsToMappedChat(t *testing.T) {
	sender := &fakeSender{}
	notifier := NewTelegram(sender, map[string]int64{"aaaa": 42})

	if err := notifier.Notify(context.Background(), "AAAA", "hello"); err != nil {
		t.Fatalf("notify error: %v", err)
	}
	if sender.to.Recipient() != "42" || sender.what != "hello" {
		t.Fatalf("unexpected send to=%s what=%v", sender.to.Recipient(), sender.what)
	}
}

func TestTelegramNotifyWithoutChatID(t *testing.T) {
	notifier := NewTelegram(&fakeSender{}, map[string]int64{})
	if err := notifier.Notify(context.Background(), "unknown", "hello"); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
}

func TestNewWithoutTokenLogs(t *testing.T) {
	notifier, err := New("", nil)
	if err != nil {
		t.Fatalf("new error: %v", err)
	}
	if _, ok := notifier.(LogNotifier); !ok {
		t.Fatalf("expected log notifier, got %T", notifier)
	}
	if err := notifier.Notify(context.Background(), "user", "message"); err != nil {
		t.Fatalf("log notify error: %v", err)
	}
}

func TestMessages(t *testing.T) {
	state := workflow.State{AwaitingRole: workflow.RoleTimeTeacher}
	if msg := ReviewRequest("r1", "Kim", state); !strings.Contains(msg, "time-teacher") || !strings.Contains(msg, "Kim") {
		t.Fatalf("unexpected review request: %s", msg)
	}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	msg := Reminder("r1", workflow.State{AwaitingRole: workflow.RoleTeacher, Rejected: true}, now.Add(-50*time.Hour), now)
	if !strings.Contains(msg, "rejected") || !strings.Contains(msg, "50h0m0s") {
		t.Fatalf("unexpected reminder: %s", msg)
	}
}
