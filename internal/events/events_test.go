package events

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBrokerDeliversToGroupSubscribers(t *testing.T) {
	broker := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	groupA, err := broker.Subscribe(ctx, "group-a")
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}
	groupB, err := broker.Subscribe(ctx, "group-b")
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	if err := broker.Publish(ctx, Change{GroupID: "group-a", Entity: "report", ID: "r1", Action: "updated"}); err != nil {
		t.Fatalf("publish error: %v", err)
	}

	select {
	case change := <-groupA:
		if change.Entity != "report" || change.ID != "r1" {
			t.Fatalf("unexpected change: %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected change for group-a")
	}

	select {
	case change := <-groupB:
		t.Fatalf("group-b should not receive group-a changes, got %+v", change)
	default:
	}
}

func TestMemoryBrokerClosesOnCancel(t *testing.T) {
	broker := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := broker.Subscribe(ctx, "group-a")
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected channel close after cancel")
	}

	if err := broker.Publish(context.Background(), Change{GroupID: "group-a"}); err != nil {
		t.Fatalf("publish after unsubscribe should succeed, got %v", err)
	}
	broker.mu.Lock()
	defer broker.mu.Unlock()
	if len(broker.subs) != 0 {
		t.Fatalf("expected subscriptions to be removed")
	}
}

func TestMemoryBrokerDoesNotBlockOnSlowSubscriber(t *testing.T) {
	broker := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := broker.Subscribe(ctx, "group-a"); err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			_ = broker.Publish(ctx, Change{GroupID: "group-a"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
}

func TestNewBrokerWithoutRedisIsInMemory(t *testing.T) {
	if _, ok := NewBroker(nil).(*MemoryBroker); !ok {
		t.Fatalf("expected memory broker without redis client")
	}
	if Channel("g1") != "reports:changes:g1" {
		t.Fatalf("unexpected channel name %s", Channel("g1"))
	}
}
