// Package events fans out change notifications per group. Subscribers only
// learn that something changed and re-fetch; no payload is authoritative.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"semaphore/reports/internal/logger"
)

const channelPrefix = "reports:changes:"

const subscriberBuffer = 16

type Change struct {
	GroupID string    `json:"groupId"`
	Entity  string    `json:"entity"`
	ID      string    `json:"id"`
	Action  string    `json:"action"`
	At      time.Time `json:"at"`
}

type Broker interface {
	Publish(ctx context.Context, change Change) error
	// Subscribe returns a channel of changes for groupID. The channel is closed
	// when ctx is done.
	Subscribe(ctx context.Context, groupID string) (<-chan Change, error)
}

func Channel(groupID string) string {
	return channelPrefix + groupID
}

// NewBroker returns a redis broker when a client is configured and an
// in-process broker otherwise.
func NewBroker(client *redis.Client) Broker {
	if client == nil {
		return NewMemoryBroker()
	}
	return &RedisBroker{client: client}
}

type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan Change]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[string]map[chan Change]struct{}{}}
}

func (b *MemoryBroker) Publish(_ context.Context, change Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[change.GroupID] {
		select {
		case ch <- change:
		default:
			// Slow subscriber; it still has pending invalidations queued.
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, groupID string) (<-chan Change, error) {
	ch := make(chan Change, subscriberBuffer)
	b.mu.Lock()
	if b.subs[groupID] == nil {
		b.subs[groupID] = map[chan Change]struct{}{}
	}
	b.subs[groupID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[groupID], ch)
		if len(b.subs[groupID]) == 0 {
			delete(b.subs, groupID)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

type RedisBroker struct {
	client *redis.Client
}

func (b *RedisBroker) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Channel(change.GroupID), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, groupID string) (<-chan Change, error) {
	pubsub := b.client.Subscribe(ctx, Channel(groupID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan Change, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					logger.Log.WithError(err).WithField("channel", msg.Channel).Warn("dropping malformed change event")
					continue
				}
				select {
				case out <- change:
				default:
				}
			}
		}
	}()
	return out, nil
}
