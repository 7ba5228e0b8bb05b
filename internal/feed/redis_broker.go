package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisBroker fans events out over Redis pub/sub so every API instance sees
// writes made by its peers.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client, prefix: "feed:"}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan Event, func()) {
	pubsub := b.client.Subscribe(ctx, b.prefix+channel)
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("feed: drop undecodable event on %s: %v", channel, err)
				continue
			}
			select {
			case events <- event:
			default:
				// slow subscriber, drop rather than block the reader loop
			}
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}
	return events, cancel
}
