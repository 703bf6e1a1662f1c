package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher forwards events to a Redis pub/sub channel so other
// processes can react to ticket activity.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisPublisher builds a publisher for channel.
func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Handle publishes event as JSON. It matches EventHandler.
func (p *RedisPublisher) Handle(ctx context.Context, event Event) error {
	if p == nil || p.client == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.client.Publish(ctx, p.channel, body).Err()
}

// Register subscribes the publisher to every event type.
func (p *RedisPublisher) Register(dispatcher Dispatcher) {
	for _, eventType := range []EventType{EventTicketCreated, EventTicketUpdated, EventCommentAdded} {
		dispatcher.Subscribe(eventType, p.Handle)
	}
}
