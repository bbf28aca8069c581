// Package notify delivers ticket lifecycle notifications. The Redis backend
// publishes JSON messages for a separate worker to fan out (email, chat); the
// log backend is the fallback for local development.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"equiploan-api/internal/booking"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel notification workers subscribe to.
const DefaultChannel = "equiploan.notifications"

// Message is the wire format published to Redis.
type Message struct {
	Event     booking.Event `json:"event"`
	UserIDs   []int64       `json:"user_ids"`
	Payload   interface{}   `json:"payload,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// RedisNotifier publishes notification messages to a Redis channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier creates a RedisNotifier. An empty channel uses DefaultChannel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Notify implements booking.Notifier.
func (n *RedisNotifier) Notify(ctx context.Context, userIDs []int64, event booking.Event, payload interface{}) error {
	msg := Message{
		Event:     event,
		UserIDs:   userIDs,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, data).Err()
}

// LogNotifier writes notifications to the standard logger.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify implements booking.Notifier.
func (n *LogNotifier) Notify(_ context.Context, userIDs []int64, event booking.Event, _ interface{}) error {
	log.Printf("notify: event=%s users=%v", event, userIDs)
	return nil
}
