// Package notify delivers lending events to employees. Delivery is fire and
// forget: callers log failures and carry on.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel the chat transport listens on.
const DefaultChannel = "keys:notifications"

// Kind classifies a message.
type Kind string

const (
	KindRequest  Kind = "request"
	KindApproved Kind = "approved"
	KindDenied   Kind = "denied"
	KindExpired  Kind = "expired"
	KindReturned Kind = "returned"
	KindOverdue  Kind = "overdue"
)

// Message is a notification for one employee.
type Message struct {
	Kind      Kind   `json:"kind"`
	KeyName   string `json:"key_name"`
	RequestID string `json:"request_id,omitempty"`
	Text      string `json:"text"`
}

// Notifier sends a message to the employee with the given chat identity.
type Notifier interface {
	Notify(ctx context.Context, recipientID string, msg Message) error
}

// LogNotifier writes messages to the process log.
type LogNotifier struct{}

// Notify logs the message.
func (LogNotifier) Notify(ctx context.Context, recipientID string, msg Message) error {
	log.Printf("[Notify] -> %s [%s] %s: %s", recipientID, msg.Kind, msg.KeyName, msg.Text)
	return nil
}

// Envelope is the JSON document published for the chat transport.
type Envelope struct {
	RecipientID string    `json:"recipient_id"`
	SentAt      time.Time `json:"sent_at"`
	Message
}

// RedisNotifier publishes messages on a Redis channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier creates a notifier publishing to channel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Notify publishes the message.
func (n *RedisNotifier) Notify(ctx context.Context, recipientID string, msg Message) error {
	data, err := json.Marshal(Envelope{
		RecipientID: recipientID,
		SentAt:      time.Now().UTC(),
		Message:     msg,
	})
	if err != nil {
		return err
	}

	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification for %s: %w", recipientID, err)
	}
	return nil
}

// MultiNotifier sends each message through every notifier.
type MultiNotifier []Notifier

// Notify delivers to all notifiers and joins their errors.
func (m MultiNotifier) Notify(ctx context.Context, recipientID string, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, recipientID, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
