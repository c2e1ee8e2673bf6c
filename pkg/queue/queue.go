package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/jmunro/archivist/pkg/blob"
)

// ErrEmpty is returned by Receive when no message arrived within the wait
// window. Callers just poll again.
var ErrEmpty = errors.New("queue empty")

// Message points at one blob record awaiting indexing. Either ObjectKey or
// the Type/ID pair must be set; both shapes appear on the wire.
type Message struct {
	// MessageID identifies this delivery for logging. Not used for
	// deduplication - idempotency lives in the index upsert.
	MessageID string `json:"messageId,omitempty"`

	Type      string `json:"type,omitempty"`
	ID        string `json:"id,omitempty"`
	R2Key     string `json:"r2Key,omitempty"`
	ObjectKey string `json:"objectKey,omitempty"`
}

// Key resolves the blob object key from whichever shape the producer used.
func (m *Message) Key() (string, error) {
	if m.ObjectKey != "" {
		return m.ObjectKey, nil
	}
	if m.R2Key != "" {
		return m.R2Key, nil
	}
	if m.Type != "" && m.ID != "" {
		return blob.Key(m.Type, m.ID), nil
	}
	return "", fmt.Errorf("message carries neither object key nor type+id")
}

// Category resolves the content category, falling back to the key prefix.
func (m *Message) Category() (string, error) {
	if m.Type != "" {
		return m.Type, nil
	}
	key, err := m.Key()
	if err != nil {
		return "", err
	}
	category, _, err := blob.ParseKey(key)
	return category, err
}

// Delivery is one received message plus the opaque payload needed to ack it.
type Delivery struct {
	Message Message
	raw     string
}

// Queue is a Redis-list-backed work queue with a pending list for
// in-flight deliveries and a dead-letter list for terminal failures.
type Queue struct {
	client *redis.Client
	name   string
}

// New creates a queue named name on an existing Redis client.
func New(client *redis.Client, name string) *Queue {
	return &Queue{client: client, name: name}
}

// Connect dials Redis from a URL and returns a queue handle.
func Connect(ctx context.Context, url, name string) (*Queue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 10 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(client, name), nil
}

// Client exposes the underlying Redis client for health checks.
func (q *Queue) Client() *redis.Client {
	return q.client
}

func (q *Queue) pendingList() string {
	return q.name + ":pending"
}

func (q *Queue) deadList() string {
	return q.name + ":dead"
}

// Publish enqueues a single message.
func (q *Queue) Publish(ctx context.Context, msg Message) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", q.name, err)
	}
	return nil
}

// PublishBatch enqueues all messages in one pipeline round trip. Used by
// the bulk trigger after a complete enumeration; the batch is only sent
// once every message is known, so a listing failure publishes nothing.
func (q *Queue) PublishBatch(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	payloads := make([]interface{}, 0, len(msgs))
	for _, msg := range msgs {
		if msg.MessageID == "" {
			msg.MessageID = uuid.NewString()
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		payloads = append(payloads, payload)
	}
	if err := q.client.LPush(ctx, q.name, payloads...).Err(); err != nil {
		return fmt.Errorf("failed to publish batch to %s: %w", q.name, err)
	}
	return nil
}

// Receive blocks up to wait for a message, moving it onto the pending list
// so it survives a consumer crash. Returns ErrEmpty on timeout.
func (q *Queue) Receive(ctx context.Context, wait time.Duration) (*Delivery, error) {
	raw, err := q.client.BRPopLPush(ctx, q.name, q.pendingList(), wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to receive from %s: %w", q.name, err)
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// Unparseable payloads can never succeed; park them immediately.
		q.client.LRem(ctx, q.pendingList(), 1, raw)
		q.client.LPush(ctx, q.deadList(), raw)
		return nil, fmt.Errorf("failed to decode message, moved to dead letter: %w", err)
	}

	return &Delivery{Message: msg, raw: raw}, nil
}

// Ack removes a processed delivery from the pending list.
func (q *Queue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.pendingList(), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", d.Message.MessageID, err)
	}
	return nil
}

// Nack returns a failed delivery to the platform. Retryable failures go
// back on the main list for redelivery; terminal failures go to the
// dead-letter list and are never redelivered.
func (q *Queue) Nack(ctx context.Context, d *Delivery, retryable bool) error {
	target := q.deadList()
	if retryable {
		target = q.name
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.pendingList(), 1, d.raw)
	pipe.LPush(ctx, target, d.raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to nack message %s: %w", d.Message.MessageID, err)
	}
	return nil
}

// Depth reports the number of messages waiting on the main list.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read depth of %s: %w", q.name, err)
	}
	return depth, nil
}

// DeadDepth reports the number of dead-lettered messages.
func (q *Queue) DeadDepth(ctx context.Context) (int64, error) {
	depth, err := q.client.LLen(ctx, q.deadList()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read dead depth of %s: %w", q.name, err)
	}
	return depth, nil
}
