// Package outbox implements the transactional outbox: events are written in
// the same transaction as the rows they describe and drained to Kafka by a
// background worker.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one pending outbox entry.
type Message struct {
	ID          uuid.UUID
	Topic       string
	Key         string
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// NewMessage marshals payload into a message for topic, keyed by key.
func NewMessage(topic, key string, payload any, now time.Time) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return Message{
		ID:        uuid.New(),
		Topic:     topic,
		Key:       key,
		Payload:   raw,
		CreatedAt: now,
	}, nil
}

// Store persists outbox messages.
type Store interface {
	Append(ctx context.Context, msg Message) error
	// FetchUnpublished claims up to limit unpublished messages, oldest first.
	// Callers should hold a transaction so the claim lasts until MarkPublished.
	FetchUnpublished(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// TxRunner scopes a claim-publish-mark cycle to one transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher delivers messages to the broker. Publish returns only after every
// message has been acknowledged or an error occurred.
type Publisher interface {
	Publish(ctx context.Context, msgs []Message) error
}
