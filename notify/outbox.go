// Package notify implements the transactional outbox: state transitions
// enqueue notification messages inside their own transaction, and a relay
// drains them afterwards. A failed notification can never affect the
// transition that produced it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Message mirrors the outbox table.
type Message struct {
	ID          string
	Topic       string
	Payload     []byte
	Status      string
	Attempts    int
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusDead      = "dead"
)

// EnqueueTx appends an outbox message inside the caller's transaction.
func EnqueueTx(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal outbox payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, body); err != nil {
		return fmt.Errorf("notify: enqueue outbox: %w", err)
	}
	return nil
}
