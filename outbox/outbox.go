// Package outbox implements the write side of the transactional outbox.
// Rows are drained by infrastructure outside this repository.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type Queue struct{}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue inserts one outbox row inside the active transaction.
func (q *Queue) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if topic == "" {
		return fmt.Errorf("outbox: empty topic")
	}
	if payload == nil {
		payload = map[string]any{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}

	const query = `
        INSERT INTO outbox (topic, payload)
        VALUES ($1, $2::jsonb)
    `
	if _, err := tx.Exec(ctx, query, topic, body); err != nil {
		return fmt.Errorf("outbox: insert message: %w", err)
	}

	return nil
}
