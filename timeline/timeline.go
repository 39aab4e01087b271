// Package timeline records immutable business events for an agreement in
// the same transaction as the state change that produced them.
package timeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Append inserts one event row inside the active transaction.
func (w *Writer) Append(ctx context.Context, tx pgx.Tx, agreementID int64, eventType string, payload map[string]any) error {
	if eventType == "" {
		return fmt.Errorf("timeline: empty event type")
	}
	if payload == nil {
		payload = map[string]any{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("timeline: marshal payload: %w", err)
	}

	const query = `
        INSERT INTO timeline_events (agreement_request_id, type, payload)
        VALUES ($1, $2, $3::jsonb)
    `
	if _, err := tx.Exec(ctx, query, agreementID, eventType, body); err != nil {
		return fmt.Errorf("timeline: insert event: %w", err)
	}

	return nil
}
