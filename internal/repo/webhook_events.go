package repo

import (
	"context"
	"fmt"
)

// InsertWebhookEvent records the raw provider notification before dispatch.
// The (provider, event_id) pair is the idempotency key: a redelivery of an
// already recorded event inserts nothing and reports duplicate=true.
func (r *Repository) InsertWebhookEvent(ctx context.Context, evt WebhookEvent) (string, bool, error) {
	const q = `
INSERT INTO webhook_events (provider, event_id, event_type, payload, processed)
VALUES ($1, $2, $3, $4, FALSE)
ON CONFLICT (provider, event_id) DO NOTHING
RETURNING id;
`
	rows, err := r.pool.Query(ctx, q, evt.Provider, evt.EventID, evt.EventType, string(evt.Payload))
	if err != nil {
		return "", false, fmt.Errorf("insert webhook event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", false, fmt.Errorf("insert webhook event: %w", err)
		}
		return "", true, nil
	}

	var id string
	if err := rows.Scan(&id); err != nil {
		return "", false, fmt.Errorf("scan webhook event id: %w", err)
	}
	return id, false, nil
}

// MarkWebhookProcessed records the dispatch outcome on the audit row.
func (r *Repository) MarkWebhookProcessed(ctx context.Context, id string, success bool, result string) error {
	const q = `
UPDATE webhook_events
SET processed = $2, processed_at = NOW(), processing_result = $3
WHERE id = $1;
`
	ct, err := r.pool.Exec(ctx, q, id, success, result)
	if err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("webhook event not found: %s", id)
	}
	return nil
}
