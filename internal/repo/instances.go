package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrInstanceNotFound indicates no messaging instance matched the name.
var ErrInstanceNotFound = errors.New("messaging instance not found")

// UpsertMessagingInstance stores or refreshes a messaging instance keyed by
// its BSP token.
func (r *Repository) UpsertMessagingInstance(ctx context.Context, inst MessagingInstance) error {
	const q = `
INSERT INTO messaging_instances (token, name, profile_id, status, profile_name, updated_at)
VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'disconnected'), $5, NOW())
ON CONFLICT (token) DO UPDATE SET
    name = EXCLUDED.name,
    profile_id = COALESCE(EXCLUDED.profile_id, messaging_instances.profile_id),
    status = EXCLUDED.status,
    profile_name = COALESCE(EXCLUDED.profile_name, messaging_instances.profile_name),
    updated_at = NOW();
`
	_, err := r.pool.Exec(ctx, q, inst.Token, inst.Name, inst.ProfileID, inst.Status, inst.ProfileName)
	if err != nil {
		return fmt.Errorf("upsert messaging instance: %w", err)
	}
	return nil
}

// UpdateMessagingInstanceStatus records a status transition observed by the
// poller.
func (r *Repository) UpdateMessagingInstanceStatus(ctx context.Context, token, status string, profileName *string) error {
	const q = `
UPDATE messaging_instances
SET status = $2, profile_name = COALESCE($3, profile_name), updated_at = NOW()
WHERE token = $1;
`
	ct, err := r.pool.Exec(ctx, q, token, status, profileName)
	if err != nil {
		return fmt.Errorf("update messaging instance status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: token", ErrInstanceNotFound)
	}
	return nil
}

// GetMessagingInstance looks up a messaging instance by name.
func (r *Repository) GetMessagingInstance(ctx context.Context, name string) (*MessagingInstance, error) {
	const q = `
SELECT token, name, profile_id, status, profile_name, created_at, updated_at
FROM messaging_instances
WHERE name = $1;
`
	var inst MessagingInstance
	err := r.pool.QueryRow(ctx, q, name).Scan(
		&inst.Token,
		&inst.Name,
		&inst.ProfileID,
		&inst.Status,
		&inst.ProfileName,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get messaging instance: %w", err)
	}
	return &inst, nil
}
