package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrProfileNotFound indicates no profile matched the provider customer id,
// neither directly nor via the primary-id fallback.
var ErrProfileNotFound = errors.New("profile not found")

// Repository provides typed access to the managed Postgres database.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
}

// New opens a new connection pool to the database with the desired search_path.
func New(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &Repository{
		pool:   pool,
		logger: logger.With("component", "repo"),
		schema: schema,
	}

	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

// Close releases the connection pool.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx executes fn within a database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// RunMigrations applies schema migrations on the connected database.
func (r *Repository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return ApplyMigrations(ctx, r.pool, filesystem)
}

// resolveProfileTx finds the profile for a provider customer id. If no row
// carries that asaas_customer_id, it falls back to matching the primary id
// and backfills asaas_customer_id so future lookups hit the first query.
func (r *Repository) resolveProfileTx(ctx context.Context, tx pgx.Tx, customerID string) (string, error) {
	var profileID string
	err := tx.QueryRow(ctx,
		`SELECT id FROM profiles WHERE asaas_customer_id = $1`, customerID,
	).Scan(&profileID)
	if err == nil {
		return profileID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("lookup profile by customer id: %w", err)
	}

	err = tx.QueryRow(ctx, `
UPDATE profiles
SET asaas_customer_id = $1, updated_at = NOW()
WHERE id = $1
RETURNING id;
`, customerID).Scan(&profileID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrProfileNotFound, customerID)
	}
	if err != nil {
		return "", fmt.Errorf("backfill profile customer id: %w", err)
	}
	return profileID, nil
}

// setSubscriptionActiveTx flips the subscription flag for the profile owning
// the provider customer id.
func (r *Repository) setSubscriptionActiveTx(ctx context.Context, tx pgx.Tx, customerID string, active bool) error {
	profileID, err := r.resolveProfileTx(ctx, tx, customerID)
	if err != nil {
		return err
	}

	ct, err := tx.Exec(ctx, `
UPDATE profiles
SET subscription_active = $2, updated_at = NOW()
WHERE id = $1;
`, profileID, active)
	if err != nil {
		return fmt.Errorf("update subscription flag: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, customerID)
	}
	return nil
}
