package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

func (r *Repository) insertPaymentTx(ctx context.Context, tx pgx.Tx, p Payment) error {
	const q = `
INSERT INTO payment_history (provider, external_id, customer_id, amount, net_amount,
    payment_method, description, status, payment_date, due_date, subscription_id, invoice_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	_, err := tx.Exec(ctx, q,
		p.Provider,
		p.ExternalID,
		p.CustomerID,
		p.Amount,
		p.NetAmount,
		p.PaymentMethod,
		p.Description,
		p.Status,
		p.PaymentDate,
		p.DueDate,
		p.SubscriptionID,
		p.InvoiceURL,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// ConfirmPayment stores a confirmed payment and, when it belongs to a
// subscription, activates the owning profile. Both writes commit or roll
// back together.
func (r *Repository) ConfirmPayment(ctx context.Context, p Payment, activateSubscription bool) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if err := r.insertPaymentTx(ctx, tx, p); err != nil {
			return err
		}
		if activateSubscription {
			return r.setSubscriptionActiveTx(ctx, tx, p.CustomerID, true)
		}
		return nil
	})
}

// CreateSubscription stores a new subscription and activates the owning
// profile in the same transaction.
func (r *Repository) CreateSubscription(ctx context.Context, s Subscription) error {
	const q = `
INSERT INTO subscriptions (provider, external_id, customer_id, plan_value, billing_type,
    cycle, description, status, next_billing_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (provider, external_id) DO UPDATE SET
    customer_id = EXCLUDED.customer_id,
    plan_value = EXCLUDED.plan_value,
    billing_type = EXCLUDED.billing_type,
    cycle = EXCLUDED.cycle,
    description = EXCLUDED.description,
    status = EXCLUDED.status,
    next_billing_date = EXCLUDED.next_billing_date,
    updated_at = NOW();
`
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			s.Provider,
			s.ExternalID,
			s.CustomerID,
			s.PlanValue,
			s.BillingType,
			s.Cycle,
			s.Description,
			s.Status,
			s.NextBillingDate,
		)
		if err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}
		return r.setSubscriptionActiveTx(ctx, tx, s.CustomerID, true)
	})
}

// RecordSubscriptionPayment stores a pending subscription charge and rolls
// the subscription's next billing date forward.
func (r *Repository) RecordSubscriptionPayment(ctx context.Context, p Payment, nextBillingDate *time.Time) error {
	if p.SubscriptionID == nil {
		return fmt.Errorf("subscription payment without subscription id: %s", p.ExternalID)
	}
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if err := r.insertPaymentTx(ctx, tx, p); err != nil {
			return err
		}
		if nextBillingDate == nil {
			return nil
		}
		ct, err := tx.Exec(ctx, `
UPDATE subscriptions
SET next_billing_date = $3, updated_at = NOW()
WHERE provider = $1 AND external_id = $2;
`, p.Provider, *p.SubscriptionID, *nextBillingDate)
		if err != nil {
			return fmt.Errorf("update next billing date: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("subscription not found: %s", *p.SubscriptionID)
		}
		return nil
	})
}

// RecordFailedPayment stores a failed subscription charge. The profile flip
// is policy-driven: callers pass deactivateProfile per configuration.
func (r *Repository) RecordFailedPayment(ctx context.Context, p Payment, deactivateProfile bool) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if err := r.insertPaymentTx(ctx, tx, p); err != nil {
			return err
		}
		if deactivateProfile {
			return r.setSubscriptionActiveTx(ctx, tx, p.CustomerID, false)
		}
		return nil
	})
}

// CloseSubscription marks a subscription cancelled or expired and deactivates
// the owning profile in the same transaction.
func (r *Repository) CloseSubscription(ctx context.Context, provider, externalID, status, customerID string) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
UPDATE subscriptions
SET status = $3, updated_at = NOW()
WHERE provider = $1 AND external_id = $2;
`, provider, externalID, status)
		if err != nil {
			return fmt.Errorf("update subscription status: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("subscription not found: %s", externalID)
		}
		return r.setSubscriptionActiveTx(ctx, tx, customerID, false)
	})
}
