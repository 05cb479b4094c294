package repo

import (
	"context"
	"io/fs"
	"time"
)

// Store defines the interface for data persistence. Multi-write operations
// are atomic: the pgx implementation runs each inside one transaction.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Webhook audit
	InsertWebhookEvent(ctx context.Context, evt WebhookEvent) (id string, duplicate bool, err error)
	MarkWebhookProcessed(ctx context.Context, id string, success bool, result string) error

	// Billing
	ConfirmPayment(ctx context.Context, p Payment, activateSubscription bool) error
	CreateSubscription(ctx context.Context, s Subscription) error
	RecordSubscriptionPayment(ctx context.Context, p Payment, nextBillingDate *time.Time) error
	RecordFailedPayment(ctx context.Context, p Payment, deactivateProfile bool) error
	CloseSubscription(ctx context.Context, provider, externalID, status, customerID string) error

	// Messaging instances
	UpsertMessagingInstance(ctx context.Context, inst MessagingInstance) error
	UpdateMessagingInstanceStatus(ctx context.Context, token, status string, profileName *string) error
	GetMessagingInstance(ctx context.Context, name string) (*MessagingInstance, error)
}
