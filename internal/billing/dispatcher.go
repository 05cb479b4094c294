package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/metrics"
	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/repo"
)

// Store is the persistence surface the dispatcher needs. Multi-write methods
// must be atomic; *repo.Repository satisfies this with one transaction each.
type Store interface {
	InsertWebhookEvent(ctx context.Context, evt repo.WebhookEvent) (id string, duplicate bool, err error)
	MarkWebhookProcessed(ctx context.Context, id string, success bool, result string) error
	ConfirmPayment(ctx context.Context, p repo.Payment, activateSubscription bool) error
	CreateSubscription(ctx context.Context, s repo.Subscription) error
	RecordSubscriptionPayment(ctx context.Context, p repo.Payment, nextBillingDate *time.Time) error
	RecordFailedPayment(ctx context.Context, p repo.Payment, deactivateProfile bool) error
	CloseSubscription(ctx context.Context, provider, externalID, status, customerID string) error
}

// Result is the outcome reported back to the provider.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Config holds dispatcher policy knobs.
type Config struct {
	// DeactivateOnPaymentFailure controls whether a failed subscription
	// charge flips the profile's subscription flag off immediately. When
	// false the customer stays active until cancellation or expiry.
	DeactivateOnPaymentFailure bool
}

// Dispatcher records, classifies and routes billing provider events.
type Dispatcher struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     Config
}

// NewDispatcher creates a dispatcher bound to the given store.
func NewDispatcher(store Store, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Dispatcher {
	return &Dispatcher{
		store:   store,
		logger:  logger.With("component", "billing_dispatcher"),
		metrics: m,
		cfg:     cfg,
	}
}

// Dispatch processes one raw webhook body: parse, record the audit row,
// route to the handler for the event kind, then mark the audit row with the
// outcome. The returned Result is always safe to echo to the provider.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) Result {
	started := time.Now()

	evt, err := ParseEvent(body)
	if err != nil {
		d.count("invalid", "rejected")
		if errors.Is(err, ErrMissingEventType) {
			return Result{Success: false, Message: "event type is required"}
		}
		return Result{Success: false, Message: "malformed event payload"}
	}

	dedupKey := evt.DedupKey()
	if dedupKey == "" {
		// Nothing usable to key on; record it under a fresh id so the
		// payload is still auditable.
		dedupKey = uuid.NewString()
	}

	auditID, duplicate, err := d.store.InsertWebhookEvent(ctx, repo.WebhookEvent{
		Provider:  Provider,
		EventID:   dedupKey,
		EventType: evt.Tag,
		Payload:   evt.Raw,
	})
	if err != nil {
		d.logger.Error("failed recording webhook event", "error", err, "event", evt.Tag)
		d.count(evt.Tag, "audit_failed")
		return Result{Success: false, Message: "failed to record webhook event"}
	}
	if duplicate {
		d.logger.Info("duplicate webhook event ignored", "event", evt.Tag, "event_id", dedupKey)
		d.count(evt.Tag, "duplicate")
		return Result{Success: true, Message: "duplicate event ignored"}
	}

	handlerErr := d.route(ctx, evt)

	outcome := "processed"
	result := Result{Success: true, Message: fmt.Sprintf("event %s processed", evt.Tag)}
	if handlerErr != nil {
		outcome = "failed"
		result = Result{Success: false, Message: handlerErr.Error()}
		d.logger.Error("webhook handler failed", "error", handlerErr, "event", evt.Tag, "event_id", dedupKey)
	}

	// Best effort: a failure here is logged but must not change the outcome
	// already determined by the handler.
	if err := d.store.MarkWebhookProcessed(ctx, auditID, handlerErr == nil, result.Message); err != nil {
		d.logger.Warn("failed updating webhook audit row", "error", err, "audit_id", auditID)
		if d.metrics != nil {
			d.metrics.Errors.WithLabelValues("billing_audit").Inc()
		}
	}

	d.count(evt.Tag, outcome)
	if d.metrics != nil {
		d.metrics.WebhookLatency.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	}
	return result
}

func (d *Dispatcher) route(ctx context.Context, evt *Event) error {
	switch evt.Kind {
	case KindPaymentConfirmed, KindPaymentReceived:
		return d.handlePaymentConfirmed(ctx, evt)
	case KindSubscriptionCreated:
		return d.handleSubscriptionCreated(ctx, evt)
	case KindSubscriptionPaymentCreated:
		return d.handleSubscriptionPayment(ctx, evt)
	case KindSubscriptionPaymentFailed:
		return d.handleSubscriptionPaymentFailed(ctx, evt)
	case KindSubscriptionCancelled, KindSubscriptionExpired:
		return d.handleSubscriptionClosed(ctx, evt)
	case KindUnhandled:
		d.logger.Debug("unhandled event kind acknowledged", "event", evt.Tag)
		return nil
	default:
		return nil
	}
}

func (d *Dispatcher) handlePaymentConfirmed(ctx context.Context, evt *Event) error {
	p := evt.Payment
	if p == nil {
		return fmt.Errorf("event %s: payment payload missing", evt.Tag)
	}
	return d.store.ConfirmPayment(ctx, paymentRecord(p, repo.PaymentStatusConfirmed), p.Subscription != "")
}

func (d *Dispatcher) handleSubscriptionCreated(ctx context.Context, evt *Event) error {
	s := evt.Subscription
	if s == nil {
		return fmt.Errorf("event %s: subscription payload missing", evt.Tag)
	}
	status := s.Status
	if status == "" {
		status = "ACTIVE"
	}
	return d.store.CreateSubscription(ctx, repo.Subscription{
		Provider:        Provider,
		ExternalID:      s.ID,
		CustomerID:      s.Customer,
		PlanValue:       s.Value,
		BillingType:     s.BillingType,
		Cycle:           s.Cycle,
		Description:     s.Description,
		Status:          status,
		NextBillingDate: parseDate(s.NextDueDate),
	})
}

func (d *Dispatcher) handleSubscriptionPayment(ctx context.Context, evt *Event) error {
	p := evt.Payment
	if p == nil {
		return fmt.Errorf("event %s: payment payload missing", evt.Tag)
	}
	if p.Subscription == "" {
		return fmt.Errorf("event %s: payment %s has no subscription", evt.Tag, p.ID)
	}
	// The pending charge's due date is the subscription's next billing date;
	// prefer the subscription payload when the provider includes it.
	nextBilling := parseDate(p.DueDate)
	if evt.Subscription != nil {
		if t := parseDate(evt.Subscription.NextDueDate); t != nil {
			nextBilling = t
		}
	}
	return d.store.RecordSubscriptionPayment(ctx, paymentRecord(p, repo.PaymentStatusPending), nextBilling)
}

func (d *Dispatcher) handleSubscriptionPaymentFailed(ctx context.Context, evt *Event) error {
	p := evt.Payment
	if p == nil {
		return fmt.Errorf("event %s: payment payload missing", evt.Tag)
	}
	return d.store.RecordFailedPayment(ctx, paymentRecord(p, repo.PaymentStatusFailed), d.cfg.DeactivateOnPaymentFailure)
}

func (d *Dispatcher) handleSubscriptionClosed(ctx context.Context, evt *Event) error {
	s := evt.Subscription
	if s == nil {
		return fmt.Errorf("event %s: subscription payload missing", evt.Tag)
	}
	status := s.Status
	if status == "" {
		if evt.Kind == KindSubscriptionExpired {
			status = "EXPIRED"
		} else {
			status = "CANCELED"
		}
	}
	return d.store.CloseSubscription(ctx, Provider, s.ID, status, s.Customer)
}

func paymentRecord(p *PaymentPayload, status string) repo.Payment {
	rec := repo.Payment{
		Provider:      Provider,
		ExternalID:    p.ID,
		CustomerID:    p.Customer,
		Amount:        p.Value,
		NetAmount:     p.NetValue,
		PaymentMethod: p.BillingType,
		Description:   p.Description,
		Status:        status,
		PaymentDate:   parseDate(p.PaymentDate),
		DueDate:       parseDate(p.DueDate),
	}
	if p.Subscription != "" {
		sub := p.Subscription
		rec.SubscriptionID = &sub
	}
	if p.InvoiceURL != "" {
		url := p.InvoiceURL
		rec.InvoiceURL = &url
	}
	return rec
}

func (d *Dispatcher) count(event, outcome string) {
	if d.metrics != nil {
		d.metrics.WebhookEvents.WithLabelValues(event, outcome).Inc()
	}
}
