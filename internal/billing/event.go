package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider identifies the billing provider these events come from.
const Provider = "asaas"

// ErrMissingEventType is returned when a payload carries no event tag.
var ErrMissingEventType = errors.New("missing event type")

// Kind is the routed classification of a provider event. Asaas emits around
// two dozen tags; the ones this service acts on get their own kind, the rest
// collapse into KindUnhandled, which is acknowledged but performs no domain
// write.
type Kind string

const (
	KindPaymentConfirmed           Kind = "PAYMENT_CONFIRMED"
	KindPaymentReceived            Kind = "PAYMENT_RECEIVED"
	KindSubscriptionCreated        Kind = "SUBSCRIPTION_CREATED"
	KindSubscriptionPaymentCreated Kind = "SUBSCRIPTION_PAYMENT_CREATED"
	KindSubscriptionPaymentFailed  Kind = "SUBSCRIPTION_PAYMENT_FAILED"
	KindSubscriptionCancelled      Kind = "SUBSCRIPTION_CANCELLED"
	KindSubscriptionExpired        Kind = "SUBSCRIPTION_EXPIRED"
	KindUnhandled                  Kind = "UNHANDLED"
)

// ParseKind classifies a raw event tag.
func ParseKind(tag string) Kind {
	switch strings.ToUpper(strings.TrimSpace(tag)) {
	case string(KindPaymentConfirmed):
		return KindPaymentConfirmed
	case string(KindPaymentReceived):
		return KindPaymentReceived
	case string(KindSubscriptionCreated):
		return KindSubscriptionCreated
	case string(KindSubscriptionPaymentCreated):
		return KindSubscriptionPaymentCreated
	case string(KindSubscriptionPaymentFailed):
		return KindSubscriptionPaymentFailed
	case string(KindSubscriptionCancelled):
		return KindSubscriptionCancelled
	case string(KindSubscriptionExpired):
		return KindSubscriptionExpired
	default:
		return KindUnhandled
	}
}

// PaymentPayload mirrors the payment sub-object of an Asaas notification.
type PaymentPayload struct {
	ID           string  `json:"id"`
	Customer     string  `json:"customer"`
	Value        float64 `json:"value"`
	NetValue     float64 `json:"netValue"`
	BillingType  string  `json:"billingType"`
	Status       string  `json:"status"`
	DueDate      string  `json:"dueDate"`
	PaymentDate  string  `json:"paymentDate"`
	Description  string  `json:"description"`
	InvoiceURL   string  `json:"invoiceUrl"`
	Subscription string  `json:"subscription"`
}

// SubscriptionPayload mirrors the subscription sub-object of an Asaas
// notification.
type SubscriptionPayload struct {
	ID          string  `json:"id"`
	Customer    string  `json:"customer"`
	BillingType string  `json:"billingType"`
	Value       float64 `json:"value"`
	NextDueDate string  `json:"nextDueDate"`
	Cycle       string  `json:"cycle"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
}

// Event is a parsed provider notification.
type Event struct {
	ID           string               `json:"id"`
	Tag          string               `json:"event"`
	Payment      *PaymentPayload      `json:"payment"`
	Subscription *SubscriptionPayload `json:"subscription"`
	Kind         Kind                 `json:"-"`
	Raw          json.RawMessage      `json:"-"`
}

// ParseEvent decodes a raw webhook body. Only the event tag is mandatory;
// handlers validate the sub-objects they need.
func ParseEvent(body []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if strings.TrimSpace(evt.Tag) == "" {
		return nil, ErrMissingEventType
	}
	evt.Kind = ParseKind(evt.Tag)
	evt.Raw = body
	return &evt, nil
}

// DedupKey derives the idempotency key for the audit table. Asaas sends a
// notification id; older payloads may not, so fall back to the tag plus the
// referenced resource id, which still collapses redeliveries of the same
// lifecycle notification.
func (e *Event) DedupKey() string {
	if e.ID != "" {
		return e.ID
	}
	if e.Payment != nil && e.Payment.ID != "" {
		return e.Tag + ":" + e.Payment.ID
	}
	if e.Subscription != nil && e.Subscription.ID != "" {
		return e.Tag + ":" + e.Subscription.ID
	}
	return ""
}

// parseDate reads provider date strings, which arrive either as plain dates
// or RFC 3339 timestamps. Unparseable values are dropped rather than failing
// the whole event.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
