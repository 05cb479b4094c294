package repo

import (
	"encoding/json"
	"time"
)

// WebhookEvent is the audit row recorded for every inbound provider
// notification before it is dispatched.
type WebhookEvent struct {
	ID               string
	Provider         string
	EventID          string
	EventType        string
	Payload          json.RawMessage
	Processed        bool
	ProcessedAt      *time.Time
	ProcessingResult *string
	CreatedAt        time.Time
}

// Payment represents a row in payment_history.
type Payment struct {
	ID             string
	Provider       string
	ExternalID     string
	CustomerID     string
	Amount         float64
	NetAmount      float64
	PaymentMethod  string
	Description    string
	Status         string
	PaymentDate    *time.Time
	DueDate        *time.Time
	SubscriptionID *string
	InvoiceURL     *string
	CreatedAt      time.Time
}

// Payment statuses written by the webhook dispatcher.
const (
	PaymentStatusConfirmed = "CONFIRMED"
	PaymentStatusPending   = "PENDING"
	PaymentStatusFailed    = "FAILED"
)

// Subscription represents a row in subscriptions, keyed externally by
// (provider, external_id).
type Subscription struct {
	ID              string
	Provider        string
	ExternalID      string
	CustomerID      string
	PlanValue       float64
	BillingType     string
	Cycle           string
	Description     string
	Status          string
	NextBillingDate *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Profile is the slice of the profiles table this service touches: the
// provider customer mapping and the subscription flag.
type Profile struct {
	ID                 string
	AsaasCustomerID    *string
	SubscriptionActive bool
	UpdatedAt          time.Time
}

// MessagingInstance represents a row in messaging_instances. Token is the
// identity assigned by the BSP.
type MessagingInstance struct {
	Token       string
	Name        string
	ProfileID   *string
	Status      string
	ProfileName *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
