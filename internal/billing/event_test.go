package billing

import (
	"errors"
	"testing"
	"time"
)

func TestParseKindNormalisesTag(t *testing.T) {
	if got := ParseKind("  payment_confirmed "); got != KindPaymentConfirmed {
		t.Fatalf("expected PAYMENT_CONFIRMED, got %s", got)
	}
	if got := ParseKind("PAYMENT_UPDATED"); got != KindUnhandled {
		t.Fatalf("expected UNHANDLED, got %s", got)
	}
}

func TestParseEventRequiresTag(t *testing.T) {
	_, err := ParseEvent([]byte(`{"payment":{"id":"pay_1"}}`))
	if !errors.Is(err, ErrMissingEventType) {
		t.Fatalf("expected ErrMissingEventType, got %v", err)
	}
}

func TestParseEventRejectsMalformedBody(t *testing.T) {
	_, err := ParseEvent([]byte(`{"event":`))
	if err == nil {
		t.Fatal("expected error for malformed body")
	}
	if errors.Is(err, ErrMissingEventType) {
		t.Fatal("malformed body should not be reported as a missing tag")
	}
}

func TestParseEventKeepsRawBody(t *testing.T) {
	body := []byte(`{"id":"evt_1","event":"PAYMENT_CONFIRMED","payment":{"id":"pay_1"}}`)
	evt, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.Kind != KindPaymentConfirmed {
		t.Fatalf("expected kind PAYMENT_CONFIRMED, got %s", evt.Kind)
	}
	if string(evt.Raw) != string(body) {
		t.Fatal("expected raw body preserved")
	}
}

func TestDedupKeyPrefersEventID(t *testing.T) {
	evt := &Event{ID: "evt_1", Tag: "PAYMENT_CONFIRMED", Payment: &PaymentPayload{ID: "pay_1"}}
	if got := evt.DedupKey(); got != "evt_1" {
		t.Fatalf("expected evt_1, got %s", got)
	}
}

func TestDedupKeyFallsBackToResource(t *testing.T) {
	evt := &Event{Tag: "PAYMENT_CONFIRMED", Payment: &PaymentPayload{ID: "pay_1"}}
	if got := evt.DedupKey(); got != "PAYMENT_CONFIRMED:pay_1" {
		t.Fatalf("expected tag-scoped payment key, got %s", got)
	}

	evt = &Event{Tag: "SUBSCRIPTION_CREATED", Subscription: &SubscriptionPayload{ID: "sub_1"}}
	if got := evt.DedupKey(); got != "SUBSCRIPTION_CREATED:sub_1" {
		t.Fatalf("expected tag-scoped subscription key, got %s", got)
	}

	evt = &Event{Tag: "PAYMENT_CONFIRMED"}
	if got := evt.DedupKey(); got != "" {
		t.Fatalf("expected empty key, got %s", got)
	}
}

func TestParseDateLayouts(t *testing.T) {
	if got := parseDate("2026-03-15"); got == nil || got.Format("2006-01-02") != "2026-03-15" {
		t.Fatalf("expected plain date parsed, got %v", got)
	}
	if got := parseDate("2026-03-15T10:30:00Z"); got == nil || !got.Equal(time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected RFC 3339 parsed, got %v", got)
	}
	if got := parseDate("15/03/2026"); got == nil || got.Format("2006-01-02") != "2026-03-15" {
		t.Fatalf("expected dd/mm/yyyy parsed, got %v", got)
	}
	if got := parseDate("not a date"); got != nil {
		t.Fatalf("expected nil for garbage, got %v", got)
	}
	if got := parseDate(""); got != nil {
		t.Fatalf("expected nil for empty, got %v", got)
	}
}
