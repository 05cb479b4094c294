package billing

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeProcessor struct {
	result Result
	bodies [][]byte
}

func (f *fakeProcessor) Dispatch(ctx context.Context, body []byte) Result {
	f.bodies = append(f.bodies, body)
	return f.result
}

func TestWebhookRejectsNonPost(t *testing.T) {
	h := NewWebhookHandler(slog.Default(), nil, "", &fakeProcessor{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/asaas", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestWebhookRejectsBadToken(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewWebhookHandler(slog.Default(), nil, "secret", proc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/asaas", strings.NewReader(`{"event":"PAYMENT_CONFIRMED"}`))
	req.Header.Set("asaas-access-token", "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(proc.bodies) != 0 {
		t.Fatal("expected dispatch not to run")
	}
}

func TestWebhookAcceptsValidToken(t *testing.T) {
	proc := &fakeProcessor{result: Result{Success: true, Message: "event PAYMENT_CONFIRMED processed"}}
	h := NewWebhookHandler(slog.Default(), nil, "secret", proc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/asaas", strings.NewReader(`{"event":"PAYMENT_CONFIRMED"}`))
	req.Header.Set("asaas-access-token", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success echoed, got %+v", res)
	}
	if len(proc.bodies) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(proc.bodies))
	}
}

func TestWebhookReturns200OnDispatchFailure(t *testing.T) {
	proc := &fakeProcessor{result: Result{Success: false, Message: "malformed event payload"}}
	h := NewWebhookHandler(slog.Default(), nil, "", proc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/asaas", strings.NewReader(`{"event":`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even on failure, got %d", rec.Code)
	}
	var res Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure echoed in body")
	}
}

func TestWebhookEmptyTokenDisablesAuth(t *testing.T) {
	proc := &fakeProcessor{result: Result{Success: true, Message: "ok"}}
	h := NewWebhookHandler(slog.Default(), nil, "", proc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/asaas", strings.NewReader(`{"event":"PAYMENT_CONFIRMED"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
