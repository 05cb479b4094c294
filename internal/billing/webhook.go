package billing

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/metrics"
)

// Processor handles a parsed-or-raw webhook body and reports the outcome.
type Processor interface {
	Dispatch(ctx context.Context, body []byte) Result
}

// WebhookHandler authenticates Asaas webhook deliveries and forwards the
// body to the dispatcher. The provider expects HTTP 200 with the result
// echoed as JSON; non-200 responses are reserved for unreadable requests and
// failed authentication.
type WebhookHandler struct {
	logger      *slog.Logger
	metrics     *metrics.Metrics
	accessToken string
	processor   Processor
}

// NewWebhookHandler creates a new webhook handler. An empty accessToken
// disables header authentication (local development).
func NewWebhookHandler(logger *slog.Logger, m *metrics.Metrics, accessToken string, processor Processor) *WebhookHandler {
	return &WebhookHandler{
		logger:      logger.With("component", "asaas_webhook"),
		metrics:     m,
		accessToken: accessToken,
		processor:   processor,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		if h.metrics != nil {
			h.metrics.Errors.WithLabelValues("asaas_webhook_auth").Inc()
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		if h.metrics != nil {
			h.metrics.Errors.WithLabelValues("asaas_webhook").Inc()
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	result := h.processor.Dispatch(r.Context(), body)
	if !result.Success {
		h.logger.Warn("webhook reported failure", "message", result.Message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	if h.accessToken == "" {
		return true
	}
	got := r.Header.Get("asaas-access-token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.accessToken)) == 1
}
