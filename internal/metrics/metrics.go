package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WebhookEvents  *prometheus.CounterVec
	WebhookLatency *prometheus.HistogramVec
	BSPRequests    *prometheus.CounterVec
	BSPLatency     *prometheus.HistogramVec
	PollTicks      *prometheus.CounterVec
	Errors         *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Total billing webhook events by type and outcome.",
			}, []string{"event", "outcome"}),
			WebhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "webhook_dispatch_duration_seconds",
				Help:      "Latency distribution for webhook event dispatch.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"outcome"}),
			BSPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bsp_requests_total",
				Help:      "Total WhatsApp BSP API requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			BSPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bsp_request_duration_seconds",
				Help:      "Latency distribution for WhatsApp BSP API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			PollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instance_poll_ticks_total",
				Help:      "Total status poll ticks by result.",
			}, []string{"result"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WebhookEvents,
			metricsInstance.WebhookLatency,
			metricsInstance.BSPRequests,
			metricsInstance.BSPLatency,
			metricsInstance.PollTicks,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
