package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// PaymentWebhooks counts payment notifications by processing outcome
	PaymentWebhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "payment_webhooks_total", Help: "Payment notifications by outcome."},
		[]string{"outcome"},
	)
	// ShipmentDispatches counts dispatch attempts by provider, trigger and outcome
	ShipmentDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "shipment_dispatches_total", Help: "Shipment dispatch attempts by provider and outcome."},
		[]string{"provider", "trigger", "outcome"},
	)
	// ProviderLatency tracks outbound provider call latency in milliseconds
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "provider_request_latency_ms", Help: "Outbound provider call latency in ms.", Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000}},
		[]string{"provider", "op", "status"},
	)
	// AlertDeliveries counts operator alert webhook deliveries
	AlertDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alert_deliveries_total", Help: "Operator alert deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the API registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(PaymentWebhooks)
		Registry.MustRegister(ShipmentDispatches)
		Registry.MustRegister(ProviderLatency)
		Registry.MustRegister(AlertDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
