package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentCreateOrderTotal counts provider order creation attempts by result.
	PaymentCreateOrderTotal *prometheus.CounterVec
	// PaymentVerifyTotal counts signature verification outcomes.
	PaymentVerifyTotal *prometheus.CounterVec
	// PaymentSettlementTotal counts settlement outcomes (settled, already_paid, order_not_found, error).
	PaymentSettlementTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound provider webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// PaymentProviderDuration records provider call latency in milliseconds.
	PaymentProviderDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentCreateOrderTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_create_order_total",
			Help:      "Count of provider order creation outcomes.",
		}, []string{"result"}))
		PaymentVerifyTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verify_total",
			Help:      "Count of payment signature verification outcomes.",
		}, []string{"result"}))
		PaymentSettlementTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_settlement_total",
			Help:      "Count of order settlement outcomes.",
		}, []string{"outcome"}))
		PaymentWebhookTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by event and outcome.",
		}, []string{"event", "result"}))
		PaymentProviderDuration = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_provider_duration_ms",
			Help:      "Latency of payment provider calls in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"result"}))
	})
}

// IncCounter increments vec when the domain metrics have been registered.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}
