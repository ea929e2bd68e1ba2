package internal

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts banklink traffic. Every instance has its own registry.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	callbackDuration *prometheus.HistogramVec
	certificateTime  prometheus.Histogram
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pangalink_banklink_requests_total",
			Help: "Inbound banklink requests by bank and outcome",
		}, []string{"bank", "result"}),
		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pangalink_payment_transitions_total",
			Help: "Completed payments by bank and final state",
		}, []string{"bank", "state"}),
		callbackDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pangalink_callback_duration_seconds",
			Help:    "Duration of bank to merchant callbacks",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		certificateTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pangalink_certificate_generation_seconds",
			Help:    "Duration of key pair generation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// Request records an inbound banklink request, result is ok or the failed stage.
func (m *Metrics) Request(bank, result string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(bank, result).Inc()
}

func (m *Metrics) Transition(bank, state string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(bank, state).Inc()
}

func (m *Metrics) Callback(ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "failed"
	if ok {
		status = "ok"
	}
	m.callbackDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *Metrics) CertificateGenerated(duration time.Duration) {
	if m == nil {
		return
	}
	m.certificateTime.Observe(duration.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
