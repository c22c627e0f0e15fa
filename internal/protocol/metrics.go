package protocol

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for protocol traffic.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ClientInits     *prometheus.CounterVec
	LiveClients     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiprobe",
				Name:      "protocol_requests_total",
				Help:      "Total number of protocol requests by protocol and outcome",
			},
			[]string{"protocol", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "apiprobe",
				Name:      "protocol_request_duration_seconds",
				Help:      "Protocol request latency histogram",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"protocol"},
		),
		ClientInits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiprobe",
				Name:      "protocol_client_inits_total",
				Help:      "Protocol client initialisations by protocol and result",
			},
			[]string{"protocol", "result"},
		),
		LiveClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "apiprobe",
				Name:      "protocol_live_clients",
				Help:      "Number of initialised protocol clients",
			},
		),
	}
}

// RecordRequest records one completed or failed request.
func (m *Metrics) RecordRequest(protocol string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.RequestsTotal.WithLabelValues(protocol, outcome).Inc()
	m.RequestDuration.WithLabelValues(protocol).Observe(d.Seconds())
}

// RecordInit records the outcome of a client initialisation.
func (m *Metrics) RecordInit(protocol string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.ClientInits.WithLabelValues(protocol, result).Inc()
}

// SetLiveClients updates the live client gauge.
func (m *Metrics) SetLiveClients(n int) {
	if m == nil {
		return
	}
	m.LiveClients.Set(float64(n))
}
