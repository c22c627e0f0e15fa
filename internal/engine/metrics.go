package engine

import (
	"apiprobe/internal/scenario"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for scenarios and steps. It is a
// scenario.Sink.
type Metrics struct {
	ScenariosTotal   *prometheus.CounterVec
	StepsTotal       *prometheus.CounterVec
	ScenarioDuration prometheus.Histogram
	ActiveScenarios  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScenariosTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiprobe",
				Name:      "scenarios_total",
				Help:      "Finished scenarios by status",
			},
			[]string{"status"},
		),
		StepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiprobe",
				Name:      "steps_total",
				Help:      "Finished steps by status",
			},
			[]string{"status"},
		),
		ScenarioDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "apiprobe",
				Name:      "scenario_duration_seconds",
				Help:      "Scenario duration histogram",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
		),
		ActiveScenarios: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "apiprobe",
				Name:      "active_scenarios",
				Help:      "Scenarios currently running",
			},
		),
	}
}

// Publish updates the collectors from a scenario event.
func (m *Metrics) Publish(e scenario.Event) {
	if m == nil {
		return
	}
	switch e.Kind {
	case scenario.ScenarioStarted:
		m.ActiveScenarios.Inc()
	case scenario.StepFinished:
		m.StepsTotal.WithLabelValues(string(e.Status)).Inc()
	case scenario.ScenarioFinished:
		m.ActiveScenarios.Dec()
		m.ScenariosTotal.WithLabelValues(string(e.Status)).Inc()
		m.ScenarioDuration.Observe(e.Duration.Seconds())
	}
}
