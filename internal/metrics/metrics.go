package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the Prometheus metrics for a replay run.
type Registry struct {
	*prometheus.Registry

	barsProcessed   prometheus.Counter
	signalsTotal    *prometheus.CounterVec
	intentsTotal    *prometheus.CounterVec
	fillsTotal      prometheus.Counter
	rejectionsTotal prometheus.Counter
	equityValue     prometheus.Gauge
	runDuration     prometheus.Histogram
}

// NewRegistry creates a metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		barsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "helm_bars_processed_total",
				Help: "Total number of bars processed",
			},
		),
		signalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helm_signals_total",
				Help: "Total number of signals evaluated",
			},
			[]string{"action"},
		),
		intentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helm_intents_total",
				Help: "Total number of intents by side and outcome",
			},
			[]string{"side", "outcome"},
		),
		fillsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "helm_fills_total",
				Help: "Total number of filled orders",
			},
		),
		rejectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "helm_rejections_total",
				Help: "Total number of rejected orders",
			},
		),
		equityValue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "helm_equity_value",
				Help: "Current portfolio value during replay",
			},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "helm_run_duration_seconds",
				Help:    "Replay run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),
	}

	reg.MustRegister(r.barsProcessed)
	reg.MustRegister(r.signalsTotal)
	reg.MustRegister(r.intentsTotal)
	reg.MustRegister(r.fillsTotal)
	reg.MustRegister(r.rejectionsTotal)
	reg.MustRegister(r.equityValue)
	reg.MustRegister(r.runDuration)

	return r
}

// RecordBar counts one processed bar.
func (r *Registry) RecordBar() {
	r.barsProcessed.Inc()
}

// RecordSignal counts one evaluated signal by action.
func (r *Registry) RecordSignal(action string) {
	r.signalsTotal.WithLabelValues(action).Inc()
}

// RecordIntent counts one intent by side and outcome ("submitted" or "skipped").
func (r *Registry) RecordIntent(side, outcome string) {
	r.intentsTotal.WithLabelValues(side, outcome).Inc()
}

// RecordFill counts one filled order.
func (r *Registry) RecordFill() {
	r.fillsTotal.Inc()
}

// RecordRejection counts one rejected order.
func (r *Registry) RecordRejection() {
	r.rejectionsTotal.Inc()
}

// SetEquity publishes the current portfolio value.
func (r *Registry) SetEquity(value float64) {
	r.equityValue.Set(value)
}

// ObserveRunDuration records a completed run's duration.
func (r *Registry) ObserveRunDuration(seconds float64) {
	r.runDuration.Observe(seconds)
}

// Handler returns an HTTP handler exposing the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}
