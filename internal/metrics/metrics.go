package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics. It satisfies the recorder
// interfaces of the backtest engine and the sweep runner.
type Registry struct {
	*prometheus.Registry

	simulationsTotal   *prometheus.CounterVec
	simulationDuration prometheus.Histogram
	fillsTotal         *prometheus.CounterVec
	rejectionsTotal    *prometheus.CounterVec
	combinationsTotal  *prometheus.CounterVec
	workersBusy        prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		simulationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantsweep_simulations_total",
				Help: "Total number of completed simulations",
			},
			[]string{"strategy", "status"},
		),

		simulationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quantsweep_simulation_duration_seconds",
				Help:    "Wall time of one simulation in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),

		fillsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantsweep_fills_total",
				Help: "Total number of fill attempts by outcome",
			},
			[]string{"status"},
		),

		rejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantsweep_rejections_total",
				Help: "Total number of rejected instructions by reason code",
			},
			[]string{"kind"},
		),

		combinationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantsweep_sweep_combinations_total",
				Help: "Total number of sweep combinations by final status",
			},
			[]string{"status"},
		),

		workersBusy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quantsweep_sweep_workers_busy",
				Help: "Number of sweep workers currently simulating",
			},
		),
	}

	reg.MustRegister(r.simulationsTotal)
	reg.MustRegister(r.simulationDuration)
	reg.MustRegister(r.fillsTotal)
	reg.MustRegister(r.rejectionsTotal)
	reg.MustRegister(r.combinationsTotal)
	reg.MustRegister(r.workersBusy)

	return r
}

// RecordSimulation records a finished simulation.
func (r *Registry) RecordSimulation(strategy, status string, elapsed time.Duration) {
	r.simulationsTotal.WithLabelValues(strategy, status).Inc()
	r.simulationDuration.Observe(elapsed.Seconds())
}

// RecordFill records one fill attempt.
func (r *Registry) RecordFill(status string) {
	r.fillsTotal.WithLabelValues(status).Inc()
}

// RecordRejection records a rejected instruction.
func (r *Registry) RecordRejection(code string) {
	r.rejectionsTotal.WithLabelValues(code).Inc()
}

// RecordCombination records the final status of a sweep combination.
func (r *Registry) RecordCombination(status string) {
	r.combinationsTotal.WithLabelValues(status).Inc()
}

// WorkerStarted marks a sweep worker busy.
func (r *Registry) WorkerStarted() {
	r.workersBusy.Inc()
}

// WorkerFinished marks a sweep worker idle.
func (r *Registry) WorkerFinished() {
	r.workersBusy.Dec()
}

// WriteTextfile writes the current metrics in the text exposition format,
// for collection by the node exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}
