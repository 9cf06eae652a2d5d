package exporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ess_billing"

// Exporter implements the prometheus.Collector interface, and exports the health of the billing poll loop.
type Exporter struct {
	duration     prometheus.Gauge
	totalCycles  prometheus.Counter
	sinkFailures prometheus.Counter
	fetchErrors  *prometheus.CounterVec
	schemaErrors *prometheus.CounterVec
	documents    *prometheus.CounterVec
	lastSuccess  *prometheus.GaugeVec
}

// NewExporter returns a new exporter of billing poll metrics.
func NewExporter() *Exporter {
	return &Exporter{
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of the last poll cycle.",
		}),
		totalCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total poll cycles run.",
		}),
		sinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Documents the sink rejected.",
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Billing API requests that failed, by task.",
		}, []string{"task"}),
		schemaErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_errors_total",
			Help:      "Records dropped because the billing API response missed an expected field, by task.",
		}, []string{"task"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents written to the sink, by index.",
		}, []string{"index"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last task run that fetched without error.",
		}, []string{"task"}),
	}
}

// Describe outputs metric descriptions.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.duration.Desc()
	ch <- e.totalCycles.Desc()
	ch <- e.sinkFailures.Desc()
	e.fetchErrors.Describe(ch)
	e.schemaErrors.Describe(ch)
	e.documents.Describe(ch)
	e.lastSuccess.Describe(ch)
}

// Collect sends the current metric values.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.duration.Collect(ch)
	e.totalCycles.Collect(ch)
	e.sinkFailures.Collect(ch)
	e.fetchErrors.Collect(ch)
	e.schemaErrors.Collect(ch)
	e.documents.Collect(ch)
	e.lastSuccess.Collect(ch)
}

func (e *Exporter) CycleDone(d time.Duration) {
	e.totalCycles.Inc()
	e.duration.Set(d.Seconds())
}

func (e *Exporter) FetchFailed(task string) {
	e.fetchErrors.WithLabelValues(task).Inc()
}

func (e *Exporter) SchemaFailed(task string, n int) {
	e.schemaErrors.WithLabelValues(task).Add(float64(n))
}

func (e *Exporter) TaskSucceeded(task string, at time.Time) {
	e.lastSuccess.WithLabelValues(task).Set(float64(at.Unix()))
}

func (e *Exporter) DocumentsWritten(index string, n int) {
	e.documents.WithLabelValues(index).Add(float64(n))
}

func (e *Exporter) SinkFailed(n int) {
	e.sinkFailures.Add(float64(n))
}
