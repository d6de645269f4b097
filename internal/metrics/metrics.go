package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"museum-api-verifier/internal/types"
)

// DefaultBuckets are request latency buckets in seconds. The 2s bound of the
// detail endpoints sits on a bucket edge.
var DefaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0}

// Recorder tracks verification metrics for Prometheus-compatible export
type Recorder struct {
	registry *prometheus.Registry

	casesTotal      *prometheus.CounterVec   // family, outcome
	requestDuration *prometheus.HistogramVec // family
	findingsTotal   *prometheus.CounterVec   // family, severity
	lastRun         prometheus.Gauge
}

// NewRecorder creates a recorder on its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		casesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "museum_contract_cases_total",
			Help: "Verification cases by endpoint family and outcome.",
		}, []string{"family", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "museum_contract_request_duration_seconds",
			Help:    "Latency of requests to the museum API.",
			Buckets: DefaultBuckets,
		}, []string{"family"}),
		findingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "museum_contract_findings_total",
			Help: "Rules that did not hold, by endpoint family and severity.",
		}, []string{"family", "severity"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "museum_contract_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run.",
		}),
	}
	r.registry.MustRegister(r.casesTotal, r.requestDuration, r.findingsTotal, r.lastRun)
	return r
}

// Observe records a finished case
func (r *Recorder) Observe(result types.VerificationResult) {
	family := string(result.Family)
	r.casesTotal.WithLabelValues(family, string(result.Outcome)).Inc()
	for _, f := range result.Findings {
		r.findingsTotal.WithLabelValues(family, f.Severity).Inc()
	}
}

// ObserveRequest records the latency of one request
func (r *Recorder) ObserveRequest(family types.Family, latency time.Duration) {
	r.requestDuration.WithLabelValues(string(family)).Observe(latency.Seconds())
}

// MarkRun stamps the completion time of a run
func (r *Recorder) MarkRun(at time.Time) {
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the metrics for the node_exporter textfile collector
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
