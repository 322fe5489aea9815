// Package metrics exposes Prometheus metrics for the query pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provider owns the registry served on /metrics.
type Provider struct {
	reg *prometheus.Registry
}

// NewProvider creates a registry with the Go and process collectors and a
// build info gauge.
func NewProvider(version, commit string) *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geoquery_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "commit"},
	)
	reg.MustRegister(build)
	if version == "" {
		version = "dev"
	}
	build.WithLabelValues(version, commit).Set(1)

	return &Provider{reg: reg}
}

// Handler serves the registry in the Prometheus text format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Registerer returns the underlying registry for collector registration.
func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// Recorder records pipeline metrics. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	runs            *prometheus.CounterVec
	phaseSeconds    *prometheus.HistogramVec
	invocations     *prometheus.CounterVec
	retries         *prometheus.CounterVec
	connectFailures prometheus.Counter
	statusDropped   prometheus.Counter
}

// NewRecorder registers the pipeline collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geoquery_runs_total",
				Help: "Completed query runs by query type and outcome.",
			},
			[]string{"query_type", "outcome"},
		),
		phaseSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geoquery_phase_duration_seconds",
				Help:    "Duration of pipeline phases in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
			},
			[]string{"phase"},
		),
		invocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geoquery_tool_invocations_total",
				Help: "Remote tool invocations by tool and result.",
			},
			[]string{"tool", "result"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geoquery_tool_retries_total",
				Help: "Retried remote tool attempts.",
			},
			[]string{"tool"},
		),
		connectFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "geoquery_connect_failures_total",
			Help: "Failed connections to the remote tool host.",
		}),
		statusDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "geoquery_status_dropped_total",
			Help: "Status updates dropped because a subscriber was slow.",
		}),
	}
}

// ObserveRun counts a finished run. outcome is "success" or an error kind.
func (r *Recorder) ObserveRun(queryType, outcome string) {
	if r == nil {
		return
	}
	if queryType == "" {
		queryType = "unknown"
	}
	r.runs.WithLabelValues(queryType, outcome).Inc()
}

// ObservePhase records how long a phase took.
func (r *Recorder) ObservePhase(phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.phaseSeconds.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveInvocation counts one tool call attempt.
func (r *Recorder) ObserveInvocation(tool, result string) {
	if r == nil {
		return
	}
	r.invocations.WithLabelValues(tool, result).Inc()
}

// IncRetry counts a retried attempt.
func (r *Recorder) IncRetry(tool string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(tool).Inc()
}

// IncConnectFailure counts a failed connect.
func (r *Recorder) IncConnectFailure() {
	if r == nil {
		return
	}
	r.connectFailures.Inc()
}

// IncStatusDropped counts a dropped status update.
func (r *Recorder) IncStatusDropped() {
	if r == nil {
		return
	}
	r.statusDropped.Inc()
}
