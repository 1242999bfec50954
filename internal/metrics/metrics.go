// Package metrics exposes Prometheus collectors for the allocation engine and
// the API server. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hostel"

// Run outcomes used as the "outcome" label of hostel_allocation_runs_total.
const (
	OutcomeAllocated = "allocated"
	OutcomeNoop      = "noop"
	OutcomeError     = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	allocated     prometheus.Counter
	skipped       prometheus.Counter
	scores        prometheus.Histogram
	runDuration   prometheus.Histogram
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	reconcileRuns *prometheus.CounterVec
}

// New builds the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_runs_total",
			Help:      "Allocation runs by outcome.",
		}, []string{"outcome"}),
		allocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "students_allocated_total",
			Help:      "Students assigned to a room.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "students_skipped_total",
			Help:      "Candidates left unassigned because no room met the threshold.",
		}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocation_score",
			Help:      "Compatibility score of committed allocations.",
			Buckets:   prometheus.LinearBuckets(50, 5, 11),
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocation_run_duration_seconds",
			Help:      "Wall time of allocation runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_total",
			Help:      "Controller reconciliations by controller and result.",
		}, []string{"controller", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs,
		m.allocated,
		m.skipped,
		m.scores,
		m.runDuration,
		m.httpRequests,
		m.httpDuration,
		m.reconcileRuns,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RunFinished records one allocation run.
func (m *Metrics) RunFinished(outcome string, allocated, skipped int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.allocated.Add(float64(allocated))
	m.skipped.Add(float64(skipped))
	m.runDuration.Observe(elapsed.Seconds())
}

// ObserveScore records the score of one committed allocation.
func (m *Metrics) ObserveScore(score float64) {
	if m == nil {
		return
	}
	m.scores.Observe(score)
}

// Reconciled records one controller reconciliation.
func (m *Metrics) Reconciled(controller string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.reconcileRuns.WithLabelValues(controller, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts and times requests served by next under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
