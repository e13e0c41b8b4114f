package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheLookupOutcome captures the result of a session cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the lookup reused a cached session.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupMiss indicates no cached session was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
	// CacheLookupError indicates the lookup failed; treated as a miss.
	CacheLookupError CacheLookupOutcome = "error"
)

// CacheStoreOutcome captures the result of a session cache store attempt.
type CacheStoreOutcome string

const (
	// CacheStoreStored indicates the session was persisted.
	CacheStoreStored CacheStoreOutcome = "stored"
	// CacheStoreError indicates the store attempt failed.
	CacheStoreError CacheStoreOutcome = "error"
)

// IdentityOutcome captures the result of an identity service call.
type IdentityOutcome string

const (
	// IdentityResolved indicates the token resolved to a principal.
	IdentityResolved IdentityOutcome = "resolved"
	// IdentityRejected indicates the identity service declined the token.
	IdentityRejected IdentityOutcome = "rejected"
	// IdentityError indicates the identity service could not be reached.
	IdentityError IdentityOutcome = "error"
)

// Recorder publishes Prometheus metrics for gateway activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	decisions       *prometheus.CounterVec
	decisionLatency *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	identityLatency *prometheus.HistogramVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Subsystem: "auth",
		Name:      "decisions_total",
		Help:      "Forward-auth decisions emitted by the pipeline.",
	}, []string{"outcome", "status_code"})

	decisionLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authgate",
		Subsystem: "auth",
		Name:      "decision_duration_seconds",
		Help:      "Latency distribution for completed forward-auth decisions.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Subsystem: "session_cache",
		Name:      "operations_total",
		Help:      "Session cache operations executed by the resolver.",
	}, []string{"operation", "result"})

	identityLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authgate",
		Subsystem: "identity",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for identity service calls.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"result"})

	reg.MustRegister(decisions, decisionLatency, cacheOperations, identityLatency)

	return &Recorder{
		gatherer:        reg,
		handler:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		decisions:       decisions,
		decisionLatency: decisionLatency,
		cacheOperations: cacheOperations,
		identityLatency: identityLatency,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveDecision records the outcome and latency of a completed decision.
func (r *Recorder) ObserveDecision(outcome string, statusCode int, duration time.Duration) {
	if r == nil {
		return
	}
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	outcomeLabel := normalizeLabel(outcome)
	r.decisions.WithLabelValues(outcomeLabel, statusLabel).Inc()
	r.decisionLatency.WithLabelValues(outcomeLabel).Observe(duration.Seconds())
}

// ObserveCacheLookup records the result of a session cache lookup.
func (r *Recorder) ObserveCacheLookup(result CacheLookupOutcome) {
	if r == nil {
		return
	}
	label := string(result)
	if label == "" {
		label = string(CacheLookupMiss)
	}
	r.cacheOperations.WithLabelValues("lookup", label).Inc()
}

// ObserveCacheStore records the result of a session cache store attempt.
func (r *Recorder) ObserveCacheStore(result CacheStoreOutcome) {
	if r == nil {
		return
	}
	label := string(result)
	if label == "" {
		label = string(CacheStoreError)
	}
	r.cacheOperations.WithLabelValues("store", label).Inc()
}

// ObserveIdentity records the result and latency of an identity call.
func (r *Recorder) ObserveIdentity(result IdentityOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	r.identityLatency.WithLabelValues(normalizeLabel(string(result))).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
