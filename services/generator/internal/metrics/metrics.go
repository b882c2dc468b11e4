// Package metrics counts retrieval and batch outcomes for Prometheus.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch kinds and dataset outcomes used as label values.
const (
	KindData     = "data"
	KindMetadata = "metadata"

	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeNotFound  = "not_found"
)

// Recorder owns a private registry so tests and the CLI never share global
// state. All methods are safe on a nil *Recorder.
type Recorder struct {
	registry *prometheus.Registry

	fetchAttempts   *prometheus.CounterVec
	fetchFailures   *prometheus.CounterVec
	sessionRenewals prometheus.Counter
	cacheHits       *prometheus.CounterVec
	datasets        *prometheus.CounterVec
}

// New registers the generator counters on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigen_fetch_attempts_total",
			Help: "Network fetch attempts by payload kind.",
		}, []string{"kind"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigen_fetch_failures_total",
			Help: "Failed network fetch attempts by payload kind.",
		}, []string{"kind"}),
		sessionRenewals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cdigen_session_renewals_total",
			Help: "PangaVista session renewals after expiry.",
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigen_cache_hits_total",
			Help: "Payloads served from the cache by kind.",
		}, []string{"kind"}),
		datasets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigen_datasets_total",
			Help: "Processed datasets by outcome.",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(r.fetchAttempts, r.fetchFailures, r.sessionRenewals, r.cacheHits, r.datasets)
	return r
}

// Registry exposes the underlying registry for HTTP handlers.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) FetchAttempt(kind string) {
	if r == nil {
		return
	}
	r.fetchAttempts.WithLabelValues(kind).Inc()
}

func (r *Recorder) FetchFailure(kind string) {
	if r == nil {
		return
	}
	r.fetchFailures.WithLabelValues(kind).Inc()
}

func (r *Recorder) SessionRenewal() {
	if r == nil {
		return
	}
	r.sessionRenewals.Inc()
}

func (r *Recorder) CacheHit(kind string) {
	if r == nil {
		return
	}
	r.cacheHits.WithLabelValues(kind).Inc()
}

func (r *Recorder) Dataset(outcome string) {
	if r == nil {
		return
	}
	r.datasets.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes the current values in the node_exporter textfile
// format. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
