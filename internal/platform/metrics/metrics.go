package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the sync pipeline. Counters are
// labeled by source so one process can drive both upstreams.
type Metrics struct {
	RecordsFetched   *prometheus.CounterVec
	RecordsNew       *prometheus.CounterVec
	RecordsUpdated   *prometheus.CounterVec
	RecordsUnchanged *prometheus.CounterVec
	RecordsSkipped   *prometheus.CounterVec

	DecisionsNormalized *prometheus.CounterVec
	Contradictions      *prometheus.CounterVec
	ZoningFailures      *prometheus.CounterVec
	ReviewSubmissions   *prometheus.CounterVec
	DroppedWrites       *prometheus.CounterVec

	BatchesCompleted *prometheus.CounterVec
	BatchesAborted   *prometheus.CounterVec
}

// New creates and registers all pipeline metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on an explicit registerer. Tests use a
// fresh registry per case.
func NewWith(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "jurisync_" + name,
			Help: help,
		}, []string{"source"})
	}

	return &Metrics{
		RecordsFetched:   counter("records_fetched_total", "Upstream rows fetched"),
		RecordsNew:       counter("records_new_total", "Rows mirrored for the first time"),
		RecordsUpdated:   counter("records_updated_total", "Rows replaced after a hash mismatch"),
		RecordsUnchanged: counter("records_unchanged_total", "Rows whose hash matched the mirror"),
		RecordsSkipped:   counter("records_skipped_total", "Rows skipped on integrity errors"),

		DecisionsNormalized: counter("decisions_normalized_total", "Canonical decisions written"),
		Contradictions:      counter("publicity_contradictions_total", "Publicity rule contradictions"),
		ZoningFailures:      counter("zoning_failures_total", "Zoning calls that failed or returned an error payload"),
		ReviewSubmissions:   counter("review_submissions_total", "Decisions forwarded to the review queue"),
		DroppedWrites:       counter("dropped_writes_total", "Writes dropped because the store is read-only"),

		BatchesCompleted: counter("batches_completed_total", "Batches that ran to completion"),
		BatchesAborted:   counter("batches_aborted_total", "Batches aborted on transient errors"),
	}
}
