// Package metrics registers the counters and gauges the admin HTTP surface
// exposes at /metrics via promhttp.Handler() over the default registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "melonsync_pushes_total",
		Help: "Pushes completed, by path (inline or side_batch) and outcome (ok or error).",
	}, []string{"path", "outcome"})

	PullsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "melonsync_pulls_total",
		Help: "Pulls completed, by outcome (ok or error).",
	}, []string{"outcome"})

	SideBatchRollbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "melonsync_side_batch_rollbacks_total",
		Help: "Side-batch integrate failures that triggered a rollback.",
	})

	VacuumRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "melonsync_vacuum_runs_total",
		Help: "Vacuum janitor runs, by outcome (ok or error).",
	}, []string{"outcome"})

	VacuumReclaimedBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "melonsync_vacuum_reclaimed_batches_total",
		Help: "Orphaned side-batch documents deleted by the vacuum janitor.",
	})

	LatestRevision = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "melonsync_latest_revision",
		Help: "Most recently observed latestRevision per root handle.",
	}, []string{"handle"})
)

func init() {
	prometheus.MustRegister(
		PushesTotal,
		PullsTotal,
		SideBatchRollbacksTotal,
		VacuumRunsTotal,
		VacuumReclaimedBatches,
		LatestRevision,
	)
}
