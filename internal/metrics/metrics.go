// Package metrics registers the engine's Prometheus collectors: candidate
// counts by lifecycle status, duplicate counts, connection pool
// utilization, and genetic-operator outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every collector the engine updates during a session.
type Registry struct {
	CandidatesByStatus *prometheus.GaugeVec
	Duplicates         prometheus.Gauge
	ConnectionsInUse   prometheus.Gauge
	ConnectionsTotal   prometheus.Gauge
	OperatorAttempts   *prometheus.CounterVec
	StructuresGenerated prometheus.Counter
	JobsSubmitted      prometheus.Counter
	JobsFailed         prometheus.Counter
}

// New registers every collector against reg and returns the Registry.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		CandidatesByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xtalopt_candidates",
			Help: "Number of candidates currently in each lifecycle status.",
		}, []string{"status"}),
		Duplicates: factory.NewGauge(prometheus.GaugeOpts{
			Name: "xtalopt_duplicates",
			Help: "Number of candidates currently marked as duplicates.",
		}),
		ConnectionsInUse: factory.NewGauge(prometheus.GaugeOpts{
			Name: "xtalopt_connections_in_use",
			Help: "Number of remote-exec connections currently checked out.",
		}),
		ConnectionsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "xtalopt_connections_total",
			Help: "Total size of the remote-exec connection pool.",
		}),
		OperatorAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xtalopt_operator_attempts_total",
			Help: "Genetic operator attempts by operator and outcome.",
		}, []string{"operator", "outcome"}),
		StructuresGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "xtalopt_structures_generated_total",
			Help: "Total candidates produced by the generator.",
		}),
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "xtalopt_jobs_submitted_total",
			Help: "Total optimization jobs submitted to the remote host.",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "xtalopt_jobs_failed_total",
			Help: "Total optimization jobs that ended in an Error status.",
		}),
	}
}
