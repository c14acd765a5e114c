package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	mx := New(reg)

	mx.CandidatesByStatus.WithLabelValues("Optimized").Set(3)
	mx.Duplicates.Set(1)
	mx.ConnectionsInUse.Set(2)
	mx.ConnectionsTotal.Set(4)
	mx.OperatorAttempts.WithLabelValues("crossover", "success").Inc()
	mx.StructuresGenerated.Inc()
	mx.JobsSubmitted.Inc()
	mx.JobsFailed.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"xtalopt_candidates",
		"xtalopt_duplicates",
		"xtalopt_connections_in_use",
		"xtalopt_connections_total",
		"xtalopt_operator_attempts_total",
		"xtalopt_structures_generated_total",
		"xtalopt_jobs_submitted_total",
		"xtalopt_jobs_failed_total",
	} {
		assert.True(t, names[want], "expected metric family %s to be registered", want)
	}
}

func TestCandidatesByStatusValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	mx := New(reg)
	mx.CandidatesByStatus.WithLabelValues("Duplicate").Set(5)

	metric := &dto.Metric{}
	require.NoError(t, mx.CandidatesByStatus.WithLabelValues("Duplicate").Write(metric))
	assert.InDelta(t, 5, metric.GetGauge().GetValue(), 1e-9)
}
