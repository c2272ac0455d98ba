package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	require.NoError(t, metrics.Track("ledger:integrity").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("ledger:integrity").End(boom), boom)

	require.Equal(t, 1.0, counterValue(t, registry, "ledger_jobs_total", map[string]string{"job": "ledger:integrity", "status": "success"}))
	require.Equal(t, 1.0, counterValue(t, registry, "ledger_jobs_total", map[string]string{"job": "ledger:integrity", "status": "failure"}))
	require.Equal(t, 1.0, counterValue(t, registry, "ledger_jobs_failures_total", map[string]string{"job": "ledger:integrity"}))
}

func TestAddFindingsIgnoresEmptyCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.AddFindings("ledger:followup", "overdue_cheque", 3, 0)
	metrics.AddFindings("ledger:followup", "overdue_cheque", 3, 2)
	require.Equal(t, 2.0, counterValue(t, registry, "ledger_job_findings_total",
		map[string]string{"job": "ledger:followup", "kind": "overdue_cheque", "tenant": "3"}))

	var nilMetrics *Metrics
	nilMetrics.AddFindings("x", "y", 1, 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
