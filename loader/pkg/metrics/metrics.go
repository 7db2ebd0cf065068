// Package metrics exposes the loader's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "warehouse_loader_build_info",
		Help: "Build information for the warehouse loader",
	}, []string{"version", "commit", "date"})

	LoadRunTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_loader_run_total",
		Help: "Load cycles by outcome",
	}, []string{"status"})

	LoadRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "warehouse_loader_run_duration_seconds",
		Help:    "Duration of a full load cycle",
		Buckets: prometheus.DefBuckets,
	})

	RowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_loader_rows_total",
		Help: "Rows processed per table by outcome",
	}, []string{"table", "outcome"})

	MilestoneConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_loader_milestone_conflicts_total",
		Help: "Milestone conflicts where the stored value won",
	}, []string{"table"})
)

// ObserveReport records the per-row outcomes of one table write.
func ObserveReport(table string, inserted, updated, unchanged, skipped, conflicts int) {
	RowsTotal.WithLabelValues(table, "inserted").Add(float64(inserted))
	RowsTotal.WithLabelValues(table, "updated").Add(float64(updated))
	RowsTotal.WithLabelValues(table, "unchanged").Add(float64(unchanged))
	RowsTotal.WithLabelValues(table, "skipped").Add(float64(skipped))
	MilestoneConflictsTotal.WithLabelValues(table).Add(float64(conflicts))
}
