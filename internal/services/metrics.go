// Pipeline-level Prometheus instrumentation.
//
// The tick driver and item machine report their work here so the /metrics
// endpoint reflects the pipeline, not just HTTP traffic. Label cardinality
// is kept bounded:
//
//   - action:  item transition kind ("add" or "batch_check")
//   - outcome: "ok", "pending", or "error"
//
// Workspace hashes are deliberately not used as labels.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// tickItems counts item transitions by action and outcome.
	tickItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_items_processed_total",
			Help: "Total number of item transitions attempted by the tick driver.",
		},
		[]string{"action", "outcome"},
	)

	// tickSkips counts workspaces skipped by the per-workspace rate gate.
	tickSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "import_workspace_skips_total",
			Help: "Total number of workspaces skipped because their rate gate was closed.",
		},
	)

	// tickRuns counts scheduler passes.
	tickRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "import_ticks_total",
			Help: "Total number of scheduler passes.",
		},
	)
)

func init() {
	prometheus.MustRegister(tickItems, tickSkips, tickRuns)
}

// observeItemResult records one item transition in the pipeline counters.
func observeItemResult(res ItemResult) {
	outcome := "error"
	switch {
	case res.Success && res.Pending:
		outcome = "pending"
	case res.Success:
		outcome = "ok"
	}
	tickItems.WithLabelValues(res.Action, outcome).Inc()
}
