package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatrixMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_matrix_mutations_total",
			Help: "Matrix cells written, by operation (set_enabled, set_configurable, select_column, paste)",
		},
		[]string{"op"},
	)

	ToggleRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_toggle_rejected_total",
			Help: "Projection toggles rejected because the governing cell is not configurable",
		},
		[]string{"projection"},
	)

	MatrixDesync = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_matrix_desync_total",
			Help: "Lookups of matrix cells that should exist but do not",
		},
	)

	PasteRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_snapshot_paste_rows_total",
			Help: "Snapshot rows processed during paste, by result (applied, skipped, failed)",
		},
		[]string{"result"},
	)

	CatalogRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_catalog_rejected_total",
			Help: "Catalog writes refused, by reason (validation, last_active)",
		},
		[]string{"reason"},
	)
)
