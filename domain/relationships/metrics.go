package relationships

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	createdTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relationships_created_total",
		Help: "Create calls by outcome (inserted, deduplicated).",
	}, []string{"outcome"})

	mirrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relationships_mirrors_total",
		Help: "Mirror edge writes by outcome (inserted, refreshed).",
	}, []string{"outcome"})

	conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relationships_conflicts_total",
		Help: "Writes rejected by the live-edge uniqueness constraint.",
	})

	relinksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relationships_relinks_total",
		Help: "Single-valued link replacements.",
	})

	softDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relationships_soft_deleted_total",
		Help: "Edges tombstoned.",
	})
)
