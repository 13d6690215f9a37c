package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	talentsMovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talent_moved_total",
		Help: "Talents moved through the ledger, labeled by transaction kind",
	}, []string{"kind"})

	lifecycleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talent_lifecycle_transitions_total",
		Help: "Account lifecycle transitions, labeled by target state",
	}, []string{"state"})

	cprBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "talent_cpr_batches_completed_total",
		Help: "CPR batches that reached 13 rescues",
	})

	breakResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talent_fourth_wall_resolutions_total",
		Help: "Fourth-wall-break requests resolved, labeled by outcome",
	}, []string{"outcome"})

	ghostsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "talent_ghosts_purged_total",
		Help: "Self-killed accounts tombstoned by the sweep",
	})
)
