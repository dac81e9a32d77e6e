package cleanup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assets_cleanup_passes_total",
		Help: "Cleanup passes by outcome",
	}, []string{"outcome"})

	removedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assets_cleanup_removed_total",
		Help: "Cached assets removed by cleanup",
	})

	reclaimedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assets_cleanup_reclaimed_bytes_total",
		Help: "Bytes freed by cleanup",
	})
)
