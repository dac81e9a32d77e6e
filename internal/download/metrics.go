package download

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assets_downloads_total",
		Help: "Completed asset downloads by outcome",
	}, []string{"outcome"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assets_download_duration_seconds",
		Help:    "Time spent fetching and writing one asset",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	pendingDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assets_pending_downloads",
		Help: "Downloads enqueued and not yet post-processed",
	})
)
