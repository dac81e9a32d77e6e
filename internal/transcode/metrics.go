package transcode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assets_transcode_jobs_total",
		Help: "Finished transcoding jobs by outcome",
	}, []string{"outcome"})

	queueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assets_transcode_queue_length",
		Help: "Transcoding jobs waiting or running",
	})
)
