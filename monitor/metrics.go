package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_blocks_processed_total",
		Help: "The number of heights run through the block pipeline.",
	})
	checkpointsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_checkpoints_processed_total",
		Help: "The number of epochs whose BLS checkpoint was extracted.",
	})
)
