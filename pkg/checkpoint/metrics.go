package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckpointHits tracks pages found already loaded
	CheckpointHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bioactivity_checkpoint_hits_total",
			Help: "Total number of pages found in the checkpoint store",
		},
	)

	// CheckpointMisses tracks pages not yet loaded
	CheckpointMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bioactivity_checkpoint_misses_total",
			Help: "Total number of pages not found in the checkpoint store",
		},
	)

	// CheckpointWrites tracks recorded pages
	CheckpointWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bioactivity_checkpoint_writes_total",
			Help: "Total number of pages recorded in the checkpoint store",
		},
	)

	// CheckpointErrors tracks store operation errors
	CheckpointErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bioactivity_checkpoint_errors_total",
			Help: "Total number of checkpoint store errors",
		},
		[]string{"operation"}, // "get", "set", "clear"
	)
)
