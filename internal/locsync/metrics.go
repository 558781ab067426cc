package locsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "locsync_cycles_total",
		Help: "Location sync cycles grouped by outcome.",
	}, []string{"outcome"})

	droppedSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locsync_dropped_samples_total",
		Help: "Samples dropped because a prior cycle was still in flight.",
	})
)
