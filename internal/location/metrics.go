package location

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ingestedPositions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fleetwatch",
	Subsystem: "location",
	Name:      "ingested_positions_total",
	Help:      "Streamed unit position reports by outcome.",
}, []string{"outcome"})
