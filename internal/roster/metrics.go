package roster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fleetwatch",
	Subsystem: "roster",
	Name:      "refreshes_total",
	Help:      "Roster poll attempts by outcome.",
}, []string{"outcome"})
