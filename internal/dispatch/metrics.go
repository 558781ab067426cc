package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_polls_total",
		Help: "Request queue polls grouped by kind and outcome.",
	}, []string{"kind", "outcome"})

	changesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_changes_total",
		Help: "Classified queue changes grouped by kind.",
	}, []string{"kind"})
)
