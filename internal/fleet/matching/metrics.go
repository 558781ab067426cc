package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nearestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_nearest_match_seconds",
		Help:    "Time spent selecting the nearest available unit.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	geoIndexErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_geo_index_errors_total",
		Help: "Total redis geo index operation failures.",
	})
)
