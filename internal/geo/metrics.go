package geo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_samples_total",
		Help: "Total position acquisitions grouped by outcome.",
	}, []string{"outcome"})

	skippedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geo_sampler_skipped_ticks_total",
		Help: "Ticks skipped because a prior acquisition was still pending.",
	})

	reverseLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_reverse_lookups_total",
		Help: "Reverse geocoding lookups grouped by outcome.",
	}, []string{"outcome"})
)
