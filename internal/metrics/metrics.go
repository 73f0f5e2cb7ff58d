// Package metrics holds the Prometheus collectors for discovery runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dealfinder"

var (
	// PoolTasks counts settled pool tasks by outcome (ok | failed).
	PoolTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_tasks_total",
		Help:      "Settled pool tasks by outcome.",
	}, []string{"pool", "outcome"})

	PoolRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_retries_total",
		Help:      "Task attempts beyond the first.",
	}, []string{"pool"})

	PoolInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_in_flight",
		Help:      "Tasks currently executing.",
	}, []string{"pool"})

	// HistoryLookups counts where each historical stat came from
	// (memory | store | esi | not_found | failed).
	HistoryLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_lookups_total",
		Help:      "Historical stat resolutions by source.",
	}, []string{"source"})

	ESIResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "esi_responses_total",
		Help:      "ESI responses by status class.",
	}, []string{"class"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a full discovery run.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	RunDeals = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_deals",
		Help:      "Deals returned by the most recent run.",
	})
)
