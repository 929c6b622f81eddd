package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SignalsEnriched - обогащённые сигналы по количеству аннотаций
var SignalsEnriched = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "pipeline",
		Name:      "signals_enriched_total",
		Help:      "Signals emitted by the enrichment pipeline",
	},
	[]string{"annotations"}, // 0..3
)

// StageMisses - стадии, не успевшие к таймауту
var StageMisses = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "pipeline",
		Name:      "stage_misses_total",
		Help:      "Enrichment stages that produced no annotation before the deadline",
	},
	[]string{"stage"}, // prediction, narrative, institutional
)

// DuplicatesSuppressed - сигналы, отброшенные дедупликацией
var DuplicatesSuppressed = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "pipeline",
		Name:      "duplicates_suppressed_total",
		Help:      "Signals suppressed by the dedup window",
	},
)

// EnrichLatency - полное время обогащения сигнала
var EnrichLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "riskhub",
		Subsystem: "pipeline",
		Name:      "enrich_latency_ms",
		Help:      "Wall time to enrich one signal in milliseconds",
		Buckets:   []float64{1, 5, 25, 50, 100, 150, 200, 250, 500},
	},
)
