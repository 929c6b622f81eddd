package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AssessmentsComputed - количество пересчитанных оценок позиций
var AssessmentsComputed = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "risk",
		Name:      "assessments_computed_total",
		Help:      "Total number of per-position risk assessments computed",
	},
)

// AlertsRaised - алерты по уровням риска
var AlertsRaised = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "risk",
		Name:      "alerts_raised_total",
		Help:      "Edge-triggered alerts raised by the risk engine",
	},
	[]string{"level"},
)

// PortfolioScore - текущий агрегированный риск портфеля
var PortfolioScore = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "riskhub",
		Subsystem: "risk",
		Name:      "portfolio_score",
		Help:      "Current aggregated portfolio risk score (0-100)",
	},
)

// PositionsTracked - количество позиций в текущем снимке
var PositionsTracked = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "riskhub",
		Subsystem: "risk",
		Name:      "positions_tracked",
		Help:      "Number of positions in the current snapshot",
	},
)

// SnapshotAge - возраст снимка на момент оценки
var SnapshotAge = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "riskhub",
		Subsystem: "risk",
		Name:      "snapshot_age_seconds",
		Help:      "Age of the position snapshot when an assessment was computed",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	},
)
