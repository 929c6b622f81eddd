package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AlertsActive - активные (не dismissed) алерты
var AlertsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "riskhub",
		Subsystem: "dispatcher",
		Name:      "alerts_active",
		Help:      "Current number of active alerts",
	},
)

// AlertsDismissed - отклонённые алерты
var AlertsDismissed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "dispatcher",
		Name:      "alerts_dismissed_total",
		Help:      "Alerts dismissed by source",
	},
	[]string{"source"}, // user, execution
)

// AlertsCollected - алерты, удалённые сборкой мусора
var AlertsCollected = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "dispatcher",
		Name:      "alerts_collected_total",
		Help:      "Dismissed alerts removed by the GC loop",
	},
)

// AlertsPinned - алерты, пропущенные GC из-за идущего исполнения
var AlertsPinned = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "dispatcher",
		Name:      "alerts_pinned_total",
		Help:      "GC passes that skipped an alert because execution was in flight",
	},
)
