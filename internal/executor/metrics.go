package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ExecutionsTotal - попытки исполнения по исходам
var ExecutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "executor",
		Name:      "executions_total",
		Help:      "Execution attempts by outcome",
	},
	[]string{"outcome"}, // executed, failed, abandoned, rejected
)

// ExecutionLatency - время от запроса до результата
var ExecutionLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "riskhub",
		Subsystem: "executor",
		Name:      "execution_latency_ms",
		Help:      "Time from execute request to result in milliseconds",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	},
)

// InFlight - текущее количество исполняемых действий
var InFlight = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "riskhub",
		Subsystem: "executor",
		Name:      "in_flight",
		Help:      "Actions currently in EXECUTING state",
	},
)
