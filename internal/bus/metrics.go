package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики шины событий
// ============================================================
//
// Мониторинг:
// - Счётчики публикаций/доставок по типам и приоритетам
// - Отказы Publish (backpressure) и потери медленных подписчиков
// - Глубина очередей по уровням приоритета
// - Паники обработчиков (изоляция сбоев)

// EventsPublished - количество принятых публикаций
var EventsPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "bus",
		Name:      "events_published_total",
		Help:      "Total number of events accepted by Publish",
	},
	[]string{"type", "priority"},
)

// EventsDelivered - количество доставленных подписчикам событий
var EventsDelivered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "bus",
		Name:      "events_delivered_total",
		Help:      "Total number of events delivered to subscriber queues",
	},
	[]string{"priority"},
)

// EventsDropped - потерянные события
var EventsDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "bus",
		Name:      "events_dropped_total",
		Help:      "Number of events dropped",
	},
	[]string{"reason"}, // backpressure, slow_subscriber, duplicate
)

// QueueDepth - текущая глубина очереди на уровень приоритета
var QueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "riskhub",
		Subsystem: "bus",
		Name:      "queue_depth",
		Help:      "Current depth of the priority queue",
	},
	[]string{"priority"},
)

// HandlerPanics - паники обработчиков подписчиков
var HandlerPanics = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "bus",
		Name:      "handler_panics_total",
		Help:      "Number of recovered subscriber handler panics",
	},
	[]string{"subscriber"},
)

// DispatchLatency - время от Publish до передачи в очередь подписчика
var DispatchLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "riskhub",
		Subsystem: "bus",
		Name:      "dispatch_latency_ms",
		Help:      "Latency from publish to subscriber queue handoff in milliseconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 25},
	},
)

// ActiveSubscriptions - текущее количество подписок
var ActiveSubscriptions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "riskhub",
		Subsystem: "bus",
		Name:      "active_subscriptions",
		Help:      "Current number of active subscriptions",
	},
)

// ============ Вспомогательные функции ============

// RecordDrop записывает потерянное событие
func RecordDrop(reason string) {
	EventsDropped.WithLabelValues(reason).Inc()
}

// RecordPanic записывает панику обработчика
func RecordPanic(subscriber string) {
	HandlerPanics.WithLabelValues(subscriber).Inc()
}
