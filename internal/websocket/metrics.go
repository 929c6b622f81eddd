package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClientsConnected - подключенные WebSocket клиенты
var ClientsConnected = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "riskhub",
		Subsystem: "websocket",
		Name:      "clients_connected",
		Help:      "Current number of connected WebSocket clients",
	},
)

// MessagesSent - сообщения, поставленные в буферы клиентов
var MessagesSent = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "websocket",
		Name:      "messages_sent_total",
		Help:      "Messages queued to client send buffers",
	},
)

// MessagesDropped - сообщения, потерянные из-за переполнения канала рассылки
var MessagesDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "websocket",
		Name:      "messages_dropped_total",
		Help:      "Broadcast messages dropped because the hub channel was full",
	},
)

// SlowClientsDropped - клиенты, отключенные за переполненный буфер
var SlowClientsDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "riskhub",
		Subsystem: "websocket",
		Name:      "slow_clients_dropped_total",
		Help:      "Clients disconnected because their send buffer overflowed",
	},
)
