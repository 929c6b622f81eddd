package websocket

import (
	"time"

	"riskhub/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeAlert - новый алерт или обновление его состояния исполнения
	MessageTypeAlert MessageType = "alert"

	// MessageTypeAlertDismissed - алерт отклонён (пользователем или исполнением)
	MessageTypeAlertDismissed MessageType = "alertDismissed"

	// MessageTypePortfolioRisk - агрегированный риск портфеля
	// Отправляется с частотой, заданной настройкой risk.portfolio_broadcast_freq
	MessageTypePortfolioRisk MessageType = "portfolioRisk"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// AlertMessage - сообщение с алертом
//
// Отправляется при создании алерта и при каждом изменении
// статуса его исполнения (EXECUTING, EXECUTED, FAILED, ABANDONED).
// Новый подписчик получает backlog активных алертов сразу после
// подключения, если replay включен настройкой.
type AlertMessage struct {
	BaseMessage
	Data models.Alert `json:"data"`
}

// AlertDismissedMessage - сообщение об отклонении алерта
type AlertDismissedMessage struct {
	BaseMessage
	AlertID string `json:"alert_id"`
}

// PortfolioRiskMessage - сообщение с риском портфеля
type PortfolioRiskMessage struct {
	BaseMessage
	Data models.PortfolioRisk `json:"data"`
}

// ============ Фабричные функции для создания сообщений ============

// NewAlertMessage создает сообщение с алертом
func NewAlertMessage(alert models.Alert) *AlertMessage {
	return &AlertMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeAlert,
			Timestamp: time.Now(),
		},
		Data: alert,
	}
}

// NewAlertDismissedMessage создает сообщение об отклонении алерта
func NewAlertDismissedMessage(alertID string) *AlertDismissedMessage {
	return &AlertDismissedMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeAlertDismissed,
			Timestamp: time.Now(),
		},
		AlertID: alertID,
	}
}

// NewPortfolioRiskMessage создает сообщение с риском портфеля
func NewPortfolioRiskMessage(p models.PortfolioRisk) *PortfolioRiskMessage {
	return &PortfolioRiskMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePortfolioRisk,
			Timestamp: time.Now(),
		},
		Data: p,
	}
}
