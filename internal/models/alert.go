package models

import "time"

// ActionType - тип рекомендованного действия
type ActionType string

const (
	ActionAdjustSL     ActionType = "adjust_sl"
	ActionAdjustTP     ActionType = "adjust_tp"
	ActionPartialClose ActionType = "partial_close"
	ActionFullClose    ActionType = "full_close"
	ActionDoNothing    ActionType = "do_nothing"
)

// RecommendedAction - рекомендация риск-движка
type RecommendedAction struct {
	Type       ActionType         `json:"action_type"`
	Parameters map[string]float64 `json:"parameters,omitempty"`
}

// ExecutionState - состояние исполнения алерта
//
// Машина состояний: PENDING → EXECUTING → {EXECUTED | FAILED}.
// FAILED возвращается в PENDING (retry), после исчерпания попыток -
// терминальный ABANDONED. Допустимые переходы - в пакете executor.
type ExecutionState string

const (
	ExecStatePending   ExecutionState = "PENDING"
	ExecStateExecuting ExecutionState = "EXECUTING"
	ExecStateExecuted  ExecutionState = "EXECUTED"
	ExecStateFailed    ExecutionState = "FAILED"
	ExecStateAbandoned ExecutionState = "ABANDONED"
)

// Alert - edge-triggered уведомление, требующее действия пользователя
//
// Создаётся риск-движком при переходе оценки на более высокий уровень
// (не при каждом цикле с неизменным состоянием). Мутируется только
// dismissal'ом или успешным исполнением (которое неявно dismiss'ит).
// PositionTicket == 0 означает системный алерт (не привязан к позиции).
type Alert struct {
	ID             string            `json:"alert_id"`
	PositionTicket int64             `json:"position_ticket"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Urgency        int               `json:"urgency"` // [1,5]
	Recommended    RecommendedAction `json:"recommended_action"`
	CreatedAt      time.Time         `json:"created_at"`
	Dismissed      bool              `json:"dismissed"`
	DismissedAt    *time.Time        `json:"dismissed_at,omitempty"`

	// Аннотации исполнения (заполняет Action Executor Gate)
	ExecState     ExecutionState `json:"exec_state"`
	RetryCount    int            `json:"retry_count"`
	FailureReason string         `json:"failure_reason,omitempty"`
	ExternalRef   string         `json:"external_ref,omitempty"`
}

// IsSystem возвращает true для системных алертов (ABANDONED и т.п.)
func (a *Alert) IsSystem() bool {
	return a.PositionTicket == 0
}

// ExecuteRequest - исходящий запрос внешней системе исполнения
type ExecuteRequest struct {
	AlertID        string             `json:"alert_id"`
	PositionTicket int64              `json:"position_ticket"`
	ActionType     ActionType         `json:"action_type"`
	Parameters     map[string]float64 `json:"parameters,omitempty"`
}

// ExecutionUpdate - изменение состояния исполнения алерта
// (публикуется шлюзом исполнения, потребляется диспетчером)
type ExecutionUpdate struct {
	AlertID       string         `json:"alert_id"`
	State         ExecutionState `json:"state"`
	RetryCount    int            `json:"retry_count"`
	ExternalRef   string         `json:"external_ref,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// ExecuteResult - ответ внешней системы исполнения
type ExecuteResult struct {
	AlertID     string `json:"alert_id"`
	Success     bool   `json:"success"`
	ExternalRef string `json:"external_reference,omitempty"`
	Error       string `json:"error,omitempty"`
}
