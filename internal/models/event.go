package models

import "time"

// Priority - уровень приоритета события на шине
//
// Порядок важен: меньшее значение = выше приоритет.
// Диспетчер шины всегда выгребает CRITICAL раньше HIGH,
// HIGH раньше NORMAL и т.д.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow

	// NumPriorities - количество уровней (размер массива очередей)
	NumPriorities = 4
)

// String возвращает имя приоритета для логов и метрик
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Valid проверяет что приоритет попадает в допустимый диапазон
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

// Типы событий (namespaced строки)
//
// Входящие от внешних коллабораторов:
// - signal.created: сырой сигнал от продюсера
// - signal.prediction / signal.narrative / signal.institutional: данные обогащения
// - position.snapshot: полный снимок позиций от брокера (full replace)
// - action.execute_result: результат исполнения от внешней системы
//
// Исходящие от ядра:
// - signal.enriched: сигнал после пайплайна обогащения
// - alert.created / alert.dismissed: жизненный цикл алертов
// - risk.portfolio: агрегированный риск портфеля
// - action.execute_request: запрос на исполнение действия
// - action.executed: изменение статуса исполнения алерта
// - bus.backpressure: индикатор деградации для продюсеров
const (
	EventSignalCreated       = "signal.created"
	EventSignalEnriched      = "signal.enriched"
	EventSignalPrediction    = "signal.prediction"
	EventSignalNarrative     = "signal.narrative"
	EventSignalInstitutional = "signal.institutional"
	EventPositionSnapshot    = "position.snapshot"
	EventAlertCreated        = "alert.created"
	EventAlertDismissed      = "alert.dismissed"
	EventPortfolioRisk       = "risk.portfolio"
	EventExecuteRequest      = "action.execute_request"
	EventExecuteResult       = "action.execute_result"
	EventActionExecuted      = "action.executed"
	EventBusBackpressure     = "bus.backpressure"
)

// Event - единица передачи данных между компонентами
//
// Иммутабельно после публикации: шина и подписчики никогда не изменяют
// опубликованное событие. Идентичность - ID; шина отбрасывает повторную
// публикацию того же ID (at-least-once redelivery от продюсеров).
//
// Payload - типизированный указатель (*Signal, *PositionSnapshot, *Alert...),
// подписчик делает type assertion по Type.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Priority  Priority    `json:"priority"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
}
