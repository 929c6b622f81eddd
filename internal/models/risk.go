package models

import "time"

// RiskLevel - классификация риска
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank возвращает числовой ранг для сравнения уровней
// (edge-triggered алертинг срабатывает только при росте ранга)
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return -1
	}
}

// RiskAssessment - оценка риска одной позиции
//
// Пересчитывается при каждом обновлении снимка или приходе релевантного
// обогащённого сигнала. Новая оценка замещает (не накапливает) предыдущую
// для того же тикета.
type RiskAssessment struct {
	PositionTicket int64     `json:"position_ticket"`
	Symbol         string    `json:"symbol"`
	RiskLevel      RiskLevel `json:"risk_level"`
	RiskScore      float64   `json:"risk_score"` // [0,100]
	UnrealizedPnl  float64   `json:"unrealized_pnl"`
	IsStale        bool      `json:"is_stale"` // снимок старше допустимого возраста
	ComputedAt     time.Time `json:"computed_at"`
}

// PortfolioRisk - агрегированный риск портфеля
//
// Инвариант: Score лежит между min и max RiskScore составляющих,
// взвешенных по объёму. Пересчитывается при любом изменении
// составляющей оценки.
type PortfolioRisk struct {
	Score      float64   `json:"score"` // [0,100]
	Level      RiskLevel `json:"level"`
	Positions  int       `json:"positions"`
	ComputedAt time.Time `json:"computed_at"`
}
