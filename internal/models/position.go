package models

import "time"

// Position - открытая позиция из снимка брокера
//
// Ядро координации НЕ владеет истиной о позициях: снимок read-only,
// периодически заменяется целиком (full replace, не дельты).
// Все потребители получают value-копии, общих мутабельных объектов нет.
type Position struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"open_price"`
	CurrentPrice float64   `json:"current_price"`
	OpenedAt     time.Time `json:"opened_at"`
}

// UnrealizedPnl возвращает нереализованный PNL в валюте счёта
func (p Position) UnrealizedPnl() float64 {
	diff := p.CurrentPrice - p.OpenPrice
	if p.Direction == DirectionSell {
		diff = -diff
	}
	return diff * p.Volume
}

// UnrealizedPnlPct возвращает нереализованный PNL в долях от цены входа
func (p Position) UnrealizedPnlPct() float64 {
	if p.OpenPrice == 0 {
		return 0
	}
	diff := (p.CurrentPrice - p.OpenPrice) / p.OpenPrice
	if p.Direction == DirectionSell {
		diff = -diff
	}
	return diff
}

// Exposure возвращает текущую номинальную стоимость позиции
func (p Position) Exposure() float64 {
	return p.Volume * p.CurrentPrice
}

// PositionSnapshot - полный снимок позиций от брокерского коллаборатора
//
// Семантика full replace: предыдущий снимок полностью замещается.
type PositionSnapshot struct {
	Positions []Position `json:"positions"`
	Equity    float64    `json:"equity"` // общий equity счёта
	TakenAt   time.Time  `json:"taken_at"`
}
