package models

import "time"

// Direction - направление сигнала или позиции
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// Сентимент нарратива
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// PredictionAnnotation - аннотация от прогнозной модели
//
// Confidence - непрозрачный скор [0,1] от внешнего коллаборатора,
// ядро не знает как он вычислен.
type PredictionAnnotation struct {
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Horizon    string    `json:"horizon"`
}

// NarrativeAnnotation - аннотация от нарративного/сентимент генератора
type NarrativeAnnotation struct {
	Sentiment string `json:"sentiment"` // positive, neutral, negative
	Summary   string `json:"summary"`
}

// InstitutionalAnnotation - аннотация от детектора институциональных потоков
type InstitutionalAnnotation struct {
	FlowDirection Direction `json:"flow_direction"`
	Confidence    float64   `json:"confidence"`
	SizeClass     string    `json:"size_class"` // retail, whale, institutional
}

// Signal - торговый сигнал
//
// Создаётся внешним продюсером сырым (без аннотаций), проходит пайплайн
// обогащения и попадает в риск-движок. Каждая аннотация аддитивна и
// независимо опциональна: сигнал может дойти частично обогащённым,
// если коллаборатор медленный или отсутствует.
type Signal struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Direction      Direction `json:"direction"`
	BaseConfidence float64   `json:"base_confidence"` // [0,1]
	Origin         string    `json:"origin"`
	CreatedAt      time.Time `json:"created_at"`

	// Опциональные аннотации (nil = стадия не ответила вовремя)
	Prediction    *PredictionAnnotation    `json:"prediction,omitempty"`
	Narrative     *NarrativeAnnotation     `json:"narrative,omitempty"`
	Institutional *InstitutionalAnnotation `json:"institutional,omitempty"`
}

// AnnotationCount возвращает количество присутствующих аннотаций
func (s *Signal) AnnotationCount() int {
	n := 0
	if s.Prediction != nil {
		n++
	}
	if s.Narrative != nil {
		n++
	}
	if s.Institutional != nil {
		n++
	}
	return n
}
