package risk

import (
	"time"

	"riskhub/internal/config"
	"riskhub/internal/models"
)

// priceWindow - кольцевое окно последних цен символа
// для оценки волатильности (размах диапазона)
type priceWindow struct {
	buf    []float64
	head   int
	filled bool
}

func newPriceWindow(capacity int) *priceWindow {
	return &priceWindow{buf: make([]float64, capacity)}
}

func (w *priceWindow) observe(price float64) {
	if price <= 0 {
		return
	}
	w.buf[w.head] = price
	w.head = (w.head + 1) % len(w.buf)
	if w.head == 0 {
		w.filled = true
	}
}

// rangePct возвращает размах окна в долях от последней цены
func (w *priceWindow) rangePct() float64 {
	size := w.head
	if w.filled {
		size = len(w.buf)
	}
	if size < 2 {
		return 0
	}

	lo, hi := w.buf[0], w.buf[0]
	for i := 1; i < size; i++ {
		if w.buf[i] < lo {
			lo = w.buf[i]
		}
		if w.buf[i] > hi {
			hi = w.buf[i]
		}
	}

	last := w.buf[(w.head-1+len(w.buf))%len(w.buf)]
	if last == 0 {
		return 0
	}
	return (hi - lo) / last
}

// aggregatePortfolio сводит оценки позиций в риск портфеля
//
// Взвешенное по объёму среднее за один проход - O(n) по количеству
// позиций. Взвешенное среднее всегда лежит между минимальным и
// максимальным скором составляющих.
func aggregatePortfolio(assessments map[int64]models.RiskAssessment, positions []models.Position, th config.RiskThresholds) models.PortfolioRisk {
	if len(assessments) == 0 {
		return models.PortfolioRisk{
			Score:      0,
			Level:      models.RiskLow,
			Positions:  0,
			ComputedAt: time.Now(),
		}
	}

	var weighted, totalWeight, plain float64
	count := 0
	for _, pos := range positions {
		a, ok := assessments[pos.Ticket]
		if !ok {
			continue
		}
		weighted += a.RiskScore * pos.Volume
		totalWeight += pos.Volume
		plain += a.RiskScore
		count++
	}

	var score float64
	switch {
	case totalWeight > 0:
		score = weighted / totalWeight
	case count > 0:
		// Нулевые объёмы - откат к простому среднему
		score = plain / float64(count)
	}

	return models.PortfolioRisk{
		Score:      score,
		Level:      classify(score, th),
		Positions:  count,
		ComputedAt: time.Now(),
	}
}
