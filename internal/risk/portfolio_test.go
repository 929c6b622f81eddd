package risk

import (
	"testing"

	"riskhub/internal/config"
	"riskhub/internal/models"
)

func defaultThresholds() config.RiskThresholds {
	return config.RiskThresholds{Medium: 25, High: 50, Critical: 75}
}

func TestAggregatePortfolio_Empty(t *testing.T) {
	p := aggregatePortfolio(map[int64]models.RiskAssessment{}, nil, defaultThresholds())
	if p.Score != 0 || p.Level != models.RiskLow || p.Positions != 0 {
		t.Errorf("пустой портфель: %+v", p)
	}
}

func TestAggregatePortfolio_BetweenMinAndMax(t *testing.T) {
	assessments := map[int64]models.RiskAssessment{
		1: {PositionTicket: 1, RiskScore: 10},
		2: {PositionTicket: 2, RiskScore: 50},
		3: {PositionTicket: 3, RiskScore: 90},
	}
	positions := []models.Position{
		{Ticket: 1, Volume: 1},
		{Ticket: 2, Volume: 5},
		{Ticket: 3, Volume: 2},
	}

	p := aggregatePortfolio(assessments, positions, defaultThresholds())

	// Инвариант: взвешенное среднее между min и max составляющих
	if p.Score < 10 || p.Score > 90 {
		t.Errorf("скор портфеля %v вне [min, max] компонент", p.Score)
	}
	if p.Positions != 3 {
		t.Errorf("Positions = %d, ожидали 3", p.Positions)
	}

	// Проверяем само взвешивание: (10*1 + 50*5 + 90*2) / 8 = 55
	if p.Score != 55 {
		t.Errorf("скор = %v, ожидали 55", p.Score)
	}
	if p.Level != models.RiskHigh {
		t.Errorf("уровень = %s, ожидали high", p.Level)
	}
}

func TestAggregatePortfolio_SinglePosition(t *testing.T) {
	assessments := map[int64]models.RiskAssessment{
		7: {PositionTicket: 7, RiskScore: 42},
	}
	positions := []models.Position{{Ticket: 7, Volume: 3}}

	p := aggregatePortfolio(assessments, positions, defaultThresholds())
	if p.Score != 42 {
		t.Errorf("единственная позиция: скор %v, ожидали 42", p.Score)
	}
}

func TestAggregatePortfolio_ZeroVolumes(t *testing.T) {
	assessments := map[int64]models.RiskAssessment{
		1: {PositionTicket: 1, RiskScore: 20},
		2: {PositionTicket: 2, RiskScore: 40},
	}
	positions := []models.Position{
		{Ticket: 1, Volume: 0},
		{Ticket: 2, Volume: 0},
	}

	// Нулевые объёмы - простое среднее вместо деления на ноль
	p := aggregatePortfolio(assessments, positions, defaultThresholds())
	if p.Score != 30 {
		t.Errorf("скор = %v, ожидали 30", p.Score)
	}
}

func TestPriceWindow_RangePct(t *testing.T) {
	w := newPriceWindow(8)

	if w.rangePct() != 0 {
		t.Error("пустое окно должно давать 0")
	}

	w.observe(100)
	if w.rangePct() != 0 {
		t.Error("одна цена должна давать 0")
	}

	w.observe(95)
	w.observe(105)
	// Диапазон (105-95)/105
	want := 10.0 / 105.0
	if got := w.rangePct(); got != want {
		t.Errorf("rangePct = %v, ожидали %v", got, want)
	}
}

func TestPriceWindow_Eviction(t *testing.T) {
	w := newPriceWindow(3)
	for _, p := range []float64{10, 1000, 100, 101, 102} {
		w.observe(p)
	}
	// 10 и 1000 вытеснены: остались 100, 101, 102
	want := 2.0 / 102.0
	if got := w.rangePct(); got != want {
		t.Errorf("rangePct после вытеснения = %v, ожидали %v", got, want)
	}
}

func TestPriceWindow_IgnoresNonPositive(t *testing.T) {
	w := newPriceWindow(4)
	w.observe(100)
	w.observe(0)
	w.observe(-5)
	w.observe(110)

	want := 10.0 / 110.0
	if got := w.rangePct(); got != want {
		t.Errorf("rangePct = %v, ожидали %v", got, want)
	}
}
