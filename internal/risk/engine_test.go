package risk

import (
	"sync"
	"testing"
	"time"

	"riskhub/internal/bus"
	"riskhub/internal/config"
	"riskhub/internal/models"
	"riskhub/pkg/logger"
)

// fakeBus записывает публикации движка без реальной шины
type fakeBus struct {
	mu     sync.Mutex
	events []models.Event
}

func (f *fakeBus) Publish(evt models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeBus) Subscribe(name, pattern string, handler bus.Handler) string {
	return ""
}

func (f *fakeBus) byType(eventType string) []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, evt := range f.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		Weights:                config.RiskWeights{Exposure: 30, Loss: 30, Volatility: 20, Signal: 20},
		Thresholds:             config.RiskThresholds{Medium: 25, High: 50, Critical: 75},
		ExposureFullShare:      0.25,
		LossFullPct:            0.10,
		VolatilityFullPct:      0.05,
		SnapshotMaxAge:         30 * time.Second,
		PortfolioBroadcastFreq: time.Second,
	}
}

// lossOnlyConfig делает скор функцией только убытка -
// уровень риска в тестах управляется ценой
func lossOnlyConfig() config.RiskConfig {
	cfg := testRiskConfig()
	cfg.Weights = config.RiskWeights{Loss: 100}
	return cfg
}

func snapshotEvent(equity float64, positions ...models.Position) models.Event {
	return models.Event{
		Type:     models.EventPositionSnapshot,
		Priority: models.PriorityHigh,
		Payload: models.PositionSnapshot{
			Positions: positions,
			Equity:    equity,
			TakenAt:   time.Now(),
		},
	}
}

func longPosition(ticket int64, symbol string, openPrice, currentPrice float64) models.Position {
	return models.Position{
		Ticket:       ticket,
		Symbol:       symbol,
		Direction:    models.DirectionBuy,
		Volume:       1,
		OpenPrice:    openPrice,
		CurrentPrice: currentPrice,
		OpenedAt:     time.Now(),
	}
}

func TestClassify(t *testing.T) {
	th := config.RiskThresholds{Medium: 25, High: 50, Critical: 75}
	tests := []struct {
		score float64
		want  models.RiskLevel
	}{
		{0, models.RiskLow},
		{24.9, models.RiskLow},
		{25, models.RiskMedium},
		{49.9, models.RiskMedium},
		{50, models.RiskHigh},
		{74.9, models.RiskHigh},
		{75, models.RiskCritical},
		{100, models.RiskCritical},
	}

	for _, tt := range tests {
		if got := classify(tt.score, th); got != tt.want {
			t.Errorf("classify(%v) = %s, ожидали %s", tt.score, got, tt.want)
		}
	}
}

func TestDecideAction(t *testing.T) {
	tests := []struct {
		name        string
		level       models.RiskLevel
		losing      bool
		adverseFlow bool
		want        models.ActionType
	}{
		{"critical в убытке", models.RiskCritical, true, false, models.ActionFullClose},
		{"critical в плюсе", models.RiskCritical, false, false, models.ActionPartialClose},
		{"high в убытке при неблагоприятном потоке", models.RiskHigh, true, true, models.ActionPartialClose},
		{"high в убытке без потока", models.RiskHigh, true, false, models.ActionAdjustSL},
		{"high в плюсе", models.RiskHigh, false, true, models.ActionAdjustSL},
		{"medium", models.RiskMedium, true, true, models.ActionAdjustSL},
		{"low", models.RiskLow, true, true, models.ActionDoNothing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := decideAction(tt.level, tt.losing, tt.adverseFlow)
			if got != tt.want {
				t.Errorf("decideAction(%s, %v, %v) = %s, ожидали %s",
					tt.level, tt.losing, tt.adverseFlow, got, tt.want)
			}
		})
	}

	// Детерминизм: одинаковые входы - одинаковый выход
	a1, _ := decideAction(models.RiskHigh, true, true)
	a2, _ := decideAction(models.RiskHigh, true, true)
	if a1 != a2 {
		t.Error("таблица решений должна быть детерминированной")
	}
}

func TestEngine_ScoreWithinBounds(t *testing.T) {
	fb := &fakeBus{}
	e := New(testRiskConfig(), fb, logger.NewNop())

	// Экстремально убыточная позиция с огромной экспозицией
	e.handleSnapshot(snapshotEvent(1000, models.Position{
		Ticket: 1, Symbol: "EURUSD", Direction: models.DirectionBuy,
		Volume: 100, OpenPrice: 100, CurrentPrice: 50,
	}))

	for _, a := range e.Assessments() {
		if a.RiskScore < 0 || a.RiskScore > 100 {
			t.Errorf("скор %v вне [0,100]", a.RiskScore)
		}
	}
}

func TestEngine_EdgeTriggeredAlerting(t *testing.T) {
	fb := &fakeBus{}
	e := New(lossOnlyConfig(), fb, logger.NewNop())

	// Убыток 3% → скор 30 → medium → первый алерт
	e.handleSnapshot(snapshotEvent(10000, longPosition(1, "EURUSD", 100, 97)))
	if got := len(fb.byType(models.EventAlertCreated)); got != 1 {
		t.Fatalf("после эскалации до medium: %d алертов вместо 1", got)
	}

	// Повторные циклы с тем же уровнем - алертов нет
	for i := 0; i < 3; i++ {
		e.handleSnapshot(snapshotEvent(10000, longPosition(1, "EURUSD", 100, 97)))
	}
	if got := len(fb.byType(models.EventAlertCreated)); got != 1 {
		t.Errorf("неизменный уровень переалертился: %d алертов", got)
	}

	// Убыток 6% → скор 60 → high → новый алерт
	e.handleSnapshot(snapshotEvent(10000, longPosition(1, "EURUSD", 100, 94)))
	if got := len(fb.byType(models.EventAlertCreated)); got != 2 {
		t.Errorf("эскалация до high не заалертилась: %d алертов", got)
	}
}

func TestEngine_ReEscalationAlertsAgain(t *testing.T) {
	fb := &fakeBus{}
	e := New(lossOnlyConfig(), fb, logger.NewNop())

	// medium → откат в low → снова medium: два алерта
	e.handleSnapshot(snapshotEvent(10000, longPosition(1, "EURUSD", 100, 97)))
	e.handleSnapshot(snapshotEvent(10000, longPosition(1, "EURUSD", 100, 100)))
	e.handleSnapshot(snapshotEvent(10000, longPosition(1, "EURUSD", 100, 97)))

	if got := len(fb.byType(models.EventAlertCreated)); got != 2 {
		t.Errorf("повторная эскалация: %d алертов вместо 2", got)
	}
}

func TestEngine_ActionChangeTriggersAlert(t *testing.T) {
	fb := &fakeBus{}
	e := New(lossOnlyConfig(), fb, logger.NewNop())

	// high без потока → adjust_sl
	e.handleSnapshot(snapshotEvent(10000, longPosition(1, "EURUSD", 100, 94)))
	alerts := fb.byType(models.EventAlertCreated)
	if len(alerts) != 1 {
		t.Fatalf("ожидали 1 алерт, получили %d", len(alerts))
	}
	if alerts[0].Payload.(models.Alert).Recommended.Type != models.ActionAdjustSL {
		t.Fatalf("ожидали adjust_sl")
	}

	// Неблагоприятный институциональный поток при том же уровне:
	// рекомендация меняется на partial_close → новый алерт
	e.handleEnriched(models.Event{
		Type: models.EventSignalEnriched,
		Payload: models.Signal{
			ID: "sig-1", Symbol: "EURUSD", Direction: models.DirectionBuy,
			Institutional: &models.InstitutionalAnnotation{
				FlowDirection: models.DirectionSell, Confidence: 0.9, SizeClass: "institutional",
			},
		},
	})

	alerts = fb.byType(models.EventAlertCreated)
	if len(alerts) != 2 {
		t.Fatalf("смена действия не заалертилась: %d алертов", len(alerts))
	}
	if alerts[1].Payload.(models.Alert).Recommended.Type != models.ActionPartialClose {
		t.Errorf("ожидали partial_close, получили %s", alerts[1].Payload.(models.Alert).Recommended.Type)
	}
}

func TestEngine_CriticalAlertHasMaxUrgency(t *testing.T) {
	fb := &fakeBus{}
	e := New(lossOnlyConfig(), fb, logger.NewNop())

	// Убыток 10% → скор 100 → critical
	e.handleSnapshot(snapshotEvent(10000, longPosition(1, "EURUSD", 100, 90)))

	alerts := fb.byType(models.EventAlertCreated)
	if len(alerts) != 1 {
		t.Fatalf("ожидали 1 алерт, получили %d", len(alerts))
	}
	alert := alerts[0].Payload.(models.Alert)
	if alert.Urgency != 5 {
		t.Errorf("urgency = %d, ожидали 5", alert.Urgency)
	}
	if alert.Recommended.Type != models.ActionFullClose {
		t.Errorf("critical в убытке должен рекомендовать full_close, получили %s", alert.Recommended.Type)
	}
	if alerts[0].Priority != models.PriorityCritical {
		t.Errorf("critical алерт должен публиковаться с приоритетом critical")
	}
}

func TestEngine_ClosedPositionsDropped(t *testing.T) {
	fb := &fakeBus{}
	e := New(testRiskConfig(), fb, logger.NewNop())

	e.handleSnapshot(snapshotEvent(10000,
		longPosition(1, "EURUSD", 100, 99),
		longPosition(2, "BTCUSDT", 50000, 49000),
	))
	if got := len(e.Assessments()); got != 2 {
		t.Fatalf("ожидали 2 оценки, получили %d", got)
	}

	// Позиция 2 закрыта - полный снимок замещает состояние
	e.handleSnapshot(snapshotEvent(10000, longPosition(1, "EURUSD", 100, 99)))
	assessments := e.Assessments()
	if len(assessments) != 1 {
		t.Fatalf("закрытая позиция осталась в оценках: %d", len(assessments))
	}
	if assessments[0].PositionTicket != 1 {
		t.Errorf("осталась не та позиция: %d", assessments[0].PositionTicket)
	}
}

func TestEngine_StaleSnapshotFlag(t *testing.T) {
	cfg := testRiskConfig()
	cfg.SnapshotMaxAge = 10 * time.Millisecond
	fb := &fakeBus{}
	e := New(cfg, fb, logger.NewNop())

	e.handleSnapshot(snapshotEvent(10000, longPosition(1, "EURUSD", 100, 99)))
	time.Sleep(25 * time.Millisecond)

	for _, a := range e.Assessments() {
		if !a.IsStale {
			t.Error("оценка по устаревшему снимку должна быть помечена is_stale")
		}
	}
}

func TestSignalComponent_AdverseEvidenceOnly(t *testing.T) {
	pos := models.Position{Symbol: "EURUSD", Direction: models.DirectionBuy}

	// Сигнал в ту же сторону - риска нет
	friendly := map[string]models.Signal{
		"EURUSD": {Symbol: "EURUSD", Direction: models.DirectionBuy, BaseConfidence: 0.9},
	}
	if risk, _ := signalComponent(friendly, pos); risk != 0 {
		t.Errorf("попутный сигнал дал риск %v", risk)
	}

	// Сигнал против позиции с негативным нарративом и встречным потоком
	adverse := map[string]models.Signal{
		"EURUSD": {
			Symbol: "EURUSD", Direction: models.DirectionSell, BaseConfidence: 0.8,
			Narrative:     &models.NarrativeAnnotation{Sentiment: models.SentimentNegative},
			Institutional: &models.InstitutionalAnnotation{FlowDirection: models.DirectionSell, Confidence: 0.7},
		},
	}
	risk, adverseFlow := signalComponent(adverse, pos)
	if risk <= 0 || risk > 1 {
		t.Errorf("риск %v вне (0,1]", risk)
	}
	if !adverseFlow {
		t.Error("встречный институциональный поток должен быть отмечен")
	}

	// Нет сигнала по символу - ноль
	if risk, _ := signalComponent(map[string]models.Signal{}, pos); risk != 0 {
		t.Errorf("без сигнала риск должен быть 0, получили %v", risk)
	}
}
