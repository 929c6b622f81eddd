package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"riskhub/internal/bus"
	"riskhub/internal/config"
	"riskhub/internal/models"
)

// busPublisher - поверхность шины, нужная движку
type busPublisher interface {
	Publish(evt models.Event) error
	Subscribe(name, pattern string, handler bus.Handler) string
}

// alertMemory - последнее заалерченное состояние позиции
// для edge-triggered алертинга
type alertMemory struct {
	rank   int
	action models.ActionType
}

// Engine - адаптивный риск-движок
//
// Пересчитывает оценку позиции при каждом снимке позиций и при каждом
// релевантном обогащённом сигнале. Новая оценка ЗАМЕЩАЕТ предыдущую.
//
// Алертинг edge-triggered: алерт создаётся при росте уровня риска или
// смене рекомендованного действия, а не на каждом цикле с неизменным
// состоянием. Падение уровня сбрасывает память - повторная эскалация
// алертится снова.
type Engine struct {
	cfg config.RiskConfig
	bus busPublisher
	log *zap.Logger

	mu         sync.RWMutex
	snapshot   models.PositionSnapshot
	snapshotAt time.Time

	// Последний обогащённый сигнал по символу
	signals map[string]models.Signal

	// Скользящие окна цен для компоненты волатильности
	prices map[string]*priceWindow

	assessments map[int64]models.RiskAssessment
	lastAlerted map[int64]alertMemory
	portfolio   models.PortfolioRisk
}

// New создаёт риск-движок
func New(cfg config.RiskConfig, b busPublisher, log *zap.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		bus:         b,
		log:         log,
		signals:     make(map[string]models.Signal),
		prices:      make(map[string]*priceWindow),
		assessments: make(map[int64]models.RiskAssessment),
		lastAlerted: make(map[int64]alertMemory),
	}
}

// Start регистрирует подписки движка на шине
func (e *Engine) Start() {
	e.bus.Subscribe("risk-snapshot", models.EventPositionSnapshot, e.handleSnapshot)
	e.bus.Subscribe("risk-signal", models.EventSignalEnriched, e.handleEnriched)
}

// Run периодически рассылает риск портфеля до отмены контекста
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PortfolioBroadcastFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.publishPortfolio()
		}
	}
}

// ============ Обработчики событий ============

// handleSnapshot принимает полный снимок позиций (full replace)
func (e *Engine) handleSnapshot(evt models.Event) {
	snap, ok := evt.Payload.(models.PositionSnapshot)
	if !ok {
		e.log.Warn("неожиданный payload снимка", zap.String("event_id", evt.ID))
		return
	}

	e.mu.Lock()
	e.snapshot = snap
	e.snapshotAt = time.Now()
	SnapshotAge.Observe(time.Since(snap.TakenAt).Seconds())

	// Наблюдаем цены для волатильности
	live := make(map[int64]bool, len(snap.Positions))
	for _, pos := range snap.Positions {
		live[pos.Ticket] = true
		e.priceWindowFor(pos.Symbol).observe(pos.CurrentPrice)
	}

	// Закрытые позиции покидают оценку и память алертинга
	for ticket := range e.assessments {
		if !live[ticket] {
			delete(e.assessments, ticket)
			delete(e.lastAlerted, ticket)
		}
	}

	alerts := e.recomputeLocked(snap.Positions)
	e.mu.Unlock()

	PositionsTracked.Set(float64(len(snap.Positions)))
	e.publishAlerts(alerts)
	e.publishPortfolio()
}

// handleEnriched пересчитывает позиции символа обогащённого сигнала
func (e *Engine) handleEnriched(evt models.Event) {
	sig, ok := evt.Payload.(models.Signal)
	if !ok {
		e.log.Warn("неожиданный payload сигнала", zap.String("event_id", evt.ID))
		return
	}

	e.mu.Lock()
	e.signals[sig.Symbol] = sig

	var affected []models.Position
	for _, pos := range e.snapshot.Positions {
		if pos.Symbol == sig.Symbol {
			affected = append(affected, pos)
		}
	}
	alerts := e.recomputeLocked(affected)
	e.mu.Unlock()

	e.publishAlerts(alerts)
	if len(affected) > 0 {
		e.publishPortfolio()
	}
}

// ============ Пересчёт ============

// recomputeLocked пересчитывает оценки указанных позиций и возвращает
// сработавшие алерты. Вызывается под e.mu.
func (e *Engine) recomputeLocked(positions []models.Position) []models.Alert {
	var alerts []models.Alert
	stale := time.Since(e.snapshotAt) > e.cfg.SnapshotMaxAge

	for _, pos := range positions {
		score, adverseFlow := e.scorePosition(pos)
		level := classify(score, e.cfg.Thresholds)

		assessment := models.RiskAssessment{
			PositionTicket: pos.Ticket,
			Symbol:         pos.Symbol,
			RiskLevel:      level,
			RiskScore:      score,
			UnrealizedPnl:  pos.UnrealizedPnl(),
			IsStale:        stale,
			ComputedAt:     time.Now(),
		}
		e.assessments[pos.Ticket] = assessment
		AssessmentsComputed.Inc()

		action, params := decideAction(level, assessment.UnrealizedPnl < 0, adverseFlow)

		// Edge-trigger: алертим только смену состояния вверх или смену действия
		prev, seen := e.lastAlerted[pos.Ticket]
		if !seen {
			prev = alertMemory{rank: -1, action: models.ActionDoNothing}
		}
		escalated := level.Rank() > prev.rank
		changed := seen && action != prev.action && level.Rank() >= prev.rank
		e.lastAlerted[pos.Ticket] = alertMemory{rank: level.Rank(), action: action}

		if action == models.ActionDoNothing || (!escalated && !changed) {
			continue
		}

		alerts = append(alerts, e.buildAlert(assessment, action, params))
	}

	e.portfolio = aggregatePortfolio(e.assessments, e.snapshot.Positions, e.cfg.Thresholds)
	return alerts
}

// scorePosition вычисляет взвешенный скор [0,100] и признак
// неблагоприятного институционального потока
func (e *Engine) scorePosition(pos models.Position) (float64, bool) {
	w := e.cfg.Weights

	// Компонента экспозиции: доля позиции от equity
	exposure := 0.0
	if e.snapshot.Equity > 0 {
		exposure = clamp01(pos.Exposure() / (e.snapshot.Equity * e.cfg.ExposureFullShare))
	}

	// Компонента убытка: только убыток повышает риск
	loss := clamp01(-pos.UnrealizedPnlPct() / e.cfg.LossFullPct)

	// Компонента волатильности: диапазон недавних цен
	volatility := 0.0
	if pw, ok := e.prices[pos.Symbol]; ok {
		volatility = clamp01(pw.rangePct() / e.cfg.VolatilityFullPct)
	}

	// Компонента сигналов: неблагоприятные аннотации по символу
	signal, adverseFlow := signalComponent(e.signals, pos)

	total := w.Exposure + w.Loss + w.Volatility + w.Signal
	score := 100 * (w.Exposure*exposure + w.Loss*loss + w.Volatility*volatility + w.Signal*signal) / total
	return score, adverseFlow
}

// signalComponent оценивает риск от последнего обогащённого сигнала
// по символу позиции: считаются только НЕБЛАГОПРИЯТНЫЕ свидетельства
// (направленные против позиции или негативный сентимент)
func signalComponent(signals map[string]models.Signal, pos models.Position) (float64, bool) {
	sig, ok := signals[pos.Symbol]
	if !ok {
		return 0, false
	}

	against := pos.Direction.Opposite()
	contribution := 0.0
	adverseFlow := false

	if sig.Direction == against {
		contribution += sig.BaseConfidence
	}
	if sig.Prediction != nil && sig.Prediction.Direction == against {
		contribution += sig.Prediction.Confidence
	}
	if sig.Narrative != nil && sig.Narrative.Sentiment == models.SentimentNegative {
		contribution += 0.5
	}
	if sig.Institutional != nil && sig.Institutional.FlowDirection == against {
		contribution += sig.Institutional.Confidence
		adverseFlow = true
	}

	return clamp01(contribution / 2), adverseFlow
}

// decideAction - детерминированная таблица решений
//
// Одинаковые входы всегда дают одинаковую рекомендацию; при
// неоднозначности выбирается консервативный вариант.
func decideAction(level models.RiskLevel, losing, adverseFlow bool) (models.ActionType, map[string]float64) {
	switch level {
	case models.RiskCritical:
		if losing {
			return models.ActionFullClose, map[string]float64{"fraction": 1.0}
		}
		return models.ActionPartialClose, map[string]float64{"fraction": 0.5}
	case models.RiskHigh:
		if losing && adverseFlow {
			return models.ActionPartialClose, map[string]float64{"fraction": 0.5}
		}
		return models.ActionAdjustSL, map[string]float64{"tighten_fraction": 0.5}
	case models.RiskMedium:
		return models.ActionAdjustSL, map[string]float64{"tighten_fraction": 0.25}
	default:
		return models.ActionDoNothing, nil
	}
}

// classify переводит скор в уровень по настроенным порогам
func classify(score float64, th config.RiskThresholds) models.RiskLevel {
	switch {
	case score >= th.Critical:
		return models.RiskCritical
	case score >= th.High:
		return models.RiskHigh
	case score >= th.Medium:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func urgencyFor(level models.RiskLevel) int {
	switch level {
	case models.RiskCritical:
		return 5
	case models.RiskHigh:
		return 4
	case models.RiskMedium:
		return 3
	default:
		return 1
	}
}

func (e *Engine) buildAlert(a models.RiskAssessment, action models.ActionType, params map[string]float64) models.Alert {
	return models.Alert{
		ID:             uuid.New().String(),
		PositionTicket: a.PositionTicket,
		Title:          fmt.Sprintf("%s risk escalated to %s", a.Symbol, a.RiskLevel),
		Description: fmt.Sprintf("position %d: score %.1f, unrealized PnL %.2f",
			a.PositionTicket, a.RiskScore, a.UnrealizedPnl),
		Urgency: urgencyFor(a.RiskLevel),
		Recommended: models.RecommendedAction{
			Type:       action,
			Parameters: params,
		},
		CreatedAt: time.Now(),
		ExecState: models.ExecStatePending,
	}
}

// ============ Публикация ============

func (e *Engine) publishAlerts(alerts []models.Alert) {
	for _, alert := range alerts {
		priority := models.PriorityHigh
		if alert.Urgency >= 5 {
			priority = models.PriorityCritical
		}
		evt := models.Event{
			Type:     models.EventAlertCreated,
			Priority: priority,
			Source:   "risk",
			Payload:  alert,
		}
		if err := e.bus.Publish(evt); err != nil {
			e.log.Error("алерт не опубликован",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
			continue
		}
		AlertsRaised.WithLabelValues(string(levelFromUrgency(alert.Urgency))).Inc()
	}
}

func levelFromUrgency(urgency int) models.RiskLevel {
	switch urgency {
	case 5:
		return models.RiskCritical
	case 4:
		return models.RiskHigh
	case 3:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func (e *Engine) publishPortfolio() {
	e.mu.RLock()
	p := e.portfolio
	e.mu.RUnlock()

	PortfolioScore.Set(p.Score)
	evt := models.Event{
		Type:     models.EventPortfolioRisk,
		Priority: models.PriorityNormal,
		Source:   "risk",
		Payload:  p,
	}
	if err := e.bus.Publish(evt); err != nil {
		e.log.Warn("риск портфеля не опубликован", zap.Error(err))
	}
}

// ============ Чтение состояния (для API) ============

// Portfolio возвращает текущий агрегированный риск
func (e *Engine) Portfolio() models.PortfolioRisk {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.portfolio
}

// Assessments возвращает копии текущих оценок позиций.
// Флаг is_stale переоценивается на момент чтения.
func (e *Engine) Assessments() []models.RiskAssessment {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stale := time.Since(e.snapshotAt) > e.cfg.SnapshotMaxAge
	out := make([]models.RiskAssessment, 0, len(e.assessments))
	for _, a := range e.assessments {
		a.IsStale = stale
		out = append(out, a)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (e *Engine) priceWindowFor(symbol string) *priceWindow {
	pw, ok := e.prices[symbol]
	if !ok {
		pw = newPriceWindow(32)
		e.prices[symbol] = pw
	}
	return pw
}
