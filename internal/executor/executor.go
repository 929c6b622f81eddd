package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"riskhub/internal/bus"
	"riskhub/internal/config"
	"riskhub/internal/models"
	"riskhub/pkg/retry"
)

// Ошибки шлюза исполнения
var (
	ErrAlreadyExecuting = errors.New("executor: action already executing")
	ErrAlreadyExecuted  = errors.New("executor: action already executed")
	ErrAbandoned        = errors.New("executor: action abandoned")
	ErrExecutionFailed  = errors.New("executor: execution failed")
	ErrResultTimeout    = errors.New("executor: timed out waiting for result")
	ErrNotExecutable    = errors.New("executor: recommended action is not executable")
)

// busPublisher - поверхность шины, нужная шлюзу
type busPublisher interface {
	Publish(evt models.Event) error
	Subscribe(name, pattern string, handler bus.Handler) string
}

// record - состояние исполнения одного алерта
type record struct {
	state    models.ExecutionState
	retries  int
	resultCh chan models.ExecuteResult
}

// Gate - шлюз исполнения рекомендованных действий
//
// Гарантия at-most-once: переход PENDING → EXECUTING атомарен под
// мьютексом, из N конкурентных запросов на один алерт побеждает ровно
// один, остальные получают ErrAlreadyExecuting / ErrAlreadyExecuted.
//
// Сам шлюз НЕ исполняет действия: он публикует action.execute_request
// и коррелирует ответ action.execute_result по alert_id. Неудача
// возвращает состояние в PENDING (пользователь может повторить);
// исчерпание попыток - терминальный ABANDONED + системный CRITICAL
// алерт.
type Gate struct {
	cfg config.ExecutorConfig
	bus busPublisher
	log *zap.Logger

	mu      sync.Mutex
	records map[string]*record
}

// New создаёт шлюз исполнения
func New(cfg config.ExecutorConfig, b busPublisher, log *zap.Logger) *Gate {
	return &Gate{
		cfg:     cfg,
		bus:     b,
		log:     log,
		records: make(map[string]*record),
	}
}

// Start регистрирует подписку на результаты исполнения
func (g *Gate) Start() {
	g.bus.Subscribe("executor-results", models.EventExecuteResult, g.handleResult)
}

// Execute запускает исполнение рекомендованного действия алерта
//
// Блокируется до результата, таймаута или отмены контекста.
func (g *Gate) Execute(ctx context.Context, alert models.Alert) (models.ExecuteResult, error) {
	var zero models.ExecuteResult

	if alert.Recommended.Type == models.ActionDoNothing || alert.Recommended.Type == "" {
		ExecutionsTotal.WithLabelValues("rejected").Inc()
		return zero, ErrNotExecutable
	}

	// CAS PENDING → EXECUTING: единственная точка входа в исполнение
	g.mu.Lock()
	rec, ok := g.records[alert.ID]
	if !ok {
		rec = &record{state: models.ExecStatePending}
		g.records[alert.ID] = rec
	}
	switch rec.state {
	case models.ExecStateExecuting:
		g.mu.Unlock()
		ExecutionsTotal.WithLabelValues("rejected").Inc()
		return zero, ErrAlreadyExecuting
	case models.ExecStateExecuted:
		g.mu.Unlock()
		ExecutionsTotal.WithLabelValues("rejected").Inc()
		return zero, ErrAlreadyExecuted
	case models.ExecStateAbandoned:
		g.mu.Unlock()
		ExecutionsTotal.WithLabelValues("rejected").Inc()
		return zero, ErrAbandoned
	}
	g.transition(rec, alert.ID, models.ExecStateExecuting)
	resultCh := make(chan models.ExecuteResult, 1)
	rec.resultCh = resultCh
	retries := rec.retries
	g.mu.Unlock()

	InFlight.Inc()
	defer InFlight.Dec()

	g.publishUpdate(models.ExecutionUpdate{
		AlertID:    alert.ID,
		State:      models.ExecStateExecuting,
		RetryCount: retries,
	})

	started := time.Now()
	if err := g.publishRequest(ctx, alert); err != nil {
		return zero, g.fail(alert, fmt.Sprintf("request not published: %v", err))
	}

	timeout := time.NewTimer(g.cfg.ResultTimeout)
	defer timeout.Stop()

	select {
	case result := <-resultCh:
		ExecutionLatency.Observe(float64(time.Since(started).Microseconds()) / 1000.0)
		if !result.Success {
			return zero, g.fail(alert, result.Error)
		}
		return result, g.succeed(alert, result)
	case <-timeout.C:
		return zero, g.fail(alert, ErrResultTimeout.Error())
	case <-ctx.Done():
		return zero, g.fail(alert, ctx.Err().Error())
	}
}

// publishRequest отправляет запрос внешней системе через шину
func (g *Gate) publishRequest(ctx context.Context, alert models.Alert) error {
	evt := models.Event{
		Type:     models.EventExecuteRequest,
		Priority: models.PriorityCritical,
		Source:   "executor",
		Payload: models.ExecuteRequest{
			AlertID:        alert.ID,
			PositionTicket: alert.PositionTicket,
			ActionType:     alert.Recommended.Type,
			Parameters:     alert.Recommended.Parameters,
		},
	}

	cfg := retry.AggressiveConfig()
	cfg.RetryIf = func(err error) bool {
		return errors.Is(err, bus.ErrBackpressure)
	}
	return retry.Do(ctx, func() error {
		return g.bus.Publish(evt)
	}, cfg)
}

// handleResult коррелирует ответ внешней системы с ожидающим Execute
func (g *Gate) handleResult(evt models.Event) {
	result, ok := evt.Payload.(models.ExecuteResult)
	if !ok {
		g.log.Warn("неожиданный payload результата", zap.String("event_id", evt.ID))
		return
	}

	g.mu.Lock()
	rec, ok := g.records[result.AlertID]
	if !ok || rec.state != models.ExecStateExecuting || rec.resultCh == nil {
		g.mu.Unlock()
		// Опоздавший или неизвестный результат - игнорируем
		g.log.Debug("результат без ожидающего исполнения",
			zap.String("alert_id", result.AlertID))
		return
	}
	ch := rec.resultCh
	rec.resultCh = nil
	g.mu.Unlock()

	ch <- result
}

// transition переводит запись через машину состояний под мьютексом шлюза.
// Недопустимый переход - программная ошибка: состояние не меняется
func (g *Gate) transition(rec *record, alertID string, to models.ExecutionState) {
	if !CanTransition(rec.state, to) {
		g.log.Error("недопустимый переход состояния исполнения",
			zap.String("alert_id", alertID),
			zap.String("from", string(rec.state)),
			zap.String("to", string(to)))
		return
	}
	rec.state = to
}

// succeed фиксирует успешное исполнение (терминальное EXECUTED)
func (g *Gate) succeed(alert models.Alert, result models.ExecuteResult) error {
	g.mu.Lock()
	rec := g.records[alert.ID]
	g.transition(rec, alert.ID, models.ExecStateExecuted)
	retries := rec.retries
	g.mu.Unlock()

	ExecutionsTotal.WithLabelValues("executed").Inc()
	g.log.Info("действие исполнено",
		zap.String("alert_id", alert.ID),
		zap.String("action", string(alert.Recommended.Type)),
		zap.String("external_ref", result.ExternalRef))

	g.publishUpdate(models.ExecutionUpdate{
		AlertID:     alert.ID,
		State:       models.ExecStateExecuted,
		RetryCount:  retries,
		ExternalRef: result.ExternalRef,
	})
	return nil
}

// fail фиксирует неудачу: через промежуточное FAILED в PENDING
// (возможен retry) либо терминальный ABANDONED
func (g *Gate) fail(alert models.Alert, reason string) error {
	g.mu.Lock()
	rec := g.records[alert.ID]
	g.transition(rec, alert.ID, models.ExecStateFailed)
	rec.retries++
	retries := rec.retries
	abandoned := retries > g.cfg.MaxRetries
	if abandoned {
		g.transition(rec, alert.ID, models.ExecStateAbandoned)
	} else {
		g.transition(rec, alert.ID, models.ExecStatePending)
	}
	rec.resultCh = nil
	g.mu.Unlock()

	// Потребители видят FAILED до итогового PENDING/ABANDONED
	g.publishUpdate(models.ExecutionUpdate{
		AlertID:       alert.ID,
		State:         models.ExecStateFailed,
		RetryCount:    retries,
		FailureReason: reason,
	})

	if abandoned {
		ExecutionsTotal.WithLabelValues("abandoned").Inc()
		g.log.Error("исполнение прекращено после исчерпания попыток",
			zap.String("alert_id", alert.ID),
			zap.Int("attempts", retries),
			zap.String("reason", reason))

		g.publishUpdate(models.ExecutionUpdate{
			AlertID:       alert.ID,
			State:         models.ExecStateAbandoned,
			RetryCount:    retries,
			FailureReason: reason,
		})
		g.publishAbandonedAlert(alert, reason, retries)
		return fmt.Errorf("%w: %s", ErrAbandoned, reason)
	}

	ExecutionsTotal.WithLabelValues("failed").Inc()
	g.log.Warn("исполнение не удалось",
		zap.String("alert_id", alert.ID),
		zap.Int("attempt", retries),
		zap.Int("max_retries", g.cfg.MaxRetries),
		zap.String("reason", reason))

	g.publishUpdate(models.ExecutionUpdate{
		AlertID:       alert.ID,
		State:         models.ExecStatePending,
		RetryCount:    retries,
		FailureReason: reason,
	})
	return fmt.Errorf("%w: %s (attempt %d/%d)", ErrExecutionFailed, reason, retries, g.cfg.MaxRetries)
}

// publishAbandonedAlert создаёт системный CRITICAL алерт о прекращении
func (g *Gate) publishAbandonedAlert(origin models.Alert, reason string, attempts int) {
	alert := models.Alert{
		ID:             uuid.New().String(),
		PositionTicket: 0, // системный
		Title:          fmt.Sprintf("Execution abandoned: %s", origin.Title),
		Description: fmt.Sprintf("action %s for alert %s abandoned after %d attempts: %s",
			origin.Recommended.Type, origin.ID, attempts, reason),
		Urgency:     5,
		Recommended: models.RecommendedAction{Type: models.ActionDoNothing},
		CreatedAt:   time.Now(),
		ExecState:   models.ExecStatePending,
	}

	evt := models.Event{
		Type:     models.EventAlertCreated,
		Priority: models.PriorityCritical,
		Source:   "executor",
		Payload:  alert,
	}
	if err := g.bus.Publish(evt); err != nil {
		g.log.Error("системный алерт не опубликован", zap.Error(err))
	}
}

func (g *Gate) publishUpdate(upd models.ExecutionUpdate) {
	evt := models.Event{
		Type:     models.EventActionExecuted,
		Priority: models.PriorityHigh,
		Source:   "executor",
		Payload:  upd,
	}
	if err := g.bus.Publish(evt); err != nil {
		g.log.Warn("статус исполнения не опубликован",
			zap.String("alert_id", upd.AlertID),
			zap.Error(err))
	}
}

// IsPending возвращает true, если по алерту идёт исполнение.
// Диспетчер не собирает такие алерты в мусор.
func (g *Gate) IsPending(alertID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[alertID]
	return ok && rec.state == models.ExecStateExecuting
}

// Forget удаляет запись исполнения собранного алерта: записи не
// переживают свои алерты. EXECUTING защищён пиннингом и сюда не
// попадает, но проверяется на случай гонки со стартом исполнения.
func (g *Gate) Forget(alertID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[alertID]
	if !ok || rec.state == models.ExecStateExecuting {
		return
	}
	delete(g.records, alertID)
}

// StateOf возвращает состояние исполнения и количество неудач
func (g *Gate) StateOf(alertID string) (models.ExecutionState, int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[alertID]
	if !ok {
		return "", 0, false
	}
	return rec.state, rec.retries, true
}
