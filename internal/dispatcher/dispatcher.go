package dispatcher

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"riskhub/internal/bus"
	"riskhub/internal/config"
	"riskhub/internal/models"
)

// busPublisher - поверхность шины, нужная диспетчеру
type busPublisher interface {
	Publish(evt models.Event) error
	Subscribe(name, pattern string, handler bus.Handler) string
}

// AlertStore - durable хранилище алертов (реализуется repository)
type AlertStore interface {
	Create(ctx context.Context, alert models.Alert) error
	MarkDismissed(ctx context.Context, alertID string, at time.Time) error
	UpdateExecution(ctx context.Context, upd models.ExecutionUpdate) error
	Delete(ctx context.Context, alertID string) error
	GetActive(ctx context.Context) ([]models.Alert, error)
}

// AlertBroadcaster - push-канал к UI (реализуется websocket.Hub)
type AlertBroadcaster interface {
	BroadcastAlert(alert models.Alert)
	BroadcastAlertDismissed(alertID string)
	BroadcastPortfolioRisk(p models.PortfolioRisk)
}

// ExecutionPinner - защита от GC алертов с идущим исполнением
// и уведомление шлюза об удалённых алертах (реализуется executor.Gate)
type ExecutionPinner interface {
	IsPending(alertID string) bool
	Forget(alertID string)
}

// Dispatcher - владелец множества алертов
//
// Единственный компонент, мутирующий алерты: создание (из событий
// риск-движка и шлюза исполнения), dismiss (идемпотентный), обновление
// состояния исполнения, сборка мусора. Все потребители получают копии.
//
// Dismissed алерты хранятся до истечения retention (аудит), затем
// удаляются GC - кроме алертов с идущим исполнением.
type Dispatcher struct {
	cfg   config.AlertConfig
	bus   busPublisher
	store AlertStore
	hub   AlertBroadcaster
	pin   ExecutionPinner
	log   *zap.Logger

	mu     sync.RWMutex
	alerts map[string]models.Alert
}

// New создаёт диспетчер алертов.
// store, hub и pin могут быть nil (без персистентности / push / пиннинга).
func New(cfg config.AlertConfig, b busPublisher, store AlertStore, hub AlertBroadcaster, pin ExecutionPinner, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		bus:    b,
		store:  store,
		hub:    hub,
		pin:    pin,
		log:    log,
		alerts: make(map[string]models.Alert),
	}
}

// Start регистрирует подписки диспетчера
func (d *Dispatcher) Start() {
	d.bus.Subscribe("dispatcher-alerts", models.EventAlertCreated, d.handleAlertCreated)
	d.bus.Subscribe("dispatcher-executions", models.EventActionExecuted, d.handleExecutionUpdate)
	d.bus.Subscribe("dispatcher-portfolio", models.EventPortfolioRisk, d.handlePortfolioRisk)
}

// Restore загружает активные алерты из хранилища (тёплый рестарт)
func (d *Dispatcher) Restore(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	alerts, err := d.store.GetActive(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	for _, alert := range alerts {
		d.alerts[alert.ID] = alert
	}
	d.mu.Unlock()

	d.updateActiveGauge()
	d.log.Info("алерты восстановлены из хранилища", zap.Int("count", len(alerts)))
	return nil
}

// Run запускает цикл сборки мусора до отмены контекста
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.collect(ctx)
		}
	}
}

// ============ Обработчики событий ============

func (d *Dispatcher) handleAlertCreated(evt models.Event) {
	alert, ok := evt.Payload.(models.Alert)
	if !ok {
		d.log.Warn("неожиданный payload алерта", zap.String("event_id", evt.ID))
		return
	}

	d.mu.Lock()
	d.alerts[alert.ID] = alert
	d.mu.Unlock()
	d.updateActiveGauge()

	if d.store != nil {
		if err := d.store.Create(context.Background(), alert); err != nil {
			// Хранилище не на критическом пути: алерт живёт в памяти
			d.log.Error("алерт не сохранён", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}
	if d.hub != nil {
		d.hub.BroadcastAlert(alert)
	}

	d.log.Info("алерт принят",
		zap.String("alert_id", alert.ID),
		zap.Int64("ticket", alert.PositionTicket),
		zap.Int("urgency", alert.Urgency))
}

// handleExecutionUpdate подшивает статус исполнения к алерту.
// Успешное исполнение неявно dismiss'ит алерт.
func (d *Dispatcher) handleExecutionUpdate(evt models.Event) {
	upd, ok := evt.Payload.(models.ExecutionUpdate)
	if !ok {
		d.log.Warn("неожиданный payload статуса исполнения", zap.String("event_id", evt.ID))
		return
	}

	d.mu.Lock()
	alert, found := d.alerts[upd.AlertID]
	if !found {
		d.mu.Unlock()
		return
	}
	alert.ExecState = upd.State
	alert.RetryCount = upd.RetryCount
	if upd.ExternalRef != "" {
		alert.ExternalRef = upd.ExternalRef
	}
	alert.FailureReason = upd.FailureReason
	d.alerts[upd.AlertID] = alert
	d.mu.Unlock()

	if d.store != nil {
		if err := d.store.UpdateExecution(context.Background(), upd); err != nil {
			d.log.Error("статус исполнения не сохранён", zap.String("alert_id", upd.AlertID), zap.Error(err))
		}
	}
	if d.hub != nil {
		d.hub.BroadcastAlert(alert)
	}

	if upd.State == models.ExecStateExecuted {
		d.dismiss(upd.AlertID, "execution")
	}
}

func (d *Dispatcher) handlePortfolioRisk(evt models.Event) {
	p, ok := evt.Payload.(models.PortfolioRisk)
	if !ok {
		return
	}
	if d.hub != nil {
		d.hub.BroadcastPortfolioRisk(p)
	}
}

// ============ Операции ============

// Get возвращает копию алерта по id
func (d *Dispatcher) Get(alertID string) (models.Alert, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	alert, ok := d.alerts[alertID]
	return alert, ok
}

// ListActive возвращает активные алерты, новые первыми.
// limit <= 0 использует настроенное видимое окно.
func (d *Dispatcher) ListActive(limit int) []models.Alert {
	if limit <= 0 {
		limit = d.cfg.VisibleLimit
	}

	d.mu.RLock()
	active := make([]models.Alert, 0, len(d.alerts))
	for _, alert := range d.alerts {
		if !alert.Dismissed {
			active = append(active, alert)
		}
	}
	d.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	if len(active) > limit {
		active = active[:limit]
	}
	return active
}

// Dismiss отклоняет алерт. Идемпотентно: повторный dismiss и dismiss
// неизвестного id - no-op без ошибки.
func (d *Dispatcher) Dismiss(alertID string) {
	d.dismiss(alertID, "user")
}

func (d *Dispatcher) dismiss(alertID, source string) {
	now := time.Now()

	d.mu.Lock()
	alert, found := d.alerts[alertID]
	if !found || alert.Dismissed {
		d.mu.Unlock()
		return
	}
	alert.Dismissed = true
	alert.DismissedAt = &now
	d.alerts[alertID] = alert
	d.mu.Unlock()

	AlertsDismissed.WithLabelValues(source).Inc()
	d.updateActiveGauge()

	if d.store != nil {
		if err := d.store.MarkDismissed(context.Background(), alertID, now); err != nil {
			d.log.Error("dismiss не сохранён", zap.String("alert_id", alertID), zap.Error(err))
		}
	}
	if d.hub != nil {
		d.hub.BroadcastAlertDismissed(alertID)
	}

	evt := models.Event{
		Type:     models.EventAlertDismissed,
		Priority: models.PriorityNormal,
		Source:   "dispatcher",
		Payload:  models.Alert{ID: alertID, Dismissed: true, DismissedAt: &now},
	}
	if err := d.bus.Publish(evt); err != nil {
		d.log.Warn("событие dismiss не опубликовано", zap.String("alert_id", alertID), zap.Error(err))
	}
}

// collect удаляет dismissed алерты старше retention.
// Алерт с идущим исполнением пропускается до следующего прохода.
func (d *Dispatcher) collect(ctx context.Context) {
	cutoff := time.Now().Add(-d.cfg.Retention)

	d.mu.Lock()
	var victims []string
	for id, alert := range d.alerts {
		if !alert.Dismissed || alert.DismissedAt == nil || alert.DismissedAt.After(cutoff) {
			continue
		}
		if d.pin != nil && d.pin.IsPending(id) {
			AlertsPinned.Inc()
			continue
		}
		victims = append(victims, id)
	}
	for _, id := range victims {
		delete(d.alerts, id)
	}
	d.mu.Unlock()

	for _, id := range victims {
		AlertsCollected.Inc()
		// Запись исполнения удаляется вместе с алертом
		if d.pin != nil {
			d.pin.Forget(id)
		}
		if d.store != nil {
			if err := d.store.Delete(ctx, id); err != nil {
				d.log.Error("алерт не удалён из хранилища", zap.String("alert_id", id), zap.Error(err))
			}
		}
	}

	if len(victims) > 0 {
		d.log.Debug("сборка мусора алертов", zap.Int("collected", len(victims)))
	}
}

// ActiveBacklog возвращает активные алерты для replay новому
// подписчику stream (если включено настройкой)
func (d *Dispatcher) ActiveBacklog() []models.Alert {
	if !d.cfg.ReplayBacklog {
		return nil
	}
	return d.ListActive(d.cfg.VisibleLimit)
}

func (d *Dispatcher) updateActiveGauge() {
	d.mu.RLock()
	n := 0
	for _, alert := range d.alerts {
		if !alert.Dismissed {
			n++
		}
	}
	d.mu.RUnlock()
	AlertsActive.Set(float64(n))
}
