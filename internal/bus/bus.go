package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"riskhub/internal/config"
	"riskhub/internal/models"
)

// Ошибки шины
var (
	// ErrBackpressure - очередь уровня приоритета заполнена.
	// Publish возвращает ошибку немедленно (fail fast), не блокируясь:
	// решение о retry принимает издатель.
	ErrBackpressure = errors.New("bus: priority queue full")

	// ErrBusClosed - шина остановлена
	ErrBusClosed = errors.New("bus: closed")

	// ErrInvalidPriority - приоритет вне диапазона
	ErrInvalidPriority = errors.New("bus: invalid priority")
)

// Handler - обработчик события подписчика
//
// Вызывается последовательно на выделенной горутине подписки:
// события одной подписки никогда не обрабатываются параллельно,
// порядок внутри уровня приоритета сохраняется (FIFO).
type Handler func(evt models.Event)

// subscription - одна подписка с выделенным воркером
type subscription struct {
	id      string
	name    string // имя подписчика для логов и метрик
	pattern string
	handler Handler

	// Буфер доставки. Переполнение = медленный подписчик,
	// событие теряется (drop + метрика), шина не блокируется.
	queue chan models.Event
}

// Bus - шина событий с приоритетной доставкой
//
// Архитектура:
// - 4 очереди по уровням приоритета + один диспетчер
// - Строгий порядок: CRITICAL полностью опустошается раньше HIGH и т.д.
// - FIFO внутри уровня
// - Каждая подписка получает выделенную горутину и буфер:
//   паника или медленный обработчик изолированы от остальных
//
// Поток данных:
// Publish → queue[priority] → dispatcher → sub.queue[N] → worker[N] → handler
type Bus struct {
	cfg config.BusConfig
	log *zap.Logger

	queues [models.NumPriorities]chan models.Event

	// Сигнал диспетчеру "появилось событие". Буфер 1: потерянный
	// сигнал невозможен, лишние схлопываются.
	notify chan struct{}

	subs   map[string]*subscription
	subsMu sync.RWMutex

	history *History

	// Дедупликация публикаций по event.ID (повтор = success no-op).
	// Ограниченное множество: FIFO-вытеснение старейших id.
	seenMu   sync.Mutex
	seen     map[string]struct{}
	seenFifo []string
	seenCap  int

	// ОПТИМИЗАЦИЯ: atomic флаг вместо mutex для быстрой проверки закрытия
	closed int32

	// Rate-limit деградационного события при backpressure (unix nano)
	lastBackpressure int64

	wg sync.WaitGroup
}

// New создаёт шину событий
func New(cfg config.BusConfig, log *zap.Logger) *Bus {
	b := &Bus{
		cfg:     cfg,
		log:     log,
		notify:  make(chan struct{}, 1),
		subs:    make(map[string]*subscription),
		history: NewHistory(cfg.HistorySize),
		seen:    make(map[string]struct{}),
		seenCap: 4096,
	}
	for i := range b.queues {
		b.queues[i] = make(chan models.Event, cfg.QueueSize)
	}
	return b
}

// History возвращает кольцевой буфер последних событий
func (b *Bus) History() *History {
	return b.history
}

// Publish публикует событие в очередь его уровня приоритета
//
// Не блокируется: при заполненной очереди возвращает ErrBackpressure.
// Повторная публикация события с уже виденным ID - no-op (nil).
// ID и Timestamp заполняются, если издатель их не задал.
func (b *Bus) Publish(evt models.Event) error {
	if atomic.LoadInt32(&b.closed) == 1 {
		return ErrBusClosed
	}
	if !evt.Priority.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, evt.Priority)
	}

	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	// Дубликат по ID внутри окна - успех без эффекта
	if !b.markSeen(evt.ID) {
		RecordDrop("duplicate")
		return nil
	}

	select {
	case b.queues[evt.Priority] <- evt:
	default:
		// Виденным считается только поставленное в очередь событие:
		// иначе retry после backpressure схлопнулся бы в дубликат
		b.forgetSeen(evt.ID)
		RecordDrop("backpressure")
		b.emitBackpressure(evt.Priority)
		return fmt.Errorf("%w: priority=%s type=%s", ErrBackpressure, evt.Priority, evt.Type)
	}

	EventsPublished.WithLabelValues(evt.Type, evt.Priority.String()).Inc()
	QueueDepth.WithLabelValues(evt.Priority.String()).Set(float64(len(b.queues[evt.Priority])))

	// Будим диспетчер (non-blocking: сигнал уже стоит - достаточно)
	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// markSeen регистрирует ID; false если уже встречался
func (b *Bus) markSeen(id string) bool {
	b.seenMu.Lock()
	defer b.seenMu.Unlock()

	if _, dup := b.seen[id]; dup {
		return false
	}
	b.seen[id] = struct{}{}
	b.seenFifo = append(b.seenFifo, id)
	if len(b.seenFifo) > b.seenCap {
		oldest := b.seenFifo[0]
		b.seenFifo = b.seenFifo[1:]
		delete(b.seen, oldest)
	}
	return true
}

// forgetSeen откатывает регистрацию ID для события, не попавшего в очередь
func (b *Bus) forgetSeen(id string) {
	b.seenMu.Lock()
	defer b.seenMu.Unlock()

	if _, ok := b.seen[id]; !ok {
		return
	}
	delete(b.seen, id)
	// ID только что добавлен, поэтому ищем с хвоста
	for i := len(b.seenFifo) - 1; i >= 0; i-- {
		if b.seenFifo[i] == id {
			b.seenFifo = append(b.seenFifo[:i], b.seenFifo[i+1:]...)
			break
		}
	}
}

// emitBackpressure публикует CRITICAL событие деградации (не чаще раза в секунду)
func (b *Bus) emitBackpressure(rejected models.Priority) {
	now := time.Now().UnixNano()
	last := atomic.LoadInt64(&b.lastBackpressure)
	if now-last < int64(time.Second) || !atomic.CompareAndSwapInt64(&b.lastBackpressure, last, now) {
		return
	}

	evt := models.Event{
		ID:        uuid.New().String(),
		Type:      models.EventBusBackpressure,
		Priority:  models.PriorityCritical,
		Timestamp: time.Now(),
		Source:    "bus",
		Payload: map[string]string{
			"rejected_priority": rejected.String(),
		},
	}

	// Best effort: если и CRITICAL очередь полна, только логируем
	select {
	case b.queues[models.PriorityCritical] <- evt:
		select {
		case b.notify <- struct{}{}:
		default:
		}
	default:
		b.log.Error("шина перегружена, деградационное событие потеряно",
			zap.String("rejected_priority", rejected.String()))
	}
}

// Subscribe регистрирует подписку и запускает её воркер
//
// pattern: точный тип ("signal.created"), префикс ("signal.*") или "*".
// Возвращает id подписки для Unsubscribe.
func (b *Bus) Subscribe(name, pattern string, handler Handler) string {
	sub := &subscription{
		id:      uuid.New().String(),
		name:    name,
		pattern: pattern,
		handler: handler,
		queue:   make(chan models.Event, b.cfg.SubscriberBuffer),
	}

	b.subsMu.Lock()
	b.subs[sub.id] = sub
	b.subsMu.Unlock()

	b.wg.Add(1)
	go b.subscriberWorker(sub)

	ActiveSubscriptions.Inc()
	b.log.Debug("подписка зарегистрирована",
		zap.String("subscriber", name),
		zap.String("pattern", pattern))
	return sub.id
}

// Unsubscribe удаляет подписку; неизвестный id - no-op
func (b *Bus) Unsubscribe(id string) {
	b.subsMu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.subsMu.Unlock()

	if !ok {
		return
	}
	// Доставок больше не будет (удалён из map под Lock) - можно закрывать
	close(sub.queue)
	ActiveSubscriptions.Dec()
}

// Run запускает диспетчер и блокируется до отмены контекста
//
// После отмены: новые Publish отклоняются, воркеры подписок дорабатывают
// буферизованные события и завершаются.
func (b *Bus) Run(ctx context.Context) error {
	b.log.Info("шина событий запущена",
		zap.Int("queue_size", b.cfg.QueueSize),
		zap.Int("history_size", b.cfg.HistorySize))

	b.dispatch(ctx)

	atomic.StoreInt32(&b.closed, 1)

	// Закрываем очереди подписчиков и ждём доработки буферов
	b.subsMu.Lock()
	for id, sub := range b.subs {
		close(sub.queue)
		delete(b.subs, id)
	}
	b.subsMu.Unlock()
	b.wg.Wait()

	b.log.Info("шина событий остановлена")
	return ctx.Err()
}

// dispatch - цикл диспетчера
//
// Инвариант приоритета: событие уровня N доставляется только когда
// очереди уровней < N пусты. Блокирующий select по всем очередям дал бы
// случайный выбор между готовыми уровнями - поэтому опрос строго по
// порядку, а при полном простое ждём сигнала notify.
func (b *Bus) dispatch(ctx context.Context) {
	for {
		evt, ok := b.nextEvent()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-b.notify:
				continue
			}
		}
		b.deliver(evt)
	}
}

// nextEvent достаёт событие наивысшего готового приоритета
func (b *Bus) nextEvent() (models.Event, bool) {
	for p := 0; p < models.NumPriorities; p++ {
		select {
		case evt := <-b.queues[p]:
			QueueDepth.WithLabelValues(models.Priority(p).String()).Set(float64(len(b.queues[p])))
			return evt, true
		default:
		}
	}
	return models.Event{}, false
}

// deliver раздаёт событие всем подходящим подпискам
func (b *Bus) deliver(evt models.Event) {
	b.subsMu.RLock()
	for _, sub := range b.subs {
		if !matchPattern(sub.pattern, evt.Type) {
			continue
		}
		select {
		case sub.queue <- evt:
		default:
			// Медленный подписчик теряет событие, шина не ждёт
			RecordDrop("slow_subscriber")
			b.log.Warn("буфер подписчика переполнен, событие потеряно",
				zap.String("subscriber", sub.name),
				zap.String("event_type", evt.Type))
		}
	}
	b.subsMu.RUnlock()

	EventsDelivered.WithLabelValues(evt.Priority.String()).Inc()
	DispatchLatency.Observe(float64(time.Since(evt.Timestamp).Microseconds()) / 1000.0)

	// История пополняется после живой доставки
	b.history.Append(evt)
}

// subscriberWorker последовательно обрабатывает события одной подписки
func (b *Bus) subscriberWorker(sub *subscription) {
	defer b.wg.Done()
	for evt := range sub.queue {
		b.invoke(sub, evt)
	}
}

// invoke вызывает обработчик с изоляцией паники:
// упавший подписчик пропускает событие, остальные не затронуты
func (b *Bus) invoke(sub *subscription, evt models.Event) {
	defer func() {
		if r := recover(); r != nil {
			RecordPanic(sub.name)
			b.log.Error("паника в обработчике подписчика",
				zap.String("subscriber", sub.name),
				zap.String("event_type", evt.Type),
				zap.Any("panic", r))
		}
	}()
	sub.handler(evt)
}
