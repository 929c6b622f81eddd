package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"riskhub/internal/bus"
	"riskhub/internal/config"
	"riskhub/internal/models"
	"riskhub/pkg/retry"
)

// Pipeline - конвейер обогащения сигналов
//
// Сырой сигнал (signal.created) проходит три НЕЗАВИСИМЫЕ конкурентные
// стадии: прогноз, нарратив, институциональные потоки. Каждая стадия
// ждёт данные своего коллаборатора не дольше таймаута; не успела -
// аннотация опускается, сигнал идёт дальше. Сигнал не отбрасывается
// никогда: худший случай - ноль аннотаций.
//
// Данные коллабораторов приходят отдельными событиями и кэшируются
// по символу. Опоздавший к таймауту ответ не подшивается задним
// числом - он достаётся следующему сигналу по тому же символу.
//
// Гарантия exactly-once: повторный signal.created с тем же id внутри
// окна дедупликации - no-op.
type Pipeline struct {
	bus busPublisher
	cfg config.EnrichmentConfig
	log *zap.Logger

	predictions   *sourceCache[models.PredictionAnnotation]
	narratives    *sourceCache[models.NarrativeAnnotation]
	institutional *sourceCache[models.InstitutionalAnnotation]

	// Окно дедупликации: signal.id → время первой обработки
	dedupMu sync.Mutex
	dedup   map[string]time.Time
}

// busPublisher - минимальная поверхность шины, нужная пайплайну
type busPublisher interface {
	Publish(evt models.Event) error
	Subscribe(name, pattern string, handler bus.Handler) string
}

// New создаёт пайплайн обогащения
func New(cfg config.EnrichmentConfig, b busPublisher, log *zap.Logger) *Pipeline {
	return &Pipeline{
		bus:           b,
		cfg:           cfg,
		log:           log,
		predictions:   newSourceCache[models.PredictionAnnotation](cfg.AnnotationTTL),
		narratives:    newSourceCache[models.NarrativeAnnotation](cfg.AnnotationTTL),
		institutional: newSourceCache[models.InstitutionalAnnotation](cfg.AnnotationTTL),
		dedup:         make(map[string]time.Time),
	}
}

// Start регистрирует подписки пайплайна на шине
//
// Сигналы обрабатываются последовательно на воркере подписки -
// порядок из одной очереди сохраняется.
func (p *Pipeline) Start() {
	p.bus.Subscribe("pipeline", models.EventSignalCreated, p.handleSignal)
	p.bus.Subscribe("pipeline-prediction", models.EventSignalPrediction, p.handlePrediction)
	p.bus.Subscribe("pipeline-narrative", models.EventSignalNarrative, p.handleNarrative)
	p.bus.Subscribe("pipeline-institutional", models.EventSignalInstitutional, p.handleInstitutional)
}

// ============ Кэширование данных коллабораторов ============

func (p *Pipeline) handlePrediction(evt models.Event) {
	upd, ok := evt.Payload.(models.PredictionUpdate)
	if !ok {
		p.log.Warn("неожиданный payload прогноза", zap.String("event_id", evt.ID))
		return
	}
	p.predictions.Put(upd.Symbol, upd.Prediction)
}

func (p *Pipeline) handleNarrative(evt models.Event) {
	upd, ok := evt.Payload.(models.NarrativeUpdate)
	if !ok {
		p.log.Warn("неожиданный payload нарратива", zap.String("event_id", evt.ID))
		return
	}
	p.narratives.Put(upd.Symbol, upd.Narrative)
}

func (p *Pipeline) handleInstitutional(evt models.Event) {
	upd, ok := evt.Payload.(models.InstitutionalUpdate)
	if !ok {
		p.log.Warn("неожиданный payload потоков", zap.String("event_id", evt.ID))
		return
	}
	p.institutional.Put(upd.Symbol, upd.Institutional)
}

// ============ Обогащение ============

func (p *Pipeline) handleSignal(evt models.Event) {
	sig, ok := evt.Payload.(models.Signal)
	if !ok {
		p.log.Warn("неожиданный payload сигнала", zap.String("event_id", evt.ID))
		return
	}

	// Exactly-once: повтор внутри окна - no-op
	if !p.markProcessed(sig.ID) {
		DuplicatesSuppressed.Inc()
		p.log.Debug("дубликат сигнала отброшен", zap.String("signal_id", sig.ID))
		return
	}

	started := time.Now()
	enriched := p.enrich(sig)
	EnrichLatency.Observe(float64(time.Since(started).Microseconds()) / 1000.0)
	SignalsEnriched.WithLabelValues(strconv.Itoa(enriched.AnnotationCount())).Inc()

	p.emit(enriched)
}

// enrich запускает три стадии конкурентно и собирает результаты
//
// Стадии пишут не в общий сигнал, а возвращают замыкания-применители:
// все мутации происходят после wg.Wait на одной горутине, гонок нет.
func (p *Pipeline) enrich(sig models.Signal) models.Signal {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.StageTimeout)
	defer cancel()

	type apply func(*models.Signal)
	results := make(chan apply, 3)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if a, ok := p.predictions.Wait(ctx, sig.Symbol); ok {
			results <- func(s *models.Signal) { s.Prediction = &a }
		} else {
			StageMisses.WithLabelValues("prediction").Inc()
		}
	}()

	go func() {
		defer wg.Done()
		if a, ok := p.narratives.Wait(ctx, sig.Symbol); ok {
			results <- func(s *models.Signal) { s.Narrative = &a }
		} else {
			StageMisses.WithLabelValues("narrative").Inc()
		}
	}()

	go func() {
		defer wg.Done()
		if a, ok := p.institutional.Wait(ctx, sig.Symbol); ok {
			results <- func(s *models.Signal) { s.Institutional = &a }
		} else {
			StageMisses.WithLabelValues("institutional").Inc()
		}
	}()

	wg.Wait()
	close(results)

	for f := range results {
		f(&sig)
	}
	return sig
}

// emit публикует обогащённый сигнал; backpressure retry'ится с backoff
func (p *Pipeline) emit(sig models.Signal) {
	evt := models.Event{
		Type:     models.EventSignalEnriched,
		Priority: models.PriorityHigh,
		Source:   "pipeline",
		Payload:  sig,
	}

	err := retry.Do(context.Background(), func() error {
		return p.bus.Publish(evt)
	}, retryOnBackpressure())

	if err != nil {
		p.log.Error("обогащённый сигнал не опубликован",
			zap.String("signal_id", sig.ID),
			zap.Error(err))
	}
}

func retryOnBackpressure() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.RetryIf = func(err error) bool {
		return errors.Is(err, bus.ErrBackpressure)
	}
	return cfg
}

// markProcessed регистрирует id сигнала; false если уже обработан в окне.
// Попутно выметает просроченные записи.
func (p *Pipeline) markProcessed(id string) bool {
	now := time.Now()

	p.dedupMu.Lock()
	defer p.dedupMu.Unlock()

	for k, at := range p.dedup {
		if now.Sub(at) > p.cfg.DedupWindow {
			delete(p.dedup, k)
		}
	}

	if _, dup := p.dedup[id]; dup {
		return false
	}
	p.dedup[id] = now
	return true
}
