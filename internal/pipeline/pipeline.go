package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/docflow-gateway/internal/classify"
	"github.com/xela07ax/docflow-gateway/internal/domain"
	"github.com/xela07ax/docflow-gateway/internal/extract"
	"github.com/xela07ax/docflow-gateway/internal/ledger"
	"github.com/xela07ax/docflow-gateway/internal/route"
)

// Pipeline — оркестратор одной заявки: журнал -> классификация ->
// экстракция -> маршрутизация действия. Стадии строго последовательны,
// параллельно обрабатываются только независимые заявки.
type Pipeline struct {
	ledger   *ledger.Ledger
	engine   *classify.Engine
	registry *extract.Registry
	router   *route.Router
	metrics  *Metrics
	logger   *zap.Logger
}

func New(l *ledger.Ledger, engine *classify.Engine, registry *extract.Registry, router *route.Router, metrics *Metrics, logger *zap.Logger) *Pipeline {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Pipeline{
		ledger:   l,
		engine:   engine,
		registry: registry,
		router:   router,
		metrics:  metrics,
		logger:   logger.Named("pipeline"),
	}
}

// Process прогоняет вход через весь пайплайн и возвращает итоговое
// состояние заявки. Для корректно оформленного входа ошибка не
// возвращается: все отказы описаны внутри заявки (status, error, action).
func (p *Pipeline) Process(ctx context.Context, content domain.Content, source domain.SourceHint) (*domain.Request, error) {
	req, err := p.ledger.Initialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: initialize: %w", err)
	}

	if content.Empty() {
		if err := p.ledger.RecordError(ctx, req, "input: no usable content"); err != nil {
			return nil, fmt.Errorf("pipeline: record error: %w", err)
		}
		p.metrics.RequestsTotal.WithLabelValues("", "", string(domain.StatusError)).Inc()
		return req, nil
	}

	if err := p.ledger.RecordInput(ctx, req, content, source); err != nil {
		return nil, fmt.Errorf("pipeline: record input: %w", err)
	}

	cls, err := p.classifyStage(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := p.extractStage(ctx, req, cls, content)
	if err != nil {
		return nil, err
	}

	decision, err := p.routeStage(ctx, req, cls, result)
	if err != nil {
		return nil, err
	}

	p.metrics.RequestsTotal.WithLabelValues(string(cls.Format), string(cls.Intent), string(req.Status)).Inc()
	p.metrics.ActionsTotal.WithLabelValues(string(decision.Type), string(decision.Outcome)).Inc()
	p.metrics.DispatchRetries.Add(float64(decision.RetryCount))

	final, err := p.ledger.Get(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: final state: %w", err)
	}

	p.logger.Info("request processed",
		zap.String("request_id", final.ID),
		zap.String("status", string(final.Status)),
		zap.String("action", string(decision.Type)),
	)
	return final, nil
}

func (p *Pipeline) classifyStage(ctx context.Context, req *domain.Request) (domain.Classification, error) {
	start := time.Now()
	cls, err := p.engine.Classify(ctx, req)
	p.metrics.StageDuration.WithLabelValues("classify").Observe(time.Since(start).Seconds())
	if err != nil {
		return cls, fmt.Errorf("pipeline: classify: %w", err)
	}
	return cls, nil
}

func (p *Pipeline) extractStage(ctx context.Context, req *domain.Request, cls domain.Classification, content domain.Content) (domain.ExtractionResult, error) {
	start := time.Now()
	extractor := p.registry.For(cls.Format)
	result, extractErr := extractor.Extract(ctx, content)
	p.metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())

	if extractErr != nil {
		// Экстрактор не справился: деградируем до generic-пути, но
		// фиксируем это в трассе. Заявка не падает.
		p.logger.Warn("extraction degraded",
			zap.String("request_id", req.ID),
			zap.String("extractor", extractor.Name()),
			zap.Error(extractErr),
		)
		if err := p.ledger.AppendTrace(ctx, req, "extract", "extraction_degraded", map[string]any{
			"extractor": extractor.Name(),
			"error":     extractErr.Error(),
		}); err != nil {
			return result, fmt.Errorf("pipeline: append trace: %w", err)
		}

		fallback := p.registry.Fallback()
		var err error
		result, err = fallback.Extract(ctx, content)
		if err != nil {
			return result, fmt.Errorf("pipeline: fallback extract: %w", err)
		}
	}

	if err := p.ledger.RecordProcessingResult(ctx, req, result); err != nil {
		return result, fmt.Errorf("pipeline: record processing: %w", err)
	}
	return result, nil
}

func (p *Pipeline) routeStage(ctx context.Context, req *domain.Request, cls domain.Classification, result domain.ExtractionResult) (domain.ActionDecision, error) {
	start := time.Now()
	decision, err := p.router.Route(ctx, req, cls, result)
	p.metrics.StageDuration.WithLabelValues("route").Observe(time.Since(start).Seconds())
	if err != nil {
		return decision, fmt.Errorf("pipeline: route: %w", err)
	}
	return decision, nil
}
