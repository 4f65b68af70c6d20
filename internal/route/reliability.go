package route

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/docflow-gateway/internal/domain"
	"github.com/xela07ax/docflow-gateway/internal/infra"
	"github.com/xela07ax/docflow-gateway/internal/retry"
)

// Dispatcher — то, чем роутер исполняет действие. Возвращает число
// сделанных попыток для записи в ActionDecision.
type Dispatcher interface {
	Dispatch(ctx context.Context, endpoint string, payload map[string]any) (domain.DispatchResult, uint, error)
}

// ReliabilityWrapper заворачивает коннектор в цепочку защит:
// rate limiter -> circuit breaker -> retry -> вызов.
type ReliabilityWrapper struct {
	next        Connector
	cb          *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	exec        *retry.Executor
	callTimeout time.Duration
}

func NewReliabilityWrapper(next Connector, cfg infra.PipelineConfig, logger *zap.Logger) *ReliabilityWrapper {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "action-dispatch",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
	})

	exec := retry.NewExecutor(retry.Policy{
		Attempts:      cfg.DispatchAttempts,
		InitialDelay:  cfg.DispatchDelay,
		BackoffFactor: cfg.DispatchBackoff,
	}, logger)

	return &ReliabilityWrapper{
		next:        next,
		cb:          cb,
		limiter:     rate.NewLimiter(rate.Limit(cfg.DispatchRate), cfg.DispatchBurst),
		exec:        exec,
		callTimeout: 10 * time.Second,
	}
}

func (w *ReliabilityWrapper) Dispatch(ctx context.Context, endpoint string, payload map[string]any) (domain.DispatchResult, uint, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return domain.DispatchResult{}, 0, fmt.Errorf("route: rate limit exceeded: %w", err)
	}

	var result domain.DispatchResult
	var attempts uint

	// 2. Circuit Breaker, внутри него — Retry Executor
	_, err := w.cb.Execute(func() (interface{}, error) {
		var doErr error
		attempts, doErr = w.exec.Do(ctx, endpoint, func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
			defer cancel()

			var callErr error
			result, callErr = w.next.Call(tCtx, endpoint, payload)
			return callErr
		})
		return result, doErr
	})
	if err != nil {
		return domain.DispatchResult{}, attempts, err
	}

	return result, attempts, nil
}
