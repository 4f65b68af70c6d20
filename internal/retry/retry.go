package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"
)

// TransientError помечает сбой как временный: только такие ошибки
// запускают повтор, всё остальное пролетает к вызывающему сразу.
// RetryAfter (если задан) перекрывает расчетную задержку — например,
// когда внешняя система вернула Retry-After заголовок.
type TransientError struct {
	Op         string
	Cause      error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// Transient оборачивает ошибку как временную.
func Transient(op string, cause error) *TransientError {
	return &TransientError{Op: op, Cause: cause}
}

// IsTransient — проверка через errors.As по всей цепочке.
func IsTransient(err error) bool {
	var tErr *TransientError
	return errors.As(err, &tErr)
}

// Policy — параметры ограниченного повтора с мультипликативным бэкоффом.
// Attempts — ОБЩЕЕ число попыток (исходная + повторы).
type Policy struct {
	Attempts      uint
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultPolicy — 3 повтора поверх исходной попытки, 1s * 2^n.
func DefaultPolicy() Policy {
	return Policy{Attempts: 4, InitialDelay: time.Second, BackoffFactor: 2.0}
}

// delay считает задержку перед (n+1)-м повтором: initial * factor^n.
func (p Policy) delay(n uint) time.Duration {
	d := float64(p.InitialDelay)
	for i := uint(0); i < n; i++ {
		d *= p.BackoffFactor
	}
	return time.Duration(d)
}

// Executor — обертка ограниченного повтора над произвольной операцией.
type Executor struct {
	policy Policy
	logger *zap.Logger
}

func NewExecutor(policy Policy, logger *zap.Logger) *Executor {
	if policy.Attempts == 0 {
		policy.Attempts = 1
	}
	if policy.BackoffFactor <= 0 {
		policy.BackoffFactor = 1
	}
	return &Executor{policy: policy, logger: logger.Named("retry")}
}

// Do выполняет op максимум policy.Attempts раз.
// Возвращает число сделанных попыток и последнюю ошибку (nil при успехе).
// Невременные ошибки не ретраятся и возвращаются сразу.
func (e *Executor) Do(ctx context.Context, name string, op func() error) (uint, error) {
	var attempts uint
	var lastErr error

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(e.policy.Attempts),
		retry.RetryIf(IsTransient),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			// Если внешняя система подсказала, когда вернуться — слушаемся
			var tErr *TransientError
			if errors.As(err, &tErr) && tErr.RetryAfter > 0 {
				return tErr.RetryAfter
			}
			return e.policy.delay(n)
		}),
	)

	doErr := r.Do(func() error {
		attempts++
		err := op()
		if err != nil {
			lastErr = err
			if IsTransient(err) && attempts < e.policy.Attempts {
				e.logger.Warn("operation failed, will retry",
					zap.String("op", name),
					zap.Uint("attempt", attempts),
					zap.Uint("max_attempts", e.policy.Attempts),
					zap.Error(err),
				)
			}
		}
		return err
	})

	if doErr != nil {
		// retry-go может агрегировать ошибки попыток; наружу отдаем последнюю
		return attempts, lastErr
	}
	return attempts, nil
}

// Scope — явная scoped-форма повтора для ручных циклов.
// В отличие от Do, вызывающий сам управляет телом цикла, а Scope
// ведет счетчик попыток, флаг успеха и поглощает временные сбои.
//
//	scope := exec.NewScope("dispatch")
//	for scope.ShouldContinue() {
//		if err := op(); err != nil {
//			if !scope.Absorb(ctx, err) {
//				return scope.LastErr()
//			}
//			continue
//		}
//		scope.Complete()
//	}
type Scope struct {
	name   string
	policy Policy
	logger *zap.Logger

	attempts uint // число неудачных попыток
	delay    time.Duration
	lastErr  error
	success  bool
}

func (e *Executor) NewScope(name string) *Scope {
	return &Scope{
		name:   name,
		policy: e.policy,
		logger: e.logger,
		delay:  e.policy.InitialDelay,
	}
}

// ShouldContinue — остались ли попытки и не достигнут ли успех.
func (s *Scope) ShouldContinue() bool {
	return !s.success && s.attempts < s.policy.Attempts
}

// Absorb регистрирует неудачную попытку. Возвращает true, если сбой
// временный, лимит не исчерпан и можно повторять (после выжидания
// бэкоффа). false — повторять нельзя, ошибка у вызывающего.
func (s *Scope) Absorb(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	s.lastErr = err
	s.attempts++

	var tErr *TransientError
	if !errors.As(err, &tErr) {
		return false
	}
	if s.attempts >= s.policy.Attempts {
		s.logger.Error("retries exhausted",
			zap.String("op", s.name),
			zap.Uint("attempts", s.attempts),
			zap.Error(err),
		)
		return false
	}

	wait := s.delay
	if tErr.RetryAfter > 0 {
		wait = tErr.RetryAfter
	}
	s.logger.Warn("transient failure absorbed",
		zap.String("op", s.name),
		zap.Uint("attempt", s.attempts),
		zap.Duration("wait", wait),
		zap.Error(err),
	)

	select {
	case <-ctx.Done():
		s.lastErr = ctx.Err()
		return false
	case <-time.After(wait):
	}
	s.delay = time.Duration(float64(s.delay) * s.policy.BackoffFactor)
	return true
}

// Complete помечает цикл успешным.
func (s *Scope) Complete() { s.success = true }

// Attempts — сколько неудачных попыток поглощено.
func (s *Scope) Attempts() uint { return s.attempts }

// Succeeded — завершился ли блок успехом.
func (s *Scope) Succeeded() bool { return s.success }

// LastErr — последняя зарегистрированная ошибка.
func (s *Scope) LastErr() error { return s.lastErr }
