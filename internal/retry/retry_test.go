package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testExecutor(p Policy) *Executor {
	return NewExecutor(p, zap.NewNop())
}

func TestPolicyDelayGeometric(t *testing.T) {
	t.Parallel()

	p := Policy{Attempts: 5, InitialDelay: 100 * time.Millisecond, BackoffFactor: 2.0}

	assert.Equal(t, 100*time.Millisecond, p.delay(0))
	assert.Equal(t, 200*time.Millisecond, p.delay(1))
	assert.Equal(t, 400*time.Millisecond, p.delay(2))
	assert.Equal(t, 800*time.Millisecond, p.delay(3))
}

func TestExecutorDo(t *testing.T) {
	t.Parallel()

	policy := Policy{Attempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2.0}

	t.Run("success first attempt", func(t *testing.T) {
		t.Parallel()
		exec := testExecutor(policy)

		attempts, err := exec.Do(context.Background(), "op", func() error { return nil })
		require.NoError(t, err)
		assert.Equal(t, uint(1), attempts)
	})

	t.Run("transient then success", func(t *testing.T) {
		t.Parallel()
		exec := testExecutor(policy)

		calls := 0
		attempts, err := exec.Do(context.Background(), "op", func() error {
			calls++
			if calls < 3 {
				return Transient("op", errors.New("flaky"))
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, uint(3), attempts)
	})

	t.Run("transient exhausted returns last error", func(t *testing.T) {
		t.Parallel()
		exec := testExecutor(policy)

		calls := 0
		attempts, err := exec.Do(context.Background(), "op", func() error {
			calls++
			return Transient("op", errors.New("always down"))
		})
		require.Error(t, err)
		assert.Equal(t, uint(3), attempts)
		assert.Equal(t, 3, calls)
		assert.True(t, IsTransient(err))
		assert.Contains(t, err.Error(), "always down")
	})

	t.Run("permanent error not retried", func(t *testing.T) {
		t.Parallel()
		exec := testExecutor(policy)

		permanent := errors.New("bad payload")
		attempts, err := exec.Do(context.Background(), "op", func() error { return permanent })
		require.ErrorIs(t, err, permanent)
		assert.Equal(t, uint(1), attempts)
	})

	t.Run("retry-after overrides backoff", func(t *testing.T) {
		t.Parallel()
		exec := testExecutor(Policy{Attempts: 2, InitialDelay: time.Hour, BackoffFactor: 2.0})

		calls := 0
		start := time.Now()
		_, err := exec.Do(context.Background(), "op", func() error {
			calls++
			if calls == 1 {
				return &TransientError{Op: "op", Cause: errors.New("throttled"), RetryAfter: time.Millisecond}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		// Без учета RetryAfter ждали бы час
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestScope(t *testing.T) {
	t.Parallel()

	policy := Policy{Attempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2.0}

	t.Run("completes without failures", func(t *testing.T) {
		t.Parallel()
		scope := testExecutor(policy).NewScope("op")

		loops := 0
		for scope.ShouldContinue() {
			loops++
			scope.Complete()
		}
		assert.Equal(t, 1, loops)
		assert.True(t, scope.Succeeded())
		assert.Equal(t, uint(0), scope.Attempts())
		assert.NoError(t, scope.LastErr())
	})

	t.Run("absorbs transient failures up to limit", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		scope := testExecutor(policy).NewScope("op")

		loops := 0
		for scope.ShouldContinue() {
			loops++
			if !scope.Absorb(ctx, Transient("op", errors.New("down"))) {
				break
			}
		}
		assert.Equal(t, 3, loops)
		assert.Equal(t, uint(3), scope.Attempts())
		assert.False(t, scope.Succeeded())
		assert.True(t, IsTransient(scope.LastErr()))
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		t.Parallel()
		scope := testExecutor(policy).NewScope("op")

		permanent := errors.New("schema mismatch")
		assert.False(t, scope.Absorb(context.Background(), permanent))
		assert.Equal(t, uint(1), scope.Attempts())
		assert.ErrorIs(t, scope.LastErr(), permanent)
	})

	t.Run("recovers after transient failure", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		scope := testExecutor(policy).NewScope("op")

		calls := 0
		for scope.ShouldContinue() {
			calls++
			if calls == 1 {
				require.True(t, scope.Absorb(ctx, Transient("op", errors.New("blip"))))
				continue
			}
			scope.Complete()
		}
		assert.Equal(t, 2, calls)
		assert.True(t, scope.Succeeded())
		assert.Equal(t, uint(1), scope.Attempts())
	})

	t.Run("cancelled context aborts wait", func(t *testing.T) {
		t.Parallel()
		scope := testExecutor(Policy{Attempts: 3, InitialDelay: time.Hour, BackoffFactor: 2.0}).NewScope("op")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, scope.Absorb(ctx, Transient("op", errors.New("down"))))
		assert.ErrorIs(t, scope.LastErr(), context.Canceled)
	})
}

func TestTransientErrorChain(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := Transient("redis set", cause)

	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "redis set")

	wrapped := errors.Join(errors.New("outer"), err)
	assert.True(t, IsTransient(wrapped))

	assert.False(t, IsTransient(cause))
	assert.False(t, IsTransient(nil))
}
